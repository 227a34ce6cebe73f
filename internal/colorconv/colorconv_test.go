package colorconv

import (
	"testing"

	"github.com/realhidden/macemu/pkg/types"
)

func TestConvertSolidColorRGBA(t *testing.T) {
	const w, h = 4, 4
	src := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		src[i*4+0] = 200 // R
		src[i*4+1] = 100 // G
		src[i*4+2] = 50  // B
		src[i*4+3] = 255 // A
	}

	dst := NewScratch(w, h)
	Convert(src, w, h, w*4, types.PixelFormatRGBA, dst)

	wantY := byte(((66*200 + 129*100 + 25*50 + 128) >> 8) + 16)
	wantU := byte(((-38*200 - 74*100 + 112*50 + 128) >> 8) + 128)
	wantV := byte(((112*200 - 94*100 - 18*50 + 128) >> 8) + 128)

	for i, y := range dst.Y {
		if y != wantY {
			t.Fatalf("Y[%d] = %d, want %d", i, y, wantY)
		}
	}
	for i, u := range dst.U {
		if u != wantU {
			t.Fatalf("U[%d] = %d, want %d", i, u, wantU)
		}
	}
	for i, v := range dst.V {
		if v != wantV {
			t.Fatalf("V[%d] = %d, want %d", i, v, wantV)
		}
	}
}

func TestConvertBGRAChannelOrder(t *testing.T) {
	const w, h = 2, 2
	src := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		src[i*4+0] = 50  // B
		src[i*4+1] = 100 // G
		src[i*4+2] = 200 // R
		src[i*4+3] = 255 // A
	}

	bgra := NewScratch(w, h)
	Convert(src, w, h, w*4, types.PixelFormatBGRA, bgra)

	rgbaSrc := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		rgbaSrc[i*4+0] = 200
		rgbaSrc[i*4+1] = 100
		rgbaSrc[i*4+2] = 50
		rgbaSrc[i*4+3] = 255
	}
	rgba := NewScratch(w, h)
	Convert(rgbaSrc, w, h, w*4, types.PixelFormatRGBA, rgba)

	for i := range bgra.Y {
		if bgra.Y[i] != rgba.Y[i] {
			t.Fatalf("BGRA/RGBA Y mismatch at %d: %d vs %d", i, bgra.Y[i], rgba.Y[i])
		}
	}
}

func TestRoundTripGradientWithinTolerance(t *testing.T) {
	const w, h = 64, 64
	src := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			// Constant per 2x2 block so 4:2:0 chroma subsampling
			// introduces no additional error beyond rounding.
			bc, br := col/2, row/2
			off := (row*w + col) * 4
			src[off+0] = 0 // B
			src[off+1] = byte((bc * 255) / (w / 2))
			src[off+2] = byte((br * 255) / (h / 2))
			src[off+3] = 255
		}
	}

	yuv := NewScratch(w, h)
	Convert(src, w, h, w*4, types.PixelFormatBGRA, yuv)

	got := make([]byte, w*h*4)
	InvertTo(yuv, types.PixelFormatBGRA, got, w*4)

	const tolerance = 2
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			off := (row*w + col) * 4
			for c := 0; c < 3; c++ {
				want := int(src[off+c])
				have := int(got[off+c])
				diff := want - have
				if diff < 0 {
					diff = -diff
				}
				if diff > tolerance {
					t.Fatalf("pixel (%d,%d) channel %d = %d, want %d (diff %d > %d)",
						col, row, c, have, want, diff, tolerance)
				}
			}
		}
	}
}

func TestConvertUsesStrideNotWidth(t *testing.T) {
	const w, h, stride = 2, 2, 16 // stride wider than width*4
	src := make([]byte, stride*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			off := row*stride + col*4
			src[off+0] = 10
			src[off+1] = 20
			src[off+2] = 30
			src[off+3] = 255
		}
	}
	// Poison the padding so a width-based reader would misbehave.
	for row := 0; row < h; row++ {
		for i := w * 4; i < stride; i++ {
			src[row*stride+i] = 0xFF
		}
	}

	dst := NewScratch(w, h)
	Convert(src, w, h, stride, types.PixelFormatRGBA, dst)

	wantY := byte(((66*10 + 129*20 + 25*30 + 128) >> 8) + 16)
	for i, y := range dst.Y {
		if y != wantY {
			t.Fatalf("Y[%d] = %d, want %d (stride not honored)", i, y, wantY)
		}
	}
}
