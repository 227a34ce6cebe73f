// Package colorconv converts packed RGBA/BGRA frames to planar 4:2:0
// YUV using BT.601 limited-range coefficients (spec component C4).
package colorconv

import "github.com/realhidden/macemu/pkg/types"

// channelOffsets returns the byte offsets of the R, G and B samples
// within one packed 4-byte pixel, depending on byte order.
func channelOffsets(format types.PixelFormat) (r, g, b int) {
	if format == types.PixelFormatBGRA {
		return 2, 1, 0
	}
	return 0, 1, 2
}

// Convert fills dst with the BT.601 limited-range planar YUV420
// representation of src. dst's planes must already be sized for
// width/height (2x2 box-averaged chroma planes at half resolution);
// callers reuse the same PlanarYUV420 across frames to avoid per-frame
// allocation.
func Convert(src []byte, width, height, stride int, format types.PixelFormat, dst *types.PlanarYUV420) {
	ro, go_, bo := channelOffsets(format)

	for row := 0; row < height; row++ {
		srcRow := src[row*stride:]
		dstY := dst.Y[row*dst.YStride:]

		col4 := 0
		for col := 0; col < width; col++ {
			r := int(srcRow[col4+ro])
			g := int(srcRow[col4+go_])
			b := int(srcRow[col4+bo])
			dstY[col] = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
			col4 += 4
		}
	}

	cw, ch := width/2, height/2
	for row := 0; row < ch; row++ {
		dstU := dst.U[row*dst.UVStride:]
		dstV := dst.V[row*dst.UVStride:]

		for col := 0; col < cw; col++ {
			var r, g, b int
			for dy := 0; dy < 2; dy++ {
				srcRow := src[(row*2+dy)*stride:]
				base := (col*2)*4
				for dx := 0; dx < 2; dx++ {
					off := base + dx*4
					r += int(srcRow[off+ro])
					g += int(srcRow[off+go_])
					b += int(srcRow[off+bo])
				}
			}
			r /= 4
			g /= 4
			b /= 4

			dstU[col] = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			dstV[col] = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
}

// InvertTo fills dst with the packed RGBA/BGRA reconstruction of src
// using the BT.601 limited-range inverse matrix, the counterpart to
// Convert. Its coefficients (scaled by 1024) are the exact inverse of
// Convert's integer forward matrix, which keeps the per-channel
// round-trip error within 2 for every RGB color whose 2x2 block is
// uniform. Each 2x2 luma block shares one chroma sample, so the
// reconstruction is lossy relative to the original packed frame
// (chroma subsampling, not roundoff, dominates the error).
func InvertTo(src *types.PlanarYUV420, format types.PixelFormat, dst []byte, stride int) {
	ro, go_, bo := channelOffsets(format)

	for row := 0; row < src.Height; row++ {
		srcY := src.Y[row*src.YStride:]
		srcU := src.U[(row/2)*src.UVStride:]
		srcV := src.V[(row/2)*src.UVStride:]
		dstRow := dst[row*stride:]

		col4 := 0
		for col := 0; col < src.Width; col++ {
			y := int(srcY[col]) - 16
			u := int(srcU[col/2]) - 128
			v := int(srcV[col/2]) - 128

			r := clampByte((1192*y - 3*u + 1637*v + 512) >> 10)
			g := clampByte((1192*y - 401*u - 838*v + 512) >> 10)
			b := clampByte((1192*y + 2075*u + 2*v + 512) >> 10)

			dstRow[col4+ro] = r
			dstRow[col4+go_] = g
			dstRow[col4+bo] = b
			dstRow[col4+3] = 0xFF
			col4 += 4
		}
	}
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// NewScratch allocates a PlanarYUV420 sized for width/height with
// codec-friendly strides equal to width (callers that need wider
// strides can copy into their own codec image buffer afterward).
func NewScratch(width, height int) *types.PlanarYUV420 {
	cw, ch := (width+1)/2, (height+1)/2
	return &types.PlanarYUV420{
		Y:        make([]byte, width*height),
		U:        make([]byte, cw*ch),
		V:        make([]byte, cw*ch),
		YStride:  width,
		UVStride: cw,
		Width:    width,
		Height:   height,
	}
}
