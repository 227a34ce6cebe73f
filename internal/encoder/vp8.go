package encoder

/*
#cgo pkg-config: vpx
#include <stdlib.h>
#include <string.h>
#include <vpx/vpx_encoder.h>
#include <vpx/vp8cx.h>

static vpx_codec_iface_t *vp8_iface(void) { return vpx_codec_vp8_cx(); }

// Thin accessors around the vpx_codec_cx_pkt_t union so cgo never has
// to reach through an anonymous C union from the Go side.
static const uint8_t *vpx_pkt_buf(const vpx_codec_cx_pkt_t *pkt) {
    return (const uint8_t *)pkt->data.frame.buf;
}
static size_t vpx_pkt_sz(const vpx_codec_cx_pkt_t *pkt) {
    return pkt->data.frame.sz;
}

// vpx_codec_control is a variadic macro; cgo cannot call it directly,
// so each control id used here gets a small non-variadic wrapper.
static vpx_codec_err_t vp8_set_cpuused(vpx_codec_ctx_t *ctx, int v) {
    return vpx_codec_control(ctx, VP8E_SET_CPUUSED, v);
}
static vpx_codec_err_t vp8_set_noise_sensitivity(vpx_codec_ctx_t *ctx, int v) {
    return vpx_codec_control(ctx, VP8E_SET_NOISE_SENSITIVITY, v);
}
static vpx_codec_err_t vp8_set_token_partitions(vpx_codec_ctx_t *ctx, int v) {
    return vpx_codec_control(ctx, VP8E_SET_TOKEN_PARTITIONS, v);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/realhidden/macemu/pkg/types"
)

// VP8Codec binds libvpx's realtime VP8 encoder, mirroring the
// configuration in the original server's VP8Encoder::init.
type VP8Codec struct {
	ctx      C.vpx_codec_ctx_t
	img      C.vpx_image_t
	inited   bool
	width    int
	height   int
	frameNum C.vpx_codec_pts_t
}

func NewVP8Codec() *VP8Codec {
	return &VP8Codec{}
}

func (c *VP8Codec) Init(width, height, fps, bitrateKbps int) error {
	c.Close()

	var cfg C.vpx_codec_enc_cfg_t
	if C.vpx_codec_enc_config_default(C.vp8_iface(), &cfg, 0) != C.VPX_CODEC_OK {
		return fmt.Errorf("vp8: default config failed")
	}

	cfg.g_w = C.uint(width)
	cfg.g_h = C.uint(height)
	cfg.g_timebase.num = 1
	cfg.g_timebase.den = C.int(fps)
	cfg.rc_target_bitrate = C.uint(bitrateKbps)
	cfg.g_error_resilient = C.VPX_ERROR_RESILIENT_DEFAULT | C.VPX_ERROR_RESILIENT_PARTITIONS
	cfg.g_lag_in_frames = 0
	cfg.rc_end_usage = C.VPX_CBR
	cfg.kf_mode = C.VPX_KF_AUTO
	cfg.kf_max_dist = C.uint(AutoKeyframeDistance)
	cfg.g_threads = 1

	if C.vpx_codec_enc_init_ver(&c.ctx, C.vp8_iface(), &cfg, 0, C.VPX_ENCODER_ABI_VERSION) != C.VPX_CODEC_OK {
		return fmt.Errorf("vp8: init failed: %s", C.GoString(C.vpx_codec_error(&c.ctx)))
	}

	C.vp8_set_cpuused(&c.ctx, 8)
	C.vp8_set_noise_sensitivity(&c.ctx, 0)
	C.vp8_set_token_partitions(&c.ctx, 0)

	if C.vpx_img_alloc(&c.img, C.VPX_IMG_FMT_I420, C.uint(width), C.uint(height), 16) == nil {
		C.vpx_codec_destroy(&c.ctx)
		return fmt.Errorf("vp8: image alloc failed")
	}

	c.width, c.height = width, height
	c.inited = true
	c.frameNum = 0
	return nil
}

func (c *VP8Codec) Encode(frame *types.PlanarYUV420, forceKeyframe bool) ([]byte, error) {
	if !c.inited {
		return nil, fmt.Errorf("vp8: not initialized")
	}

	copyPlane(c.img.planes[C.VPX_PLANE_Y], int(c.img.stride[C.VPX_PLANE_Y]), frame.Y, frame.YStride, frame.Height)
	copyPlane(c.img.planes[C.VPX_PLANE_U], int(c.img.stride[C.VPX_PLANE_U]), frame.U, frame.UVStride, frame.Height/2)
	copyPlane(c.img.planes[C.VPX_PLANE_V], int(c.img.stride[C.VPX_PLANE_V]), frame.V, frame.UVStride, frame.Height/2)

	var flags C.vpx_enc_frame_flags_t
	if forceKeyframe {
		flags = C.VPX_EFLAG_FORCE_KF
	}

	if C.vpx_codec_encode(&c.ctx, &c.img, c.frameNum, 1, flags, C.VPX_DL_REALTIME) != C.VPX_CODEC_OK {
		return nil, fmt.Errorf("vp8: encode failed: %s", C.GoString(C.vpx_codec_error(&c.ctx)))
	}
	c.frameNum++

	var result []byte
	var iter C.vpx_codec_iter_t
	for {
		pkt := C.vpx_codec_get_cx_data(&c.ctx, &iter)
		if pkt == nil {
			break
		}
		if pkt.kind == C.VPX_CODEC_CX_FRAME_PKT {
			buf := C.GoBytes(unsafe.Pointer(C.vpx_pkt_buf(pkt)), C.int(C.vpx_pkt_sz(pkt)))
			result = append(result, buf...)
		}
	}
	return result, nil
}

func (c *VP8Codec) IsKeyframe(data []byte) bool {
	return IsKeyframeVP8(data)
}

func (c *VP8Codec) Name() Name {
	return NameVP8
}

func (c *VP8Codec) Close() error {
	if c.inited {
		C.vpx_codec_destroy(&c.ctx)
		C.vpx_img_free(&c.img)
		c.inited = false
	}
	return nil
}

func copyPlane(dst unsafe.Pointer, dstStride int, src []byte, srcStride, rows int) {
	dstBytes := unsafe.Slice((*byte)(dst), dstStride*rows)
	for row := 0; row < rows; row++ {
		copy(dstBytes[row*dstStride:row*dstStride+srcStride], src[row*srcStride:(row+1)*srcStride])
	}
}
