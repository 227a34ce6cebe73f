package encoder

/*
#cgo LDFLAGS: -lopenh264
#include <stdlib.h>
#include <string.h>
#include <wels/codec_api.h>
#include <wels/codec_app_def.h>

static int h264_create(ISVCEncoder **enc) { return WelsCreateSVCEncoder(enc); }
static void h264_destroy(ISVCEncoder *enc) { WelsDestroySVCEncoder(enc); }

static int h264_initialize(ISVCEncoder *enc, SEncParamBase *param) {
    return (*enc)->Initialize(enc, param);
}
static int h264_uninitialize(ISVCEncoder *enc) {
    return (*enc)->Uninitialize(enc);
}
static int h264_encode_frame(ISVCEncoder *enc, const SSourcePicture *pic, SFrameBSInfo *info) {
    return (*enc)->EncodeFrame(enc, pic, info);
}
static int h264_force_intra(ISVCEncoder *enc) {
    int path = 0; // VIDEO_ENCODER_IDR would be set via ForceIntraFrame below
    return (*enc)->ForceIntraFrame(enc, true);
}
static int h264_set_option(ISVCEncoder *enc, ENCODER_OPTION opt, void *v) {
    return (*enc)->SetOption(enc, opt, v);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/realhidden/macemu/pkg/types"
)

// H264Codec binds OpenH264's ISVCEncoder, mirroring the original
// server's H264Encoder wrapper.
type H264Codec struct {
	enc     *C.ISVCEncoder
	inited  bool
	width   int
	height  int
	headers headerCache
}

func NewH264Codec() *H264Codec {
	return &H264Codec{}
}

func (c *H264Codec) Init(width, height, fps, bitrateKbps int) error {
	c.Close()

	if C.h264_create(&c.enc) != 0 {
		return fmt.Errorf("h264: WelsCreateSVCEncoder failed")
	}

	var param C.SEncParamBase
	C.memset(unsafe.Pointer(&param), 0, C.sizeof_SEncParamBase)
	param.iUsageType = C.CAMERA_VIDEO_REAL_TIME
	param.iPicWidth = C.int(width)
	param.iPicHeight = C.int(height)
	param.fMaxFrameRate = C.float(fps)
	param.iTargetBitrate = C.int(bitrateKbps * 1000)
	param.iRCMode = C.RC_BITRATE_MODE

	if C.h264_initialize(c.enc, &param) != 0 {
		C.h264_destroy(c.enc)
		return fmt.Errorf("h264: Initialize failed")
	}

	c.width, c.height = width, height
	c.inited = true
	return nil
}

func (c *H264Codec) Encode(frame *types.PlanarYUV420, forceKeyframe bool) ([]byte, error) {
	if !c.inited {
		return nil, fmt.Errorf("h264: not initialized")
	}
	if forceKeyframe {
		C.h264_force_intra(c.enc)
	}

	var pic C.SSourcePicture
	C.memset(unsafe.Pointer(&pic), 0, C.sizeof_SSourcePicture)
	pic.iPicWidth = C.int(frame.Width)
	pic.iPicHeight = C.int(frame.Height)
	pic.iColorFormat = C.videoFormatI420
	pic.iStride[0] = C.int(frame.YStride)
	pic.iStride[1] = C.int(frame.UVStride)
	pic.iStride[2] = C.int(frame.UVStride)
	pic.pData[0] = (*C.uchar)(unsafe.Pointer(&frame.Y[0]))
	pic.pData[1] = (*C.uchar)(unsafe.Pointer(&frame.U[0]))
	pic.pData[2] = (*C.uchar)(unsafe.Pointer(&frame.V[0]))

	var info C.SFrameBSInfo
	C.memset(unsafe.Pointer(&info), 0, C.sizeof_SFrameBSInfo)

	if C.h264_encode_frame(c.enc, &pic, &info) != 0 {
		return nil, fmt.Errorf("h264: EncodeFrame failed")
	}
	if info.eFrameType == C.videoFrameTypeSkip {
		return nil, nil
	}

	var result []byte
	layerCount := int(info.iLayerNum)
	for i := 0; i < layerCount; i++ {
		layer := info.sLayerInfo[i]
		naluCount := int(layer.iNalCount)
		sizes := unsafe.Slice(layer.pNalLengthInByte, naluCount)
		total := 0
		for _, sz := range sizes {
			total += int(sz)
		}
		buf := C.GoBytes(unsafe.Pointer(layer.pBsBuf), C.int(total))
		result = append(result, buf...)
	}

	c.headers.observe(result)
	result = c.headers.prependIfIDR(result)
	return result, nil
}

func (c *H264Codec) IsKeyframe(data []byte) bool {
	return IsKeyframeH264(data)
}

func (c *H264Codec) Name() Name {
	return NameH264
}

func (c *H264Codec) Close() error {
	if c.inited {
		C.h264_uninitialize(c.enc)
		C.h264_destroy(c.enc)
		c.inited = false
	}
	return nil
}
