// Package encoder implements the video encoder driver (spec component
// C5): a codec-agnostic policy layer (Driver) wrapping a realtime
// encoder bound to a specific C library. Driver's decisions — init,
// reinit on geometry change, forced-keyframe honoring — are plain Go
// and unit-testable against a fake Codec; only the concrete VP8/H.264
// backends cross into cgo.
package encoder

import "github.com/realhidden/macemu/pkg/types"

// Codec is the minimal realtime-encoder surface the driver depends on.
// VP8Codec and H264Codec implement this against libvpx and OpenH264
// respectively.
type Codec interface {
	// Init (re)initializes the encoder for the given geometry, fps and
	// target bitrate in kbps. Safe to call again to reinitialize.
	Init(width, height, fps, bitrateKbps int) error
	// Encode converts a planar YUV420 frame into zero or more bytes of
	// compressed bitstream. An empty result means "skip this frame".
	Encode(frame *types.PlanarYUV420, forceKeyframe bool) ([]byte, error)
	// IsKeyframe inspects an encoded bitstream for the codec's keyframe
	// marker.
	IsKeyframe(data []byte) bool
	// Close releases codec resources.
	Close() error
	// Name identifies which codec this is, for callers (RTP
	// packetization) that need a codec-specific rule.
	Name() Name
}

// Name identifies a Codec implementation.
type Name string

const (
	NameVP8  Name = "vp8"
	NameH264 Name = "h264"
)
