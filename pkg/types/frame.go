// Package types holds data structures shared across the pipeline stages:
// the shared-memory reader, color converter, encoder driver, packetizer
// and peer session manager all pass frames using these types instead of
// reaching into each other's internals.
package types

// PixelFormat identifies the byte order of a raw video frame published by
// the emulator, matching the `format` field of the shared video buffer.
type PixelFormat uint32

const (
	PixelFormatRGBA PixelFormat = 0
	PixelFormatBGRA PixelFormat = 1
)

// RawFrame is a view onto one triple-buffer slot for the duration of a
// single encode step. Data is only valid until the caller returns control
// to the shared-memory reader; callers must not retain it.
type RawFrame struct {
	Data        []byte
	Width       int
	Height      int
	Stride      int
	Format      PixelFormat
	FrameCount  uint64
	TimestampUs uint64
}

// PlanarYUV420 is a reusable BT.601 limited-range 4:2:0 scratch buffer
// produced by the color converter and consumed by the encoder driver.
type PlanarYUV420 struct {
	Y, U, V             []byte
	YStride, UVStride   int
	Width, Height       int
}

// EncodedFrame is one encoder output: a complete access unit plus enough
// metadata for the packetizer and orchestrator to act on it.
type EncodedFrame struct {
	Data       []byte
	IsKeyframe bool
	FrameNum   uint64
	Width      int
	Height     int
}

// NAL unit type constants (H.264, ITU-T H.264 Table 7-1), used by both
// the encoder driver's keyframe detection and the packetizer.
const (
	NALTypeSlice     uint8 = 1
	NALTypeIDR       uint8 = 5
	NALTypeSEI       uint8 = 6
	NALTypeSPS       uint8 = 7
	NALTypePPS       uint8 = 8
	NALTypeAUD       uint8 = 9
	NALTypeEndSeq    uint8 = 10
	NALTypeEndStream uint8 = 11
	NALTypeFiller    uint8 = 12
)

// StreamConfig aggregates the runtime configuration handed to the
// orchestrator at startup.
type StreamConfig struct {
	VideoShmName  string
	AudioShmName  string
	ControlSock   string
	HTTPAddr      string
	SignalingAddr string
	MetricsAddr   string
	EmulatorPath  string
	PrefsPath     string
	AutoStart     bool
	MaxPeers      int
	StunServers   []string
	Bitrate       int
	FPS           int
}
