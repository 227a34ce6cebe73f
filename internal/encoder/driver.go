package encoder

import (
	"github.com/realhidden/macemu/internal/colorconv"
	"github.com/realhidden/macemu/internal/logger"
	"github.com/realhidden/macemu/pkg/types"
)

const logModule = "Encoder"

// AutoKeyframeDistance is the codec's kf_max_dist — an automatic
// keyframe is produced at least this often regardless of scene change.
const AutoKeyframeDistance = 15

// DefaultBitrateKbps matches the original server's default target.
const DefaultBitrateKbps = 2000

// Driver owns encoder lifecycle policy: lazy/re- initialization on
// geometry change, the forced-keyframe flag (set on construction so
// the first frame is always a keyframe and again on RequestKeyframe),
// and the reusable color-conversion scratch buffer.
type Driver struct {
	codec       Codec
	fps         int
	bitrateKbps int

	width, height int
	scratch       *types.PlanarYUV420

	forceKeyframe bool
	frameNum      uint64
}

// NewDriver wraps codec with the policy described in spec.md §4.5.
// The forced-keyframe flag starts set so the first encoded frame is
// always a keyframe.
func NewDriver(codec Codec, fps, bitrateKbps int) *Driver {
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}
	return &Driver{
		codec:         codec,
		fps:           fps,
		bitrateKbps:   bitrateKbps,
		forceKeyframe: true,
	}
}

// RequestKeyframe sets a flag honored on the next Encode call.
func (d *Driver) RequestKeyframe() {
	d.forceKeyframe = true
}

// Encode converts src to planar YUV420 and compresses it. If src's
// geometry differs from the last call, the codec is reinitialized
// (and the next frame is necessarily a keyframe).
func (d *Driver) Encode(src types.RawFrame) (types.EncodedFrame, error) {
	if src.Width != d.width || src.Height != d.height {
		if err := d.codec.Init(src.Width, src.Height, d.fps, d.bitrateKbps); err != nil {
			return types.EncodedFrame{}, err
		}
		d.width, d.height = src.Width, src.Height
		d.scratch = colorconv.NewScratch(src.Width, src.Height)
		d.forceKeyframe = true
		logger.Info(logModule, "reinitialized for %dx%d", src.Width, src.Height)
	}

	colorconv.Convert(src.Data, src.Width, src.Height, src.Stride, src.Format, d.scratch)

	force := d.forceKeyframe
	d.forceKeyframe = false

	data, err := d.codec.Encode(d.scratch, force)
	if err != nil {
		logger.Warn(logModule, "encode failed: %v", err)
		return types.EncodedFrame{}, nil // orchestrator treats as skip
	}
	if len(data) == 0 {
		return types.EncodedFrame{}, nil
	}

	out := types.EncodedFrame{
		Data:       data,
		IsKeyframe: d.codec.IsKeyframe(data),
		FrameNum:   d.frameNum,
		Width:      src.Width,
		Height:     src.Height,
	}
	d.frameNum++
	return out, nil
}

// Close releases the underlying codec.
func (d *Driver) Close() error {
	return d.codec.Close()
}

// CodecName reports which codec this driver wraps, so callers that
// need a codec-specific rule (RTP packetization) don't have to
// duplicate the choice made at construction.
func (d *Driver) CodecName() Name {
	return d.codec.Name()
}
