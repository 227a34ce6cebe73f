package encoder

import "github.com/realhidden/macemu/pkg/types"

// IsKeyframeVP8 inspects the first byte of a VP8 frame tag: the low
// bit is an *inverse* keyframe flag (0 means keyframe).
func IsKeyframeVP8(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return data[0]&0x01 == 0
}

// IsKeyframeH264 reports whether an H.264 access unit contains an IDR
// NAL unit, scanning past any SPS/PPS/AUD/SEI units that may precede
// it in the same access unit.
func IsKeyframeH264(data []byte) bool {
	for _, nal := range splitNALUnits(data) {
		if len(nal) == 0 {
			continue
		}
		if nal[0]&0x1F == types.NALTypeIDR {
			return true
		}
	}
	return false
}

// splitNALUnits scans an Annex-B bitstream (runs of 0x00 0x00 0x01 or
// 0x00 0x00 0x00 0x01 start codes) and returns each NAL unit's payload
// (without the start code).
func splitNALUnits(data []byte) [][]byte {
	var starts []int
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			starts = append(starts, i+3)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	units := make([][]byte, 0, len(starts))
	for i, start := range starts {
		end := len(data)
		if i+1 < len(starts) {
			// Back off over the next start code (3 or 4 bytes,
			// whichever immediately precedes the next unit's start).
			next := starts[i+1] - 3
			if next > 0 && data[next-1] == 0 {
				next--
			}
			end = next
		}
		if start < end {
			units = append(units, data[start:end])
		}
	}
	return units
}
