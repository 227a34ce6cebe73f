package encoder

import "bytes"

var (
	startCode3 = []byte{0x00, 0x00, 0x01}
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
)

// nalUnit is one parsed NAL unit including its start code.
type nalUnit struct {
	Type uint8
	Data []byte
}

// headerCache tracks the most recent SPS/PPS NAL units emitted by the
// H.264 codec, so IDR access units that omit them (OpenH264 only
// repeats SPS/PPS on the first IDR of a stream by default) can have
// them prepended before packetization.
type headerCache struct {
	sps []byte
	pps []byte
}

func (h *headerCache) observe(data []byte) {
	for _, nal := range parseNALUnits(data) {
		switch nal.Type {
		case 7: // SPS
			h.sps = append([]byte(nil), nal.Data...)
		case 8: // PPS
			h.pps = append([]byte(nil), nal.Data...)
		}
	}
}

// prependIfIDR returns data with cached SPS/PPS prepended when data
// contains an IDR NAL unit and headers are cached but absent from
// data itself.
func (h *headerCache) prependIfIDR(data []byte) []byte {
	if len(h.sps) == 0 || len(h.pps) == 0 {
		return data
	}

	hasIDR, hasSPS := false, false
	for _, nal := range parseNALUnits(data) {
		if nal.Type == 5 {
			hasIDR = true
		}
		if nal.Type == 7 {
			hasSPS = true
		}
	}
	if !hasIDR || hasSPS {
		return data
	}

	out := make([]byte, 0, len(h.sps)+len(h.pps)+len(data))
	out = append(out, h.sps...)
	out = append(out, h.pps...)
	out = append(out, data...)
	return out
}

func parseNALUnits(data []byte) []nalUnit {
	var units []nalUnit
	offset := 0

	for offset < len(data) {
		scLen := 0
		if offset+4 <= len(data) && bytes.Equal(data[offset:offset+4], startCode4) {
			scLen = 4
		} else if offset+3 <= len(data) && bytes.Equal(data[offset:offset+3], startCode3) {
			scLen = 3
		} else {
			offset++
			continue
		}

		start := offset
		headerOff := offset + scLen
		if headerOff >= len(data) {
			break
		}

		nalType := data[headerOff] & 0x1F
		next := findNextStartCode(data, headerOff+1)
		end := next
		if end == -1 {
			end = len(data)
		}

		units = append(units, nalUnit{Type: nalType, Data: data[start:end]})
		offset = end
	}

	return units
}

func findNextStartCode(data []byte, offset int) int {
	for i := offset; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 {
			if data[i+2] == 1 {
				return i
			}
			if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				return i
			}
		}
	}
	return -1
}
