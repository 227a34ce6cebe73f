// Package rtppkt fragments encoded video frames into RTP packets
// (spec component C6): MTU-bounded fragmentation, payload type 96, a
// marker bit on the last fragment of a frame, and a codec-specific
// one-byte payload descriptor (VP8) or RFC 6184 FU-A/single-NAL-unit
// framing (H.264).
package rtppkt

import "github.com/pion/rtp"

const (
	// MTU bounds each packet including the 12-byte RTP header and
	// whatever payload descriptor/FU header the codec adds.
	MTU = 1200
	// PayloadTypeVideo is the dynamic payload type used for both VP8
	// and H.264 in this gateway (no rtpmap negotiation beyond what the
	// signaling dialect hard-codes).
	PayloadTypeVideo = 96
	// ClockRate is the RTP media clock for video.
	ClockRate = 90000

	rtpHeaderSize = 12

	// fuIndicatorType marks an RTP payload as an FU-A fragmentation
	// unit (RFC 6184 §5.8).
	fuIndicatorType = 28
)

// Codec names which payload-descriptor rule Packetize applies.
type Codec int

const (
	CodecVP8 Codec = iota
	CodecH264
)

// Packetizer holds the per-stream RTP sender state shared across all
// peers: SSRC, sequence counter and RTP timestamp, all wrapping on
// overflow per spec.md's data model.
type Packetizer struct {
	ssrc      uint32
	seq       uint16
	timestamp uint32
	tsStep    uint32
	codec     Codec
}

// New builds a packetizer for the given SSRC, frame rate and codec. The
// RTP timestamp advances by ClockRate/fps for every encoded frame.
func New(ssrc uint32, fps int, codec Codec) *Packetizer {
	step := uint32(ClockRate / fps)
	if step == 0 {
		step = ClockRate / 30
	}
	return &Packetizer{ssrc: ssrc, tsStep: step, codec: codec}
}

// Packetize fragments one encoded frame into RTP packets. All packets
// of a frame share one timestamp; the sequence counter and timestamp
// both advance monotonically (wrapping) across calls. An empty frame
// produces no packets.
func (p *Packetizer) Packetize(frame []byte) []*rtp.Packet {
	if len(frame) == 0 {
		return nil
	}

	ts := p.timestamp
	p.timestamp += p.tsStep

	var payloads [][]byte
	switch p.codec {
	case CodecH264:
		payloads = h264Payloads(frame)
	default:
		payloads = vp8Payloads(frame)
	}
	if len(payloads) == 0 {
		return nil
	}

	packets := make([]*rtp.Packet, 0, len(payloads))
	for i, payload := range payloads {
		last := i == len(payloads)-1
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         last,
				PayloadType:    PayloadTypeVideo,
				SequenceNumber: p.seq,
				Timestamp:      ts,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		})
		p.seq++
	}

	return packets
}

// vp8Payloads fragments a VP8 frame at MTU boundaries, prefixing the
// first fragment's payload descriptor byte with the start-of-partition
// bit set (RFC 7741 §4.2).
func vp8Payloads(frame []byte) [][]byte {
	maxPayload := MTU - rtpHeaderSize - 1
	var payloads [][]byte

	offset := 0
	first := true
	for offset < len(frame) {
		size := maxPayload
		if remaining := len(frame) - offset; remaining < size {
			size = remaining
		}

		var descriptor byte
		if first {
			descriptor |= 0x10
		}

		payload := make([]byte, 0, 1+size)
		payload = append(payload, descriptor)
		payload = append(payload, frame[offset:offset+size]...)
		payloads = append(payloads, payload)

		offset += size
		first = false
	}

	return payloads
}

// h264Payloads splits an Annex-B access unit into its constituent NAL
// units and packetizes each per RFC 6184: a NAL unit that fits under
// the MTU is sent as a single NAL unit packet (its start code stripped,
// nothing else changed); a larger one is split into FU-A fragments.
func h264Payloads(frame []byte) [][]byte {
	maxSingle := MTU - rtpHeaderSize
	maxFU := MTU - rtpHeaderSize - 2 // FU indicator + FU header bytes

	var payloads [][]byte
	for _, nal := range splitAnnexB(frame) {
		if len(nal) == 0 {
			continue
		}
		if len(nal) <= maxSingle {
			payloads = append(payloads, nal)
			continue
		}
		payloads = append(payloads, fragmentFU(nal, maxFU)...)
	}
	return payloads
}

// fragmentFU splits one NAL unit (header byte + payload) into FU-A
// fragments no larger than maxFU payload bytes each.
func fragmentFU(nal []byte, maxFU int) [][]byte {
	header := nal[0]
	forbiddenAndNRI := header & 0xE0
	nalType := header & 0x1F
	rbsp := nal[1:]

	indicator := forbiddenAndNRI | fuIndicatorType

	var fragments [][]byte
	offset := 0
	for offset < len(rbsp) {
		size := maxFU
		if remaining := len(rbsp) - offset; remaining < size {
			size = remaining
		}
		start := offset == 0
		end := offset+size >= len(rbsp)

		var fuHeader byte = nalType
		if start {
			fuHeader |= 0x80
		}
		if end {
			fuHeader |= 0x40
		}

		frag := make([]byte, 0, 2+size)
		frag = append(frag, indicator, fuHeader)
		frag = append(frag, rbsp[offset:offset+size]...)
		fragments = append(fragments, frag)

		offset += size
	}
	return fragments
}

// splitAnnexB scans a bitstream for 3- or 4-byte start codes and
// returns each NAL unit's header+payload bytes with the start code
// stripped.
func splitAnnexB(data []byte) [][]byte {
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
