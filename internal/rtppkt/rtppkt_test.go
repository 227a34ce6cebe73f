package rtppkt

import "testing"

func TestPacketizeContiguousSequence(t *testing.T) {
	p := New(0x1234, 30, CodecVP8)
	frame := make([]byte, MTU*3) // spans multiple fragments
	for i := range frame {
		frame[i] = byte(i)
	}

	packets := p.Packetize(frame)
	if len(packets) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(packets))
	}

	for i := 1; i < len(packets); i++ {
		if packets[i].SequenceNumber != packets[i-1].SequenceNumber+1 {
			t.Fatalf("sequence gap at %d: %d -> %d", i, packets[i-1].SequenceNumber, packets[i].SequenceNumber)
		}
	}
}

func TestPacketizeMarkerOnlyOnLast(t *testing.T) {
	p := New(1, 30, CodecVP8)
	frame := make([]byte, MTU*2)
	packets := p.Packetize(frame)

	markers := 0
	for i, pkt := range packets {
		if pkt.Marker {
			markers++
			if i != len(packets)-1 {
				t.Fatalf("marker set on non-final fragment %d/%d", i, len(packets)-1)
			}
		}
	}
	if markers != 1 {
		t.Fatalf("expected exactly one marker, got %d", markers)
	}
}

func TestPacketizeSharedTimestamp(t *testing.T) {
	p := New(1, 30, CodecVP8)
	frame := make([]byte, MTU*2)
	packets := p.Packetize(frame)

	for i := 1; i < len(packets); i++ {
		if packets[i].Timestamp != packets[0].Timestamp {
			t.Fatalf("timestamp differs within one frame: %d vs %d", packets[i].Timestamp, packets[0].Timestamp)
		}
	}
}

func TestPacketizeTimestampAdvancesBetweenFrames(t *testing.T) {
	p := New(1, 30, CodecVP8)
	first := p.Packetize([]byte{1, 2, 3})
	second := p.Packetize([]byte{4, 5, 6})

	wantStep := uint32(ClockRate / 30)
	if second[0].Timestamp-first[0].Timestamp != wantStep {
		t.Fatalf("timestamp step = %d, want %d", second[0].Timestamp-first[0].Timestamp, wantStep)
	}
}

func TestPacketizeStartBitOnlyOnFirstFragment(t *testing.T) {
	p := New(1, 30, CodecVP8)
	frame := make([]byte, MTU*2)
	packets := p.Packetize(frame)

	if packets[0].Payload[0]&0x10 == 0 {
		t.Fatalf("first fragment missing start-of-partition bit")
	}
	for i := 1; i < len(packets); i++ {
		if packets[i].Payload[0]&0x10 != 0 {
			t.Fatalf("fragment %d unexpectedly has start-of-partition bit", i)
		}
	}
}

func TestPacketizeEmptyFrame(t *testing.T) {
	p := New(1, 30, CodecVP8)
	if packets := p.Packetize(nil); packets != nil {
		t.Fatalf("expected no packets for empty frame, got %d", len(packets))
	}
}

func TestPacketizeSequenceWraps(t *testing.T) {
	p := New(1, 30, CodecVP8)
	p.seq = 65535
	packets := p.Packetize([]byte{1, 2, 3})
	if packets[0].SequenceNumber != 65535 {
		t.Fatalf("first sequence = %d, want 65535", packets[0].SequenceNumber)
	}

	next := p.Packetize([]byte{4, 5, 6})
	if next[0].SequenceNumber != 0 {
		t.Fatalf("sequence did not wrap: got %d", next[0].SequenceNumber)
	}
}

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, nal := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, nal...)
	}
	return out
}

func TestPacketizeH264SingleNALUnit(t *testing.T) {
	p := New(1, 30, CodecH264)
	sps := append([]byte{0x67}, make([]byte, 10)...) // NAL type 7 (SPS)
	frame := annexB(sps)

	packets := p.Packetize(frame)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet for a small NAL unit, got %d", len(packets))
	}
	if packets[0].Payload[0] != sps[0] {
		t.Fatalf("single NAL unit packet must start with the original NAL header, got %#x", packets[0].Payload[0])
	}
	if !packets[0].Marker {
		t.Fatalf("marker must be set on the only/last packet of the frame")
	}
}

func TestPacketizeH264FragmentsLargeNAL(t *testing.T) {
	p := New(1, 30, CodecH264)
	idrHeader := byte(0x65) // forbidden=0, nal_ref_idc=3, type=5 (IDR)
	idr := append([]byte{idrHeader}, make([]byte, MTU*2)...)
	frame := annexB(idr)

	packets := p.Packetize(frame)
	if len(packets) < 2 {
		t.Fatalf("expected FU-A fragmentation for an oversized NAL, got %d packet(s)", len(packets))
	}

	first := packets[0].Payload
	if first[0]&0x1F != fuIndicatorType {
		t.Fatalf("first fragment indicator type = %d, want %d", first[0]&0x1F, fuIndicatorType)
	}
	if first[1]&0x80 == 0 {
		t.Fatalf("first fragment missing FU-A start bit")
	}
	if first[1]&0x1F != idrHeader&0x1F {
		t.Fatalf("FU header NAL type = %d, want %d", first[1]&0x1F, idrHeader&0x1F)
	}

	last := packets[len(packets)-1].Payload
	if last[1]&0x40 == 0 {
		t.Fatalf("last fragment missing FU-A end bit")
	}
	if !packets[len(packets)-1].Marker {
		t.Fatalf("marker must be set on the frame's final packet")
	}

	for i, pkt := range packets[:len(packets)-1] {
		if pkt.Marker {
			t.Fatalf("marker set on non-final fragment %d", i)
		}
	}
}

func TestPacketizeH264MultipleNALUnitsShareOneFrameMarker(t *testing.T) {
	p := New(1, 30, CodecH264)
	sps := []byte{0x67, 0x01, 0x02}
	pps := []byte{0x68, 0x03}
	idr := append([]byte{0x65}, make([]byte, 4)...)
	frame := annexB(sps, pps, idr)

	packets := p.Packetize(frame)
	if len(packets) != 3 {
		t.Fatalf("expected 3 single-NAL packets, got %d", len(packets))
	}
	for i, pkt := range packets[:len(packets)-1] {
		if pkt.Marker {
			t.Fatalf("marker set on non-final NAL unit packet %d", i)
		}
	}
	if !packets[len(packets)-1].Marker {
		t.Fatalf("marker must be set on the last NAL unit of the access unit")
	}
}
