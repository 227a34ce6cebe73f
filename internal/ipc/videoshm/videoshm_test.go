package videoshm

import (
	"encoding/binary"
	"testing"

	"github.com/realhidden/macemu/pkg/types"
)

func testName(t *testing.T) string {
	return "/macemu_test_" + t.Name()
}

func TestCreateStampsHeader(t *testing.T) {
	name := testName(t)
	ch, err := Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ch.Close()

	buf := ch.region.Data
	if got := binary.LittleEndian.Uint32(buf[offMagic:]); got != Magic {
		t.Fatalf("magic = %#x, want %#x", got, Magic)
	}
	if got := binary.LittleEndian.Uint32(buf[offVersion:]); got != Version {
		t.Fatalf("version = %d, want %d", got, Version)
	}
}

func TestGeometryUnpublishedIsZero(t *testing.T) {
	name := testName(t)
	ch, err := Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ch.Close()

	w, h, _, _ := ch.Geometry()
	if w != 0 || h != 0 {
		t.Fatalf("geometry = %dx%d, want 0x0 before any publish", w, h)
	}

	raw, err := ch.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if raw.Width != 0 || raw.Height != 0 || raw.Data != nil {
		t.Fatalf("expected zero-value frame before publish, got %+v", raw)
	}
}

// publish writes a small solid-color frame into the slot after the one
// write_index names, then points write_index at that slot and bumps
// frame_count, mirroring the emulator-side writer protocol.
func publish(ch *Channel, width, height int, fill byte) {
	buf := ch.region.Data
	stride := width * BytesPerPixel

	binary.LittleEndian.PutUint32(buf[offWidth:], uint32(width))
	binary.LittleEndian.PutUint32(buf[offHeight:], uint32(height))
	binary.LittleEndian.PutUint32(buf[offStride:], uint32(stride))
	binary.LittleEndian.PutUint32(buf[offFormat:], uint32(types.PixelFormatRGBA))

	idx := atomicLoadU32(buf, offWriteIndex)
	nextIdx := (idx + 1) % 3

	slotStart := offFrames + int(nextIdx)*MaxFrameSize
	slot := buf[slotStart : slotStart+stride*height]
	for i := range slot {
		slot[i] = fill
	}

	atomicStoreU32(buf, offWriteIndex, nextIdx)
	atomicStoreU64(buf, offFrameCount, atomicLoadU64(buf, offFrameCount)+1)
}

func TestReadCurrentFollowsWriteIndex(t *testing.T) {
	name := testName(t)
	ch, err := Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ch.Close()

	publish(ch, 4, 2, 0xAB)

	raw, err := ch.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if raw.Width != 4 || raw.Height != 2 {
		t.Fatalf("geometry = %dx%d, want 4x2", raw.Width, raw.Height)
	}
	if len(raw.Data) != raw.Stride*raw.Height {
		t.Fatalf("data len = %d, want %d", len(raw.Data), raw.Stride*raw.Height)
	}
	for i, b := range raw.Data {
		if b != 0xAB {
			t.Fatalf("data[%d] = %#x, want 0xab", i, b)
		}
	}
}

func TestFrameCountIsMonotonicEdgeTrigger(t *testing.T) {
	name := testName(t)
	ch, err := Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ch.Close()

	if ch.FrameCount() != 0 {
		t.Fatalf("initial frame count = %d, want 0", ch.FrameCount())
	}

	publish(ch, 2, 2, 1)
	first := ch.FrameCount()
	if first != 1 {
		t.Fatalf("frame count after one publish = %d, want 1", first)
	}

	if ch.FrameCount() != first {
		t.Fatalf("frame count changed without a publish")
	}

	publish(ch, 2, 2, 2)
	if ch.FrameCount() != 2 {
		t.Fatalf("frame count after second publish = %d, want 2", ch.FrameCount())
	}
}

func TestReadCurrentRejectsBadHeader(t *testing.T) {
	name := testName(t)
	ch, err := Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ch.Close()

	binary.LittleEndian.PutUint32(ch.region.Data[offMagic:], 0xDEADBEEF)

	if _, err := ch.ReadCurrent(); err == nil {
		t.Fatal("expected error for corrupted magic")
	}
}
