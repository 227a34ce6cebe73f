package audioshm

import "testing"

func TestAvailableNoWrap(t *testing.T) {
	if got := Available(100, 40); got != 60 {
		t.Fatalf("Available(100, 40) = %d, want 60", got)
	}
}

func TestAvailableWrapped(t *testing.T) {
	// readPos ahead of writePos means the write cursor has wrapped.
	got := Available(10, Capacity-5)
	want := 15
	if got != want {
		t.Fatalf("Available(10, Capacity-5) = %d, want %d", got, want)
	}
}

func TestFreeReservesOneByte(t *testing.T) {
	// Equal cursors mean the ring is empty: all but one byte is free.
	if got := Free(0, 0); got != Capacity-1 {
		t.Fatalf("Free(0, 0) = %d, want %d", got, Capacity-1)
	}
}

func TestCreateAndRead(t *testing.T) {
	name := "/macemu_test_audio_" + t.Name()
	ring, err := Create(name, 44100, 2, FormatS16LE)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer ring.Close()

	buf := ring.region.Data
	payload := []byte{1, 2, 3, 4, 5}
	copy(buf[offRing:], payload)
	atomicStoreU32(buf, offWritePos, uint32(len(payload)))

	dst := make([]byte, 3)
	n := ring.Read(dst)
	if n != 3 {
		t.Fatalf("Read returned %d, want 3", n)
	}
	if dst[0] != 1 || dst[1] != 2 || dst[2] != 3 {
		t.Fatalf("Read data = %v, want [1 2 3]", dst)
	}

	_, readPos := ring.Positions()
	if readPos != 3 {
		t.Fatalf("readPos = %d, want 3", readPos)
	}

	rest := make([]byte, 10)
	n = ring.Read(rest)
	if n != 2 {
		t.Fatalf("second Read returned %d, want 2", n)
	}
	if rest[0] != 4 || rest[1] != 5 {
		t.Fatalf("second Read data = %v, want [4 5 ...]", rest[:2])
	}
}
