// Package audioshm implements the shared-memory audio ring buffer
// referenced by spec.md's data model (Audio Ring), defined here for
// completeness alongside the video channel even though the pipeline
// orchestrator does not currently consume it (no audio encoder/track is
// wired in the v1 pipeline).
package audioshm

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/realhidden/macemu/internal/shmutil"
)

const (
	Magic   uint32 = 0x4D415544 // "MAUD"
	Version uint32 = 1

	Capacity = 65536

	FormatS16LE uint32 = 0
	FormatF32LE uint32 = 1

	offMagic      = 0
	offVersion    = 4
	offSampleRate = 8
	offChannels   = 12
	offFormat     = 16
	offBufSize    = 20
	offReserved   = 24 // 8 bytes
	offWritePos   = 32
	offReadPos    = 36
	offSampleCnt  = 40
	offRing       = 48

	HeaderSize = offRing
	TotalSize  = HeaderSize + Capacity
)

// Ring owns the mapped audio region on the server side.
type Ring struct {
	region *shmutil.Region
}

// Create unlinks any stale region under name and creates a fresh one,
// stamped with the given sample rate / channel count / sample format.
func Create(name string, sampleRate, channels int, format uint32) (*Ring, error) {
	_ = shmutil.Unlink(name)

	region, err := shmutil.Create(name, TotalSize)
	if err != nil {
		return nil, fmt.Errorf("audioshm: create %s: %w", name, err)
	}

	buf := region.Data
	binary.LittleEndian.PutUint32(buf[offMagic:], Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], Version)
	binary.LittleEndian.PutUint32(buf[offSampleRate:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[offChannels:], uint32(channels))
	binary.LittleEndian.PutUint32(buf[offFormat:], format)
	binary.LittleEndian.PutUint32(buf[offBufSize:], Capacity)
	atomicStoreU32(buf, offWritePos, 0)
	atomicStoreU32(buf, offReadPos, 0)
	atomicStoreU64(buf, offSampleCnt, 0)

	return &Ring{region: region}, nil
}

// Close unmaps and unlinks the region.
func (r *Ring) Close() error {
	name := r.region.Name
	if err := r.region.Close(); err != nil {
		return err
	}
	return shmutil.Unlink(name)
}

// Available returns the number of bytes the reader has not yet consumed.
func Available(writePos, readPos uint32) int {
	if writePos >= readPos {
		return int(writePos - readPos)
	}
	return int(Capacity - readPos + writePos)
}

// Free returns the number of bytes the writer may still produce before
// catching up to the reader, reserving one byte to disambiguate full
// from empty.
func Free(writePos, readPos uint32) int {
	return Capacity - Available(writePos, readPos) - 1
}

// Positions reads the current write/read cursor atomically.
func (r *Ring) Positions() (writePos, readPos uint32) {
	buf := r.region.Data
	return atomicLoadU32(buf, offWritePos), atomicLoadU32(buf, offReadPos)
}

// Read copies up to len(dst) unread bytes starting at the current read
// cursor and advances it. It returns the number of bytes copied.
func (r *Ring) Read(dst []byte) int {
	buf := r.region.Data
	writePos, readPos := r.Positions()

	n := Available(writePos, readPos)
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}

	ring := buf[offRing : offRing+Capacity]
	for i := 0; i < n; i++ {
		dst[i] = ring[(int(readPos)+i)%Capacity]
	}

	atomicStoreU32(buf, offReadPos, (readPos+uint32(n))%Capacity)
	return n
}

func atomicLoadU32(buf []byte, off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[off])))
}

func atomicStoreU32(buf []byte, off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&buf[off])), v)
}

func atomicStoreU64(buf []byte, off int, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&buf[off])), v)
}
