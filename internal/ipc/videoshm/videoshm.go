// Package videoshm implements the triple-buffered shared-memory video
// channel (spec component C1): the server creates and owns a named
// POSIX shared-memory region that the emulator writes raw framebuffer
// pixels into, and reads the latest published frame without locks by
// following the writer's write_index and frame_count protocol.
package videoshm

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/realhidden/macemu/internal/shmutil"
	"github.com/realhidden/macemu/pkg/types"
)

const (
	Magic   uint32 = 0x4D454D55 // "MEMU"
	Version uint32 = 1

	MaxWidth      = 3840
	MaxHeight     = 2160
	BytesPerPixel = 4
	MaxFrameSize  = MaxWidth * MaxHeight * BytesPerPixel

	offMagic      = 0
	offVersion    = 4
	offWidth      = 8
	offHeight     = 12
	offStride     = 16
	offFormat     = 20
	offReserved   = 24 // 8 bytes
	offWriteIndex = 32
	offReadIndex  = 36
	offFrameCount = 40
	offTimestamp  = 48
	offFrames     = 56

	HeaderSize = offFrames
	TotalSize  = HeaderSize + 3*MaxFrameSize
)

// Channel owns the mapped region on the server side: it created (or
// re-created) the shared memory, so it is responsible for unlinking it
// on shutdown.
type Channel struct {
	region *shmutil.Region
}

// Create unlinks any stale region under name, creates a fresh one sized
// for the maximum supported resolution, and stamps the header. Creation
// failure is startup-fatal per spec.md §4.1.
func Create(name string) (*Channel, error) {
	_ = shmutil.Unlink(name)

	region, err := shmutil.Create(name, TotalSize)
	if err != nil {
		return nil, fmt.Errorf("videoshm: create %s: %w", name, err)
	}

	buf := region.Data
	binary.LittleEndian.PutUint32(buf[offMagic:], Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], Version)
	binary.LittleEndian.PutUint32(buf[offWidth:], 0)
	binary.LittleEndian.PutUint32(buf[offHeight:], 0)
	binary.LittleEndian.PutUint32(buf[offStride:], 0)
	binary.LittleEndian.PutUint32(buf[offFormat:], uint32(types.PixelFormatRGBA))
	atomicStoreU32(buf, offWriteIndex, 0)
	atomicStoreU32(buf, offReadIndex, 0)
	atomicStoreU64(buf, offFrameCount, 0)
	atomicStoreU64(buf, offTimestamp, 0)

	return &Channel{region: region}, nil
}

// Close unmaps and unlinks the region. Safe to call once at shutdown.
func (c *Channel) Close() error {
	name := c.region.Name
	if err := c.region.Close(); err != nil {
		return err
	}
	return shmutil.Unlink(name)
}

// Geometry reports the currently published width, height and stride.
// A width or height of zero means "not yet published" (spec.md §4.1).
func (c *Channel) Geometry() (width, height, stride int, format types.PixelFormat) {
	buf := c.region.Data
	width = int(binary.LittleEndian.Uint32(buf[offWidth:]))
	height = int(binary.LittleEndian.Uint32(buf[offHeight:]))
	stride = int(binary.LittleEndian.Uint32(buf[offStride:]))
	format = types.PixelFormat(binary.LittleEndian.Uint32(buf[offFormat:]))
	return
}

// FrameCount returns the writer's monotonic frame counter. The reader
// treats a change here as the new-frame edge trigger.
func (c *Channel) FrameCount() uint64 {
	return atomicLoadU64(c.region.Data, offFrameCount)
}

// ReadCurrent returns a view of the slot currently named by write_index.
// The caller must finish using the returned RawFrame (encode it) before
// calling ReadCurrent again, since the writer is free to reuse any slot
// other than the one it is currently naming.
func (c *Channel) ReadCurrent() (types.RawFrame, error) {
	buf := c.region.Data

	magic := binary.LittleEndian.Uint32(buf[offMagic:])
	version := binary.LittleEndian.Uint32(buf[offVersion:])
	if magic != Magic || version != Version {
		return types.RawFrame{}, fmt.Errorf("videoshm: bad header magic=%#x version=%d", magic, version)
	}

	idx := atomicLoadU32(buf, offWriteIndex)
	if idx > 2 {
		return types.RawFrame{}, fmt.Errorf("videoshm: write_index out of range: %d", idx)
	}

	width := int(binary.LittleEndian.Uint32(buf[offWidth:]))
	height := int(binary.LittleEndian.Uint32(buf[offHeight:]))
	stride := int(binary.LittleEndian.Uint32(buf[offStride:]))
	format := types.PixelFormat(binary.LittleEndian.Uint32(buf[offFormat:]))
	frameCount := atomicLoadU64(buf, offFrameCount)
	timestampUs := atomicLoadU64(buf, offTimestamp)

	slotSize := stride * height
	if width == 0 || height == 0 || slotSize <= 0 || slotSize > MaxFrameSize {
		return types.RawFrame{Width: width, Height: height, FrameCount: frameCount}, nil
	}

	slotStart := offFrames + int(idx)*MaxFrameSize
	data := buf[slotStart : slotStart+slotSize]

	return types.RawFrame{
		Data:        data,
		Width:       width,
		Height:      height,
		Stride:      stride,
		Format:      format,
		FrameCount:  frameCount,
		TimestampUs: timestampUs,
	}, nil
}

func atomicLoadU32(buf []byte, off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[off])))
}

func atomicStoreU32(buf []byte, off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&buf[off])), v)
}

func atomicLoadU64(buf []byte, off int) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&buf[off])))
}

func atomicStoreU64(buf []byte, off int, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&buf[off])), v)
}
