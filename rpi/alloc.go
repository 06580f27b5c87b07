package rpi

import (
	"fmt"

	mmap "github.com/edsrzf/mmap-go"

	"multispi/core"
)

// coherentAlloc implements core.CoherentAllocator with VideoCore
// mailbox memory: allocated and locked through the firmware, then
// mapped uncached into this process.
type coherentAlloc struct {
	mbox  *mailbox
	model Model
}

// busToPhys strips the VideoCore bus aliasing bits off a bus address,
// yielding the physical address /dev/mem understands.
func busToPhys(bus uint32) uintptr {
	return uintptr(bus &^ 0xC0000000)
}

// roundToPages rounds a byte count up to whole pages, which is the
// granularity the firmware allocates in anyway.
func roundToPages(size int) int {
	return (size + pageSize - 1) &^ (pageSize - 1)
}

func (a *coherentAlloc) Alloc(size int) (core.MemBlock, error) {
	size = roundToPages(size)
	handle, err := a.mbox.alloc(uint32(size), pageSize, a.model.memFlags())
	if err != nil {
		return nil, err
	}
	bus, err := a.mbox.lock(handle)
	if err != nil {
		a.mbox.free(handle)
		return nil, err
	}
	mm, offs, err := mapMem(busToPhys(bus), size)
	if err != nil {
		a.mbox.unlock(handle)
		a.mbox.free(handle)
		return nil, fmt.Errorf("mapping coherent block: %w", err)
	}
	return &memBlock{
		mbox:   a.mbox,
		handle: handle,
		bus:    bus,
		mem:    mm,
		buf:    mm[offs : offs+uintptr(size)],
	}, nil
}

// memBlock is one locked, mapped mailbox allocation.
type memBlock struct {
	mbox   *mailbox
	handle uint32
	bus    uint32
	mem    mmap.MMap
	buf    []byte
}

func (b *memBlock) Bytes() []byte { return b.buf }

// PhysAddr returns the bus address of an offset into the block, the
// address space DMA descriptors are expressed in.
func (b *memBlock) PhysAddr(offset int) uint32 {
	return b.bus + uint32(offset)
}

func (b *memBlock) Close() error {
	if b.mem == nil {
		return nil
	}
	err := b.mem.Unmap()
	b.mem = nil
	b.buf = nil
	if e := b.mbox.unlock(b.handle); err == nil {
		err = e
	}
	if e := b.mbox.free(b.handle); err == nil {
		err = e
	}
	return err
}
