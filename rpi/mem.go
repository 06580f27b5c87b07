package rpi

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// mapMem maps a physical address range from /dev/mem. The mapping must
// start on a page boundary, so the address is rounded down and the
// returned offset points at phys within the mapping.
func mapMem(phys uintptr, size int) (mmap.MMap, uintptr, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("opening /dev/mem (are you root?): %w", err)
	}
	defer f.Close()

	pageMask := ^uintptr(pageSize - 1)
	base := phys & pageMask
	size += int(phys - base)
	mm, err := mmap.MapRegion(f, size, mmap.RDWR, 0, int64(base))
	if err != nil {
		return nil, 0, fmt.Errorf("mapping %d bytes at %#08x: %w", size, base, err)
	}
	return mm, phys - base, nil
}

// regMapper implements core.RegisterMapper. It keeps every mapping
// alive until Close so the register structs overlaid on the windows
// stay valid.
type regMapper struct {
	maps []mmap.MMap
}

func (r *regMapper) MapWindow(phys uintptr, size int) ([]byte, error) {
	mm, offs, err := mapMem(phys, size)
	if err != nil {
		return nil, err
	}
	r.maps = append(r.maps, mm)
	return mm[offs : offs+uintptr(size)], nil
}

func (r *regMapper) Close() error {
	var first error
	for _, mm := range r.maps {
		if err := mm.Unmap(); err != nil && first == nil {
			first = err
		}
	}
	r.maps = nil
	return first
}
