package core

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

// Mock platform: pin configurer, coherent allocator and register
// mapper backed by plain memory, so the whole engine lifecycle runs
// without hardware.

type mockPins struct {
	initErr  error
	reserved map[Pin]bool
}

func newMockPins() *mockPins {
	return &mockPins{reserved: make(map[Pin]bool)}
}

func (m *mockPins) Init() error { return m.initErr }

func (m *mockPins) ReserveOutput(pin Pin) error {
	if m.reserved[pin] {
		return fmt.Errorf("pin %d already reserved", pin)
	}
	m.reserved[pin] = true
	return nil
}

type mockBlock struct {
	buf    []byte
	base   uint32
	closed bool
}

func (b *mockBlock) Bytes() []byte { return b.buf }

func (b *mockBlock) PhysAddr(off int) uint32 { return b.base + uint32(off) }

func (b *mockBlock) Close() error {
	b.closed = true
	return nil
}

type mockAlloc struct {
	err    error
	blocks []*mockBlock
}

func (a *mockAlloc) Alloc(size int) (MemBlock, error) {
	if a.err != nil {
		return nil, a.err
	}
	// Arbitrary nonzero fake bus addresses, one region per block.
	b := &mockBlock{buf: make([]byte, size), base: 0x40000000 + uint32(len(a.blocks))<<24}
	a.blocks = append(a.blocks, b)
	return b, nil
}

// virt resolves a fake bus address back into mock memory, the inverse
// of PhysAddr. Tests use it to follow the descriptor chain the way the
// hardware would.
func (a *mockAlloc) virt(bus uint32) []byte {
	for _, b := range a.blocks {
		off := int64(bus) - int64(b.base)
		if off >= 0 && off < int64(len(b.buf)) {
			return b.buf[off:]
		}
	}
	return nil
}

type mockRegs struct {
	err error
	win []byte
}

func newMockRegs() *mockRegs {
	return &mockRegs{win: make([]byte, dmaChannelSize)}
}

func (r *mockRegs) MapWindow(phys uintptr, size int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.win, nil
}

func (r *mockRegs) channel() *dmaChannel {
	return (*dmaChannel)(unsafe.Pointer(&r.win[0]))
}

// completeNext stands in for the hardware: once the engine raises the
// active bit, clear it (clean completion) or raise the error flag.
func (r *mockRegs) completeNext(withError bool) {
	d := r.channel()
	go func() {
		for i := 0; i < 1000000; i++ {
			cs := atomic.LoadUint32(&d.cs)
			if cs&dmaCSActive != 0 {
				if withError {
					atomic.StoreUint32(&d.cs, cs|dmaCSError)
				} else {
					atomic.StoreUint32(&d.cs, (cs&^dmaCSActive)|dmaCSEnd)
				}
				return
			}
			time.Sleep(time.Microsecond)
		}
	}()
}

type mockHW struct {
	pins *mockPins
	mem  *mockAlloc
	regs *mockRegs
}

func newMockHW() *mockHW {
	return &mockHW{pins: newMockPins(), mem: &mockAlloc{}, regs: newMockRegs()}
}

func (m *mockHW) platform() Platform {
	return Platform{
		Pins: m.pins,
		Mem:  m.mem,
		Regs: m.regs,
		HW: HardwareMap{
			GPIOSetBus:  0x7E20001C,
			DMAChanPhys: 0x3F007500,
		},
	}
}
