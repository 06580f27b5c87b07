package rpi

import (
	"errors"
	"fmt"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"

	"multispi/core"
)

// pins implements core.PinConfigurer over the GPIO function-select
// registers.
type pins struct {
	periBase uintptr
	mem      mmap.MMap
	port     []uint32
	reserved uint32
}

func (p *pins) Init() error {
	if p.port != nil {
		return nil
	}
	mm, offs, err := mapMem(p.periBase+gpioOffset, pageSize)
	if err != nil {
		return fmt.Errorf("GPIO registers: %w", err)
	}
	p.mem = mm
	p.port = unsafe.Slice((*uint32)(unsafe.Pointer(&mm[offs])), pageSize/4)
	return nil
}

func (p *pins) ReserveOutput(pin core.Pin) error {
	if p.port == nil {
		return errors.New("pin subsystem not initialized")
	}
	if pin > 31 || validPins&(1<<pin) == 0 {
		return fmt.Errorf("pin %d is not usable on this header", pin)
	}
	if p.reserved&(1<<pin) != 0 {
		return fmt.Errorf("pin %d already reserved", pin)
	}

	// Function select: three bits per pin, ten pins per register.
	// Always select input first, then output.
	reg := pin / 10
	shift := (pin % 10) * 3
	p.port[reg] &^= 7 << shift
	p.port[reg] |= 1 << shift

	p.reserved |= 1 << pin
	return nil
}

func (p *pins) Close() error {
	if p.mem == nil {
		return nil
	}
	err := p.mem.Unmap()
	p.mem = nil
	p.port = nil
	return err
}
