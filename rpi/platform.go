package rpi

import (
	"fmt"
	"log"

	"multispi/core"
)

// Config selects the hardware resources a platform instance owns.
type Config struct {
	// DMAChannel is the DMA channel to claim, 0..15. Zero value picks
	// DefaultDMAChannel. Make sure nothing else (the firmware, the SD
	// card driver) uses it.
	DMAChannel int

	// Model overrides hardware detection; zero value detects from
	// /proc/cpuinfo.
	Model Model
}

// Platform owns the process-side hardware handles: the GPIO mapping,
// the mailbox and every mapped register window. One engine consumes
// one Platform.
type Platform struct {
	model Model
	pins  *pins
	regs  *regMapper
	mbox  *mailbox
	plat  core.Platform
}

// Open prepares the platform services for one engine.
func Open(cfg Config) (*Platform, error) {
	model := cfg.Model
	if model == 0 {
		model = DetectModel()
	}
	channel := cfg.DMAChannel
	if channel == 0 {
		channel = DefaultDMAChannel
	}
	if channel < 0 || channel > 15 {
		return nil, fmt.Errorf("DMA channel %d out of range 0..15", channel)
	}
	log.Printf("rpi: %s, peripherals at %#08x, DMA channel %d", model, model.periBase(), channel)

	mbox, err := openMailbox()
	if err != nil {
		return nil, err
	}

	p := &Platform{
		model: model,
		pins:  &pins{periBase: model.periBase()},
		regs:  &regMapper{},
		mbox:  mbox,
	}
	p.plat = core.Platform{
		Pins: p.pins,
		Mem:  &coherentAlloc{mbox: mbox, model: model},
		Regs: p.regs,
		HW: core.HardwareMap{
			GPIOSetBus:  gpioBusAddr + gpioSetOffset,
			DMAChanPhys: dmaChanPhys(model.periBase(), channel),
		},
	}
	return p, nil
}

// Core returns the platform in the form the engine consumes.
func (p *Platform) Core() core.Platform { return p.plat }

// Model returns the detected or configured Pi generation.
func (p *Platform) Model() Model { return p.model }

// NewEngine creates an engine owning this platform, clocking all
// channels from clockPin.
func (p *Platform) NewEngine(clockPin core.Pin) (*core.Engine, error) {
	return core.New(p.plat, clockPin)
}

// Close releases the GPIO mapping, register windows and the mailbox.
// Engines created from this platform must be closed first.
func (p *Platform) Close() error {
	err := p.pins.Close()
	if e := p.regs.Close(); err == nil {
		err = e
	}
	if e := p.mbox.Close(); err == nil {
		err = e
	}
	return err
}
