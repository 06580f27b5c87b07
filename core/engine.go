package core

import (
	"fmt"
	"time"
	"unsafe"
)

const (
	// DefaultSendTimeout bounds the completion poll in Send. Transfers
	// run in microseconds to low milliseconds, so hitting this means
	// the hardware wedged.
	DefaultSendTimeout = time.Second

	pollInterval  = 10 * time.Microsecond
	abortSettle   = 100 * time.Microsecond
	sendPriority  = 7
	panicPriority = 7
)

// Engine drives many clock-synchronized serial output lines from GPIO
// pins via the DMA engine. One Engine instance exclusively owns one
// physical DMA channel and its coherent slot memory; its methods must
// be called from a single goroutine.
type Engine struct {
	pins PinConfigurer
	mem  CoherentAllocator
	regs RegisterMapper
	hw   HardwareMap

	clock    Pin
	channels map[Pin]bool
	tl       timeline

	// SendTimeout bounds how long Send waits for the transfer to
	// complete or fail. Defaults to DefaultSendTimeout.
	SendTimeout time.Duration

	// Set by finalize on the first Send; the chain layout and the
	// register window are fixed from then on.
	block   MemBlock
	slotMem []Slot
	head    uint32
	dma     *dmaChannel
}

// New creates an engine sharing the given clock pin across all later
// registered channels. It initializes the pin subsystem and reserves
// the clock pin; failure of either is fatal for the engine.
func New(p Platform, clockPin Pin) (*Engine, error) {
	if clockPin > 31 {
		return nil, fmt.Errorf("clock pin %d: %w", clockPin, ErrBadPin)
	}
	if err := p.Pins.Init(); err != nil {
		return nil, fmt.Errorf("pin subsystem: %w", err)
	}
	if err := p.Pins.ReserveOutput(clockPin); err != nil {
		return nil, fmt.Errorf("clock pin %d: %w", clockPin, err)
	}
	e := &Engine{
		pins:        p.Pins,
		mem:         p.Mem,
		regs:        p.Regs,
		hw:          p.HW,
		clock:       clockPin,
		channels:    make(map[Pin]bool),
		SendTimeout: DefaultSendTimeout,
	}
	e.tl.clockMask = 1 << clockPin
	return e, nil
}

// ClockPin returns the shared clock pin.
func (e *Engine) ClockPin() Pin { return e.clock }

// Capacity returns the largest byte capacity registered so far; valid
// byte indices for SetByte are [0, Capacity).
func (e *Engine) Capacity() int { return e.tl.capacity }

// RegisterChannel registers a data pin that will send byteCapacity
// serial bytes per transfer. If byteCapacity exceeds every previous
// registration the shared timeline grows for all channels; content
// already encoded below the old boundary is preserved. An already
// registered channel may re-register with a larger capacity.
// Registration is rejected with ErrFinalized once the first Send has
// built the descriptor chain.
func (e *Engine) RegisterChannel(pin Pin, byteCapacity int) error {
	if e.block != nil {
		return fmt.Errorf("register pin %d: %w", pin, ErrFinalized)
	}
	if pin > 31 {
		return fmt.Errorf("register pin %d: %w", pin, ErrBadPin)
	}
	if byteCapacity <= 0 {
		return fmt.Errorf("register pin %d: capacity %d must be positive", pin, byteCapacity)
	}
	if !e.channels[pin] {
		if err := e.pins.ReserveOutput(pin); err != nil {
			return fmt.Errorf("register pin %d: %w", pin, err)
		}
		e.channels[pin] = true
	}
	e.tl.grow(byteCapacity)
	return nil
}

// SetByte encodes one byte of a channel's stream at the given byte
// index. Only the given pin's bit in the affected slots changes, so
// channels never disturb each other or the clock pattern. May be
// called before and between sends; the value transmitted is whatever
// was last encoded.
func (e *Engine) SetByte(pin Pin, index int, value byte) error {
	if pin > 31 {
		return fmt.Errorf("set byte on pin %d: %w", pin, ErrBadPin)
	}
	if index < 0 || index >= e.tl.capacity {
		return fmt.Errorf("set byte %d of %d on pin %d: %w", index, e.tl.capacity, pin, ErrByteRange)
	}
	e.tl.setByte(pin, index, value)
	return nil
}

// finalize freezes the timeline, allocates the coherent block holding
// the descriptor chain plus the slot memory, builds the chain and maps
// the DMA channel's register window. Runs exactly once.
func (e *Engine) finalize() error {
	if e.block != nil {
		return ErrFinalized
	}
	if e.tl.capacity == 0 {
		return ErrNoChannels
	}

	nSlots := len(e.tl.slots)
	nBlocks := (nSlots + maxSlotsPerBlock - 1) / maxSlotsPerBlock
	size := nBlocks*controlBlockSize + nSlots*slotSize

	block, err := e.mem.Alloc(size)
	if err != nil {
		return fmt.Errorf("coherent alloc of %d bytes: %w", size, err)
	}

	buildChain(block, nBlocks, nSlots, e.hw.GPIOSetBus)

	win, err := e.regs.MapWindow(e.hw.DMAChanPhys, dmaChannelSize)
	if err != nil {
		block.Close()
		return fmt.Errorf("map DMA channel registers: %w", err)
	}

	buf := block.Bytes()
	e.slotMem = unsafe.Slice((*Slot)(unsafe.Pointer(&buf[nBlocks*controlBlockSize])), nSlots)
	e.head = block.PhysAddr(0)
	e.dma = (*dmaChannel)(unsafe.Pointer(&win[0]))
	e.block = block
	return nil
}

// Send copies the current timeline into the coherent slot memory and
// plays it back through the descriptor chain, blocking until the
// transfer completes, errors or times out. The first call builds the
// chain; later calls reuse it and only rewrite the slot contents.
//
// The channel is unconditionally aborted and reset on the way out, so
// a failed Send leaves the engine idle and a later Send may retry.
func (e *Engine) Send() error {
	if e.block == nil {
		if err := e.finalize(); err != nil {
			return err
		}
	}
	copy(e.slotMem, e.tl.slots)

	// Arm: clear a stale end flag (write one to clear), then point the
	// channel at the chain head.
	e.dma.orCS(dmaCSEnd)
	e.dma.writeConblk(e.head)

	// Start.
	e.dma.writeCS(dmaCSPriority(sendPriority) | dmaCSPanicPriority(panicPriority) | dmaCSDisdebug)
	e.dma.orCS(dmaCSActive)

	var failure error
	deadline := time.Now().Add(e.SendTimeout)
	for {
		cs := e.dma.readCS()
		if cs&dmaCSActive == 0 {
			break
		}
		if cs&dmaCSError != 0 {
			failure = fmt.Errorf("%w (debug %#08x)", ErrTransfer, e.dma.readDebug())
			break
		}
		if time.Now().After(deadline) {
			failure = fmt.Errorf("%w (cs %#08x)", ErrSendTimeout, cs)
			break
		}
		time.Sleep(pollInterval)
	}

	// Teardown runs no matter how the poll ended.
	e.dma.orCS(dmaCSAbort)
	time.Sleep(abortSettle)
	e.dma.clearCS(dmaCSActive)
	e.dma.orCS(dmaCSReset)

	return failure
}

// Close releases the coherent memory. The engine must not be used
// afterwards. Safe to call if Send was never reached.
func (e *Engine) Close() error {
	if e.block == nil {
		return nil
	}
	err := e.block.Close()
	e.block = nil
	e.slotMem = nil
	e.dma = nil
	return err
}
