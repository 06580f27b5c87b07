package core

import (
	"errors"
	"testing"
	"time"
	"unsafe"
)

func newTestEngine(t *testing.T, clock Pin) (*Engine, *mockHW) {
	t.Helper()
	hw := newMockHW()
	e, err := New(hw.platform(), clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, hw
}

func TestNewReservesClockPin(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if !hw.pins.reserved[18] {
		t.Error("clock pin not reserved")
	}
	if e.ClockPin() != 18 {
		t.Errorf("ClockPin() = %d, want 18", e.ClockPin())
	}
}

func TestNewFailsOnPinSubsystem(t *testing.T) {
	hw := newMockHW()
	hw.pins.initErr = errors.New("no /dev/mem")
	if _, err := New(hw.platform(), 18); err == nil {
		t.Fatal("New succeeded with broken pin subsystem")
	}
}

func TestNewFailsOnReservedClock(t *testing.T) {
	hw := newMockHW()
	hw.pins.reserved[18] = true
	if _, err := New(hw.platform(), 18); err == nil {
		t.Fatal("New succeeded with clock pin already taken")
	}
}

func TestRegisterChannel(t *testing.T) {
	e, hw := newTestEngine(t, 18)

	if err := e.RegisterChannel(23, 3); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	if !hw.pins.reserved[23] {
		t.Error("data pin not reserved")
	}
	if e.Capacity() != 3 {
		t.Errorf("Capacity() = %d, want 3", e.Capacity())
	}

	// A second channel with a smaller capacity keeps the timeline.
	if err := e.RegisterChannel(24, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	if e.Capacity() != 3 {
		t.Errorf("Capacity() = %d after smaller registration, want 3", e.Capacity())
	}

	// Re-registering the same channel with a larger capacity grows
	// the timeline for everyone.
	if err := e.RegisterChannel(23, 5); err != nil {
		t.Errorf("re-registration: %v", err)
	}
	if e.Capacity() != 5 {
		t.Errorf("Capacity() = %d after re-registration, want 5", e.Capacity())
	}

	// The clock pin is reserved for another role.
	if err := e.RegisterChannel(18, 1); err == nil {
		t.Error("clock pin accepted as a data channel")
	}
	if err := e.RegisterChannel(40, 1); !errors.Is(err, ErrBadPin) {
		t.Errorf("pin 40: got %v, want ErrBadPin", err)
	}
	if err := e.RegisterChannel(25, 0); err == nil {
		t.Error("zero capacity accepted")
	}
}

func TestSetByteRange(t *testing.T) {
	e, _ := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 2); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	if err := e.SetByte(23, 0, 0xFF); err != nil {
		t.Errorf("SetByte(0): %v", err)
	}
	if err := e.SetByte(23, 1, 0x00); err != nil {
		t.Errorf("SetByte(1): %v", err)
	}
	if err := e.SetByte(23, 2, 0x00); !errors.Is(err, ErrByteRange) {
		t.Errorf("SetByte(2): got %v, want ErrByteRange", err)
	}
	if err := e.SetByte(23, -1, 0x00); !errors.Is(err, ErrByteRange) {
		t.Errorf("SetByte(-1): got %v, want ErrByteRange", err)
	}
}

func TestSendWithoutChannels(t *testing.T) {
	e, _ := newTestEngine(t, 18)
	if err := e.Send(); !errors.Is(err, ErrNoChannels) {
		t.Errorf("Send: got %v, want ErrNoChannels", err)
	}
}

// decodeSlotByte reads one encoded byte back out of slot memory, per
// the wire encoding: data slot of each bit pair, MSB first.
func decodeSlotByte(slots []Slot, pin Pin, pos int) byte {
	mask := uint32(1) << pin
	var v byte
	for bit := 0; bit < 8; bit++ {
		v <<= 1
		if slots[pos*16+2*bit].Set&mask != 0 {
			v |= 1
		}
	}
	return v
}

func TestSendEndToEnd(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 3); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	payload := []byte{0xFF, 0x00, 0xA5}
	for i, b := range payload {
		if err := e.SetByte(23, i, b); err != nil {
			t.Fatalf("SetByte(%d): %v", i, err)
		}
	}

	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// The hardware-visible slot memory must reproduce the payload.
	if got := len(e.slotMem); got != 3*16+1 {
		t.Fatalf("slot memory has %d slots, want %d", got, 3*16+1)
	}
	for i, want := range payload {
		if got := decodeSlotByte(e.slotMem, 23, i); got != want {
			t.Errorf("byte %d decodes to %#02x, want %#02x", i, got, want)
		}
	}

	// Clock toggles once per bit pair and settles low at the end.
	clk := uint32(1) << 18
	for i, s := range e.slotMem {
		if i%2 == 0 && s.Clr&clk == 0 {
			t.Errorf("slot %d: clock not cleared", i)
		}
		if i%2 == 1 && s.Set&clk == 0 {
			t.Errorf("slot %d: clock not set", i)
		}
	}
	last := e.slotMem[len(e.slotMem)-1]
	if last.Clr&clk == 0 || last.Set&clk != 0 {
		t.Error("bus does not idle with the clock low")
	}
}

func TestSendReusesChain(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	e.SetByte(23, 0, 0x0F)

	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if len(hw.mem.blocks) != 1 {
		t.Fatalf("%d coherent blocks allocated, want 1", len(hw.mem.blocks))
	}

	// Rewrite and resend: same block, fresh contents.
	e.SetByte(23, 0, 0xF0)
	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if len(hw.mem.blocks) != 1 {
		t.Errorf("%d coherent blocks after resend, want 1", len(hw.mem.blocks))
	}
	if got := decodeSlotByte(e.slotMem, 23, 0); got != 0xF0 {
		t.Errorf("resent byte decodes to %#02x, want 0xF0", got)
	}
}

func TestRegisterAfterSendRejected(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := e.RegisterChannel(24, 1); !errors.Is(err, ErrFinalized) {
		t.Errorf("registration after send: got %v, want ErrFinalized", err)
	}
}

func TestDoubleFinalize(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := e.finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second finalize: got %v, want ErrFinalized", err)
	}
}

func TestSendSurfacesHardwareError(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	hw.regs.completeNext(true)
	if err := e.Send(); !errors.Is(err, ErrTransfer) {
		t.Errorf("Send: got %v, want ErrTransfer", err)
	}

	// The teardown must have left the engine idle for a retry.
	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Errorf("retry after hardware error: %v", err)
	}
}

func TestSendTimeout(t *testing.T) {
	e, _ := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	e.SendTimeout = 5 * time.Millisecond
	// Nothing ever clears the active bit.
	if err := e.Send(); !errors.Is(err, ErrSendTimeout) {
		t.Errorf("Send: got %v, want ErrSendTimeout", err)
	}
}

func TestAllocFailureIsFatal(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	hw.mem.err = errors.New("mailbox out of memory")
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	if err := e.Send(); err == nil {
		t.Fatal("Send succeeded without coherent memory")
	}
}

func TestMapFailureReleasesBlock(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	hw.regs.err = errors.New("mmap denied")
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	if err := e.Send(); err == nil {
		t.Fatal("Send succeeded without a register window")
	}
	if len(hw.mem.blocks) != 1 || !hw.mem.blocks[0].closed {
		t.Error("coherent block leaked after mapping failure")
	}
}

// TestDescriptorChain walks the built chain through the allocator's
// translation, the way the hardware would, and checks that it covers
// the whole timeline in order with the documented transfer attributes.
func TestDescriptorChain(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	// 260 bytes -> 4161 slots -> two control blocks.
	if err := e.RegisterChannel(23, 260); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}

	nSlots := 260*16 + 1
	wantBlocks := (nSlots + maxSlotsPerBlock - 1) / maxSlotsPerBlock
	if wantBlocks != 2 {
		t.Fatalf("test setup: want 2 control blocks, computed %d", wantBlocks)
	}

	head := e.head
	if got := hw.regs.channel().conblkAd; got != head {
		t.Errorf("channel armed with %#08x, want chain head %#08x", got, head)
	}

	wantSrc := e.block.PhysAddr(wantBlocks * controlBlockSize)
	covered := 0
	bus := head
	for n := 0; bus != 0; n++ {
		if n > wantBlocks {
			t.Fatal("descriptor chain does not terminate")
		}
		mem := hw.mem.virt(bus)
		if mem == nil {
			t.Fatalf("descriptor %d: bus address %#08x outside coherent memory", n, bus)
		}
		cb := (*controlBlock)(unsafe.Pointer(&mem[0]))

		wantTI := uint32(dmaTISrcInc | dmaTIDestInc | dmaTINoWideBursts | dmaTITDMode)
		if cb.ti != wantTI {
			t.Errorf("descriptor %d: ti %#08x, want %#08x", n, cb.ti, wantTI)
		}
		if cb.destAd != 0x7E20001C {
			t.Errorf("descriptor %d: dest %#08x, want pin-set register", n, cb.destAd)
		}
		if cb.srcAd != wantSrc {
			t.Errorf("descriptor %d: src %#08x, want %#08x", n, cb.srcAd, wantSrc)
		}
		if cb.stride != stride2D(-slotSize, 0) {
			t.Errorf("descriptor %d: stride %#08x", n, cb.stride)
		}
		if x := cb.txLen & 0xFFFF; x != slotSize {
			t.Errorf("descriptor %d: x length %d, want %d", n, x, slotSize)
		}
		y := int(cb.txLen >> 16 & 0x3FFF)
		if y > maxSlotsPerBlock {
			t.Errorf("descriptor %d: y length %d exceeds hardware limit", n, y)
		}
		covered += y
		wantSrc += uint32(y * slotSize)
		bus = cb.next
	}
	if covered != nSlots {
		t.Errorf("chain covers %d slots, want %d", covered, nSlots)
	}
}

func TestClose(t *testing.T) {
	e, hw := newTestEngine(t, 18)
	if err := e.RegisterChannel(23, 1); err != nil {
		t.Fatalf("RegisterChannel: %v", err)
	}
	hw.regs.completeNext(false)
	if err := e.Send(); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !hw.mem.blocks[0].closed {
		t.Error("coherent block not released")
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
