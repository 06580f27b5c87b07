package core

// timeline is the shadow buffer of slots, kept in ordinary cached
// memory. SetByte rewrites it freely; Send copies it into the coherent
// slot memory in one pass. Manipulating the coherent memory directly
// would be much slower, it is uncached.
type timeline struct {
	clockMask uint32
	capacity  int // bytes of the longest registered channel
	slots     []Slot
}

// slotCount returns the timeline length for a given byte capacity.
// Each bit needs two operations: set the data lines with the clock
// held low, then raise the clock. The final extra slot pulls the clock
// low again so the bus idles after the last bit.
func slotCount(bytes int) int {
	return bytes*8*2 + 1
}

// grow enlarges the timeline to cover capacity bytes. Slots before the
// previous boundary keep whatever channel bits are already encoded;
// only the new suffix receives the alternating clock pre-pattern: even
// slots clear the clock pin, odd slots set it. Channel encoding never
// touches the clock bit again.
func (t *timeline) grow(capacity int) {
	if capacity <= t.capacity {
		return
	}
	prev := len(t.slots)
	n := slotCount(capacity)
	slots := make([]Slot, n)
	copy(slots, t.slots)
	for i := prev; i < n; i++ {
		if i%2 == 0 {
			slots[i].Clr = t.clockMask
		} else {
			slots[i].Set = t.clockMask
		}
	}
	t.capacity = capacity
	t.slots = slots
}

// setByte encodes one byte of one channel, most significant bit first.
// Every bit owns two consecutive slots: the data slot (clock low) and
// the clock-edge slot; both receive the pin's level so the data line
// is held steady across the positive clock edge. Only the caller's bit
// position is touched in each mask, which is what lets independent
// channels interleave in the shared timeline. Re-encoding the same
// byte overwrites, it does not accumulate.
func (t *timeline) setByte(pin Pin, pos int, value byte) {
	mask := uint32(1) << pin
	s := t.slots[pos*16 : pos*16+16]
	for i := 0; i < 16; i += 2 {
		if value&0x80 != 0 {
			s[i].Set |= mask
			s[i].Clr &^= mask
			s[i+1].Set |= mask
			s[i+1].Clr &^= mask
		} else {
			s[i].Set &^= mask
			s[i].Clr |= mask
			s[i+1].Set &^= mask
			s[i+1].Clr |= mask
		}
		value <<= 1
	}
}

// byteAt decodes the byte currently encoded for a channel, the inverse
// of setByte. Used to verify buffer contents.
func (t *timeline) byteAt(pin Pin, pos int) byte {
	mask := uint32(1) << pin
	s := t.slots[pos*16 : pos*16+16]
	var value byte
	for i := 0; i < 16; i += 2 {
		value <<= 1
		if s[i].Set&mask != 0 {
			value |= 1
		}
	}
	return value
}
