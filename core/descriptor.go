package core

import "unsafe"

// controlBlock mirrors the DMA engine's in-memory control block
// (BCM2835 ARM Peripherals 4.2.1.1). The engine reads these 32-byte
// records straight out of coherent memory; next is the bus address of
// the following block, not a Go pointer, and the chain ends where next
// is zero. A wrong address anywhere here is fed directly to hardware,
// so every field is computed through the allocator's translation.
type controlBlock struct {
	ti     uint32
	srcAd  uint32
	destAd uint32
	txLen  uint32
	stride uint32
	next   uint32
	_      uint32
	_      uint32
}

const controlBlockSize = 32

var _ [controlBlockSize]byte = [unsafe.Sizeof(controlBlock{})]byte{}

// Transfer information bits (BCM2835 ARM Peripherals 4.2.1.1).
const (
	dmaTITDMode       = 1 << 1
	dmaTIDestInc      = 1 << 4
	dmaTISrcInc       = 1 << 8
	dmaTINoWideBursts = 1 << 26
)

// maxSlotsPerBlock bounds how many slots one control block may move;
// the 2-D Y length field cannot describe more.
const maxSlotsPerBlock = (2 << 15) / slotSize

// txLen2D packs a 2-D transfer shape: y transfers of x bytes each.
func txLen2D(y, x int) uint32 {
	return uint32(y&0x3FFF)<<16 | uint32(x&0xFFFF)
}

// stride2D packs the signed byte offsets added to the destination and
// source addresses after each x-length transfer.
func stride2D(dst, src int) uint32 {
	return uint32(uint16(int16(dst)))<<16 | uint32(uint16(int16(src)))
}

// buildChain lays out nBlocks control blocks at the start of the
// coherent block, each covering up to maxSlotsPerBlock slots of the
// slot memory that follows them. Each descriptor asks for a 2-D copy:
// slot-count rows of slotSize bytes, source incrementing through the
// slot memory, destination snapping back to the pin-set register after
// every row so the set and clear masks land in their two registers.
func buildChain(block MemBlock, nBlocks, nSlots int, gpioSetBus uint32) {
	buf := block.Bytes()
	cbs := unsafe.Slice((*controlBlock)(unsafe.Pointer(&buf[0])), nBlocks)

	slotsOff := nBlocks * controlBlockSize
	remaining := nSlots
	for i := range cbs {
		n := remaining
		if n > maxSlotsPerBlock {
			n = maxSlotsPerBlock
		}
		cbs[i] = controlBlock{
			ti:     dmaTISrcInc | dmaTIDestInc | dmaTINoWideBursts | dmaTITDMode,
			srcAd:  block.PhysAddr(slotsOff + (nSlots-remaining)*slotSize),
			destAd: gpioSetBus,
			txLen:  txLen2D(n, slotSize),
			stride: stride2D(-slotSize, 0),
		}
		if i+1 < nBlocks {
			cbs[i].next = block.PhysAddr((i + 1) * controlBlockSize)
		}
		remaining -= n
	}
}
