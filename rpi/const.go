package rpi

const (
	pageSize = 4096

	// GPIO block, relative to the peripheral base.
	gpioOffset = 0x200000

	// Bus address of the GPIO block as the DMA engine sees it, and the
	// pin-set register within it. The matching pin-clear register sits
	// 16 bytes further, which is what the descriptor stride relies on.
	gpioBusAddr   = 0x7E200000
	gpioSetOffset = 0x1C

	// DMA channel register blocks, relative to the peripheral base.
	// Channels 0..14 are spaced 0x100 apart; channel 15 lives apart
	// from the others.
	dmaOffset       = 0x007000
	dmaChanSpacing  = 0x100
	dmaChan15Offset = 0xE05000

	// DefaultDMAChannel is usually not claimed by the firmware or the
	// kernel.
	DefaultDMAChannel = 5
)

// validPins are the pins exposed on the 40-pin header across board
// revisions; everything else is refused.
const validPins uint32 = 1<<0 | 1<<1 | 1<<2 | 1<<3 | 1<<4 | 1<<5 | 1<<6 |
	1<<7 | 1<<8 | 1<<9 | 1<<10 | 1<<11 | 1<<12 | 1<<13 | 1<<14 | 1<<15 |
	1<<16 | 1<<17 | 1<<18 | 1<<19 | 1<<20 | 1<<21 | 1<<22 | 1<<23 |
	1<<24 | 1<<25 | 1<<26 | 1<<27

// dmaChanPhys returns the physical address of a DMA channel's register
// block.
func dmaChanPhys(periBase uintptr, channel int) uintptr {
	if channel == 15 {
		return periBase + dmaChan15Offset
	}
	return periBase + dmaOffset + uintptr(channel)*dmaChanSpacing
}
