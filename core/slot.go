// Package core implements a DMA-driven multi-channel serial output
// engine for Raspberry Pi style hardware. Many data lines share one
// clock line; every channel's bits are flattened into a single
// time-ordered buffer of GPIO set/clear operations which the DMA
// engine plays back without CPU involvement, so the serial timing is
// immune to scheduler jitter.
package core

import "unsafe"

// Slot is one atomic GPIO write operation in the playback timeline.
// Its layout mirrors the GPIO register block starting at the pin-set
// register: GPSET0, GPSET1 (pins 32..53, never driven here), one
// reserved word, GPCLR0. A single 2-D DMA step copies the whole slot
// so that Set lands in GPSET0 and Clr lands in GPCLR0.
type Slot struct {
	// Set is the mask of pins driven high by this operation.
	Set uint32
	// GPSET1 image and the reserved gap between the set and clear
	// register banks. The DMA writes these words too; they must stay
	// zero.
	_ uint32
	_ uint32
	// Clr is the mask of pins driven low by this operation.
	Clr uint32
}

// slotSize is the exact wire size of a Slot in bytes. The descriptor
// stride and the transfer shape depend on it.
const slotSize = 16

var _ [slotSize]byte = [unsafe.Sizeof(Slot{})]byte{}
