package core

import (
	"sync/atomic"
	"unsafe"
)

// dmaChannel mirrors one DMA channel's register block (BCM2835 ARM
// Peripherals 4.2.1.2). Instances of this struct only ever overlay
// memory returned by the register mapper.
type dmaChannel struct {
	cs       uint32
	conblkAd uint32
	ti       uint32
	sourceAd uint32
	destAd   uint32
	txLen    uint32
	stride   uint32
	nextCB   uint32
	debug    uint32
}

const dmaChannelSize = 36

var _ [dmaChannelSize]byte = [unsafe.Sizeof(dmaChannel{})]byte{}

// Control and status register bits.
const (
	dmaCSReset    = 1 << 31
	dmaCSAbort    = 1 << 30
	dmaCSDisdebug = 1 << 29
	dmaCSError    = 1 << 8
	dmaCSEnd      = 1 << 1
	dmaCSActive   = 1 << 0
)

func dmaCSPriority(p uint32) uint32 {
	return (p & 0xF) << 16
}

func dmaCSPanicPriority(p uint32) uint32 {
	return (p & 0xF) << 20
}

// Register access goes through sync/atomic: it keeps the compiler from
// caching or reordering loads of memory the hardware mutates, without
// resorting to exclusive-load sequences that device memory does not
// support.

func (d *dmaChannel) readCS() uint32 {
	return atomic.LoadUint32(&d.cs)
}

func (d *dmaChannel) writeCS(v uint32) {
	atomic.StoreUint32(&d.cs, v)
}

func (d *dmaChannel) orCS(bits uint32) {
	d.writeCS(d.readCS() | bits)
}

func (d *dmaChannel) clearCS(bits uint32) {
	d.writeCS(d.readCS() &^ bits)
}

func (d *dmaChannel) writeConblk(bus uint32) {
	atomic.StoreUint32(&d.conblkAd, bus)
}

func (d *dmaChannel) readDebug() uint32 {
	return atomic.LoadUint32(&d.debug)
}
