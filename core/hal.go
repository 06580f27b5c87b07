package core

// Pin identifies a GPIO pin in bank 0. Pins above 31 cannot be driven
// by this engine because a Slot mask covers one 32-bit bank.
type Pin uint32

// PinConfigurer is the abstract pin setup interface the engine uses.
// Platform-specific implementations handle the actual function-select
// registers.
type PinConfigurer interface {
	// Init prepares the pin subsystem. Must be called before any
	// ReserveOutput.
	Init() error

	// ReserveOutput configures a pin as a digital output and reserves
	// it for this engine. Returns an error if the pin is invalid or
	// already reserved.
	ReserveOutput(pin Pin) error
}

// MemBlock is one DMA-coherent allocation: memory the CPU and the
// transfer engine observe consistently without cache maintenance.
type MemBlock interface {
	// Bytes returns the CPU-addressable contents of the block.
	Bytes() []byte

	// PhysAddr translates an offset into the block to the address the
	// DMA engine must use to reach it (the bus address on BCM283x).
	PhysAddr(offset int) uint32

	// Close releases the block. The DMA engine must be idle.
	Close() error
}

// CoherentAllocator hands out DMA-coherent memory blocks.
type CoherentAllocator interface {
	Alloc(size int) (MemBlock, error)
}

// RegisterMapper maps a physical register window into the process.
// The returned slice starts exactly at phys and is at least size bytes
// long; it stays valid for the lifetime of the platform.
type RegisterMapper interface {
	MapWindow(phys uintptr, size int) ([]byte, error)
}

// HardwareMap carries the fixed physical addresses of the hardware
// generation in use. Provided by the platform package, consumed as
// opaque data here.
type HardwareMap struct {
	// GPIOSetBus is the bus address of the pin-set register (GPSET0),
	// the destination of every transfer descriptor.
	GPIOSetBus uint32

	// DMAChanPhys is the physical address of the register block of the
	// DMA channel this engine owns.
	DMAChanPhys uintptr
}

// Platform bundles the services one engine instance needs. Each engine
// owns its platform exclusively; nothing here is shared process-wide.
type Platform struct {
	Pins PinConfigurer
	Mem  CoherentAllocator
	Regs RegisterMapper
	HW   HardwareMap
}
