// Package rpi provides the Raspberry Pi platform services the engine
// core consumes: GPIO function-select configuration, DMA-coherent
// memory from the VideoCore mailbox, and register window mapping over
// /dev/mem. Everything here needs root.
package rpi

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Model is the Raspberry Pi generation, as far as the peripheral
// addressing is concerned. The exact board does not matter.
type Model int

const (
	Pi1 Model = iota + 1
	Pi2
	Pi3
	Pi4
)

func (m Model) String() string {
	switch m {
	case Pi1:
		return "Pi1"
	case Pi2:
		return "Pi2"
	case Pi3:
		return "Pi3"
	case Pi4:
		return "Pi4"
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// periBase returns the physical base address of the peripheral block.
func (m Model) periBase() uintptr {
	switch m {
	case Pi1:
		return 0x20000000
	case Pi4:
		return 0xFE000000
	default:
		return 0x3F000000
	}
}

// memFlags returns the VideoCore allocation flags giving uncached,
// DMA-coherent memory on this generation.
func (m Model) memFlags() uint32 {
	if m == Pi1 {
		return 0xC // MEM_FLAG_L1_NONALLOCATING
	}
	return 0x4 // MEM_FLAG_DIRECT
}

// parseRevision maps a /proc/cpuinfo revision code to a Model.
// Revision codes per the Raspberry Pi documentation; everything not
// recognized is treated as a Pi 3, which uses the common addressing.
func parseRevision(rev uint32) Model {
	switch (rev >> 4) & 0xFF {
	case 0x00, 0x01, 0x02, 0x03, 0x05, 0x06, 0x09, 0x0C:
		return Pi1
	case 0x04:
		return Pi2
	case 0x11:
		return Pi4
	default:
		return Pi3
	}
}

// DetectModel determines the Pi generation from /proc/cpuinfo. When
// the revision cannot be read it logs a warning and guesses Pi 3.
func DetectModel() Model {
	buf, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		log.Printf("rpi: reading cpuinfo: %v; assuming %s", err, Pi3)
		return Pi3
	}
	for _, line := range strings.Split(string(buf), "\n") {
		if !strings.HasPrefix(line, "Revision") {
			continue
		}
		_, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		rev, err := strconv.ParseUint(strings.TrimSpace(value), 16, 32)
		if err != nil {
			log.Printf("rpi: unparseable revision %q; assuming %s", value, Pi3)
			return Pi3
		}
		return parseRevision(uint32(rev))
	}
	log.Printf("rpi: no Revision in cpuinfo; assuming %s", Pi3)
	return Pi3
}
