// Package strip implements drivers for clocked SPI-type LED strips on
// top of the multi-channel engine. Each strip owns one data pin and
// shares the engine's clock pin with every other strip; pixels become
// visible when the engine's Send runs.
package strip

import "multispi/core"

// SPI is the engine surface a strip needs: channel registration at
// construction time and buffered byte writes afterwards. Satisfied by
// *core.Engine.
type SPI interface {
	RegisterChannel(pin core.Pin, byteCapacity int) error
	SetByte(pin core.Pin, index int, value byte) error
}

// LEDStrip is a chain of individually addressable pixels. SetPixel
// only updates the buffered frame; positions outside the strip are
// ignored.
type LEDStrip interface {
	SetPixel(pos int, red, green, blue uint8)
	Count() int
}

// Fill sets every pixel of a strip to one color.
func Fill(s LEDStrip, red, green, blue uint8) {
	for i := 0; i < s.Count(); i++ {
		s.SetPixel(i, red, green, blue)
	}
}
