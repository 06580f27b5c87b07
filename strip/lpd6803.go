package strip

import "multispi/core"

// LPD6803 drives LPD6803 strips: a four byte zero start frame, then
// one 16-bit word per pixel with a start bit and three 5-bit channels.
type LPD6803 struct {
	spi   SPI
	pin   core.Pin
	count int
}

// NewLPD6803 registers an LPD6803 strip of count pixels on the given
// data pin and encodes the framing and start bits once.
func NewLPD6803(spi SPI, pin core.Pin, count int) (*LPD6803, error) {
	total := 4 + 2*count + 4
	if err := spi.RegisterChannel(pin, total); err != nil {
		return nil, err
	}
	s := &LPD6803{spi: spi, pin: pin, count: count}
	for i := 0; i < 4; i++ {
		spi.SetByte(pin, i, 0x00)
	}
	for pos := 0; pos < count; pos++ {
		s.SetPixel(pos, 0, 0, 0)
	}
	return s, nil
}

func (s *LPD6803) Count() int { return s.count }

func (s *LPD6803) SetPixel(pos int, red, green, blue uint8) {
	if pos < 0 || pos >= s.count {
		return
	}
	data := uint16(1) << 15 // start bit
	data |= uint16(luminance(5, red)) << 10
	data |= uint16(luminance(5, green)) << 5
	data |= uint16(luminance(5, blue))
	s.spi.SetByte(s.pin, 2*pos+4+0, uint8(data>>8))
	s.spi.SetByte(s.pin, 2*pos+4+1, uint8(data))
}
