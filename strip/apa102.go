package strip

import "multispi/core"

// APA102 drives APA102/SK9822 strips: a four byte zero start frame,
// four bytes per pixel (global brightness header plus RGB), and an
// all-ones end frame long enough to clock the last pixels through the
// chain.
type APA102 struct {
	spi   SPI
	pin   core.Pin
	count int
}

// NewAPA102 registers an APA102 strip of count pixels on the given
// data pin and encodes the framing bytes once.
func NewAPA102(spi SPI, pin core.Pin, count int) (*APA102, error) {
	start := 4
	end := 8 + 8*(count/16)
	total := start + 4*count + end
	if err := spi.RegisterChannel(pin, total); err != nil {
		return nil, err
	}
	s := &APA102{spi: spi, pin: pin, count: count}
	for i := 0; i < start; i++ {
		spi.SetByte(pin, i, 0x00)
	}
	// Initialize the per-pixel header bytes.
	for pos := 0; pos < count; pos++ {
		s.SetPixel(pos, 0, 0, 0)
	}
	for i := start + 4*count; i < total; i++ {
		spi.SetByte(pin, i, 0xFF)
	}
	return s, nil
}

func (s *APA102) Count() int { return s.count }

func (s *APA102) SetPixel(pos int, red, green, blue uint8) {
	if pos < 0 || pos >= s.count {
		return
	}
	const brightness = 0x1F // full global brightness
	base := 4 + 4*pos
	s.spi.SetByte(s.pin, base+0, 0xE0|brightness)
	s.spi.SetByte(s.pin, base+1, uint8(luminance(8, red)))
	s.spi.SetByte(s.pin, base+2, uint8(luminance(8, green)))
	s.spi.SetByte(s.pin, base+3, uint8(luminance(8, blue)))
}
