package strip

import "multispi/core"

// WS2801 drives WS2801 strips: three bytes per pixel, RGB order, no
// framing.
type WS2801 struct {
	spi   SPI
	pin   core.Pin
	count int
}

// NewWS2801 registers a WS2801 strip of count pixels on the given data
// pin.
func NewWS2801(spi SPI, pin core.Pin, count int) (*WS2801, error) {
	if err := spi.RegisterChannel(pin, 3*count); err != nil {
		return nil, err
	}
	return &WS2801{spi: spi, pin: pin, count: count}, nil
}

func (s *WS2801) Count() int { return s.count }

func (s *WS2801) SetPixel(pos int, red, green, blue uint8) {
	if pos < 0 || pos >= s.count {
		return
	}
	s.spi.SetByte(s.pin, 3*pos+0, uint8(luminance(8, red)))
	s.spi.SetByte(s.pin, 3*pos+1, uint8(luminance(8, green)))
	s.spi.SetByte(s.pin, 3*pos+2, uint8(luminance(8, blue)))
}
