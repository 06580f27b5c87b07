// Package feed streams pixel frames from an external controller into
// LED strips, typically over a serial port. The wire format is a flat
// framing: two magic bytes, the strip index, a little-endian pixel
// count, RGB triplets and a CRC16. A frame addressed to CommitIndex
// carries no pixels and triggers a transfer of everything buffered so
// far.
package feed

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/tarm/serial"

	"multispi/strip"
)

const (
	magic0 = 'P'
	magic1 = 'X'

	// CommitIndex addresses no strip; it flushes the buffered pixels
	// out to the hardware.
	CommitIndex = 0xFF

	// MaxPixels bounds a single frame; larger counts are treated as
	// framing noise and resynced over.
	MaxPixels = 4096
)

// Sender triggers the buffered transfer. Satisfied by *core.Engine.
type Sender interface {
	Send() error
}

// Frame is one decoded wire frame.
type Frame struct {
	Strip  uint8
	Pixels []byte // RGB triplets
}

// AppendFrame appends the wire encoding of one frame to dst. Intended
// for feeders on the other end of the link.
func AppendFrame(dst []byte, stripIdx uint8, pixels []byte) []byte {
	body := make([]byte, 0, 3+len(pixels))
	body = append(body, stripIdx)
	body = binary.LittleEndian.AppendUint16(body, uint16(len(pixels)/3))
	body = append(body, pixels...)

	dst = append(dst, magic0, magic1)
	dst = append(dst, body...)
	return binary.LittleEndian.AppendUint16(dst, crc16(body))
}

// ReadFrame decodes the next valid frame, skipping garbage and frames
// with bad checksums. It only returns on a valid frame or a read
// error.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != magic0 {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != magic1 {
			continue
		}

		var hdr [3]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, err
		}
		count := int(binary.LittleEndian.Uint16(hdr[1:]))
		if count > MaxPixels {
			log.Printf("feed: implausible pixel count %d, resyncing", count)
			continue
		}

		body := make([]byte, 3+3*count)
		copy(body, hdr[:])
		if _, err := io.ReadFull(r, body[3:]); err != nil {
			return Frame{}, err
		}
		var crc [2]byte
		if _, err := io.ReadFull(r, crc[:]); err != nil {
			return Frame{}, err
		}
		if got := binary.LittleEndian.Uint16(crc[:]); got != crc16(body) {
			log.Printf("feed: bad checksum %#04x, dropping frame", got)
			continue
		}
		return Frame{Strip: hdr[0], Pixels: body[3:]}, nil
	}
}

// Apply writes a frame's pixels into its target strip. Frames for
// unknown strips are dropped with a log line.
func Apply(f Frame, strips []strip.LEDStrip) {
	if int(f.Strip) >= len(strips) {
		log.Printf("feed: frame for unknown strip %d", f.Strip)
		return
	}
	s := strips[f.Strip]
	for i := 0; i+3 <= len(f.Pixels); i += 3 {
		s.SetPixel(i/3, f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2])
	}
}

// Run decodes frames from r until it is exhausted, buffering pixel
// frames into strips and triggering sender on every commit frame.
// Transfer errors are logged, not fatal: one bad send should not stop
// an installation.
func Run(r io.Reader, strips []strip.LEDStrip, sender Sender) error {
	br := bufio.NewReader(r)
	for {
		f, err := ReadFrame(br)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		if f.Strip == CommitIndex {
			if err := sender.Send(); err != nil {
				log.Printf("feed: send: %v", err)
			}
			continue
		}
		Apply(f, strips)
	}
}

// OpenSerial opens the serial device feeders usually talk through.
func OpenSerial(device string, baud int) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", device, err)
	}
	return port, nil
}
