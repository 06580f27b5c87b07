package rpi

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// VideoCore mailbox property interface, documented at
// https://github.com/raspberrypi/firmware/wiki/Mailbox-property-interface.
// It is the only sanctioned way to get memory that both the ARM and
// the DMA engine see uncached.

const (
	vcioFile     = "/dev/vcio"
	vcioMajor    = 100
	tagAllocMem  = 0x3000C
	tagLockMem   = 0x3000D
	tagUnlockMem = 0x3000E
	tagFreeMem   = 0x3000F
)

// propMessage assembles a single-tag property message: total size,
// request code, tag, value size, request/response code, the value
// words, end tag. The firmware overwrites the value words in place.
func propMessage(tag uint32, args ...uint32) []uint32 {
	p := make([]uint32, 0, len(args)+6)
	p = append(p, 0, 0, tag, uint32(len(args))*4, 0)
	p = append(p, args...)
	p = append(p, 0)
	p[0] = uint32(len(p)) * 4
	return p
}

// propResponse validates a replied message and returns the first value
// word.
func propResponse(p []uint32) (uint32, error) {
	if p[1] != 0x80000000 {
		return 0, fmt.Errorf("mailbox request failed: code %#08x", p[1])
	}
	if p[4]&0x80000000 == 0 {
		return 0, fmt.Errorf("mailbox tag %#x not answered", p[2])
	}
	return p[5], nil
}

type mailbox struct {
	f *os.File
}

// openMailbox opens /dev/vcio. When the node does not exist (very old
// kernels), a temporary device node is created, opened and unlinked.
func openMailbox() (*mailbox, error) {
	f, err := os.OpenFile(vcioFile, os.O_RDONLY, 0)
	if os.IsNotExist(err) {
		f, err = openTempMailbox()
	}
	if err != nil {
		return nil, fmt.Errorf("opening mailbox: %w", err)
	}
	return &mailbox{f: f}, nil
}

func openTempMailbox() (*os.File, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("mailbox-%d", os.Getpid()))
	_ = os.Remove(tf)
	if err := unix.Mknod(tf, unix.S_IFCHR|0600, vcioMajor<<20); err != nil {
		return nil, fmt.Errorf("creating mailbox node: %w", err)
	}
	f, err := os.OpenFile(tf, os.O_RDONLY, 0)
	if rmErr := os.Remove(tf); rmErr != nil && err == nil {
		f.Close()
		return nil, rmErr
	}
	return f, err
}

func (m *mailbox) Close() error { return m.f.Close() }

// property performs the mailbox property ioctl in place on p.
func (m *mailbox) property(p []uint32) error {
	req := uintptr(3)<<30 | unsafe.Sizeof(uintptr(0))<<16 | vcioMajor<<8 // _IOWR(100, 0, char*)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, m.f.Fd(), req, uintptr(unsafe.Pointer(&p[0])))
	if errno != 0 {
		return fmt.Errorf("mailbox ioctl: %w", errno)
	}
	return nil
}

func (m *mailbox) call(tag uint32, args ...uint32) (uint32, error) {
	p := propMessage(tag, args...)
	if err := m.property(p); err != nil {
		return 0, err
	}
	return propResponse(p)
}

func (m *mailbox) alloc(size, align, flags uint32) (uint32, error) {
	handle, err := m.call(tagAllocMem, size, align, flags)
	if err != nil {
		return 0, fmt.Errorf("allocating %d bytes: %w", size, err)
	}
	if handle == 0 {
		return 0, fmt.Errorf("allocating %d bytes: out of GPU memory", size)
	}
	return handle, nil
}

func (m *mailbox) lock(handle uint32) (uint32, error) {
	bus, err := m.call(tagLockMem, handle)
	if err != nil {
		return 0, fmt.Errorf("locking handle %d: %w", handle, err)
	}
	return bus, nil
}

func (m *mailbox) unlock(handle uint32) error {
	status, err := m.call(tagUnlockMem, handle)
	if err == nil && status != 0 {
		err = fmt.Errorf("unlock status %d", status)
	}
	return err
}

func (m *mailbox) free(handle uint32) error {
	status, err := m.call(tagFreeMem, handle)
	if err == nil && status != 0 {
		err = fmt.Errorf("free status %d", status)
	}
	return err
}
