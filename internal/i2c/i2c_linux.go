//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl I2C_RDWR and the i2c_msg read flag from <linux/i2c-dev.h>.
const (
	ioctlRdwr = 0x0707
	flagRead  = 0x0001
)

// segment mirrors struct i2c_msg.
type segment struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

// rdwrArg mirrors struct i2c_rdwr_ioctl_data.
type rdwrArg struct {
	segs  uintptr
	nsegs uint32
}

// Bus is an opened adapter such as /dev/i2c-1. Register accesses on one Bus
// are serialised, so the sampler and a re-initialising driver can share it.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: %w", err)
	}
	return &Bus{f: f, path: path}, nil
}

// Path is the adapter node, used to label driver errors.
func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

// Dev is a register-mapped device at a 7-bit address.
type Dev struct {
	bus  *Bus
	addr uint16
}

// ReadReg fills dst starting at reg. The register pointer write and the
// read share one transaction (repeated start), which the BMP280 requires
// for burst reads.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	ptr := []byte{reg}
	return d.transfer(
		segment{flags: 0, len: 1, buf: uintptr(unsafe.Pointer(&ptr[0]))},
		segment{flags: flagRead, len: uint16(len(dst)), buf: uintptr(unsafe.Pointer(&dst[0]))},
	)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	out := []byte{reg, value}
	return d.transfer(segment{flags: 0, len: 2, buf: uintptr(unsafe.Pointer(&out[0]))})
}

func (d *Dev) transfer(segs ...segment) error {
	if d == nil || d.bus == nil {
		return errors.New("i2c: device is nil")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("i2c: invalid i2c addr 0x%X", d.addr)
	}
	for i := range segs {
		segs[i].addr = d.addr
	}

	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if d.bus.f == nil {
		return fmt.Errorf("i2c: %s closed", d.bus.path)
	}
	arg := rdwrArg{segs: uintptr(unsafe.Pointer(&segs[0])), nsegs: uint32(len(segs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), ioctlRdwr, uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return fmt.Errorf("i2c: %s addr 0x%02X: %w", d.bus.path, d.addr, errno)
	}
	return nil
}
