package eeprom

import (
	"context"
	"fmt"
	"time"
)

// Bus is the subset of the I2C bus driver the EEPROM model needs.
// *i2c.Bus implements it.
type Bus interface {
	Write(ctx context.Context, addr uint8, data []byte) error
	WriteRead(ctx context.Context, addr uint8, w []byte, n int) ([]byte, error)
	Probe(ctx context.Context, addr uint8) (bool, error)
}

// Device is an EEPROM at a known address with a known geometry.
type Device struct {
	bus     Bus
	addr    uint8
	profile Profile
	opts    options
}

// Open returns a device for a chip whose geometry is already known.
func Open(bus Bus, addr uint8, profile Profile, opts ...Option) (*Device, error) {
	if bus == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	mask := uint8(1<<profile.BlockBits - 1)
	if addr > 0x7F || addr&mask != 0 {
		return nil, fmt.Errorf("address 0x%02X is not a valid base for %s", addr, profile.Name)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Device{bus: bus, addr: addr, profile: profile, opts: o}, nil
}

// Address returns the base device address.
func (d *Device) Address() uint8 {
	return d.addr
}

// Profile returns the chip geometry.
func (d *Device) Profile() Profile {
	return d.profile
}

func (d *Device) String() string {
	return fmt.Sprintf("%s at 0x%02X", d.profile, d.addr)
}

// target splits an array offset into the device address and the memory
// address bytes sent after it.
func (d *Device) target(off int) (uint8, []byte) {
	aw := d.profile.AddressWidth
	dev := d.addr | uint8(off>>(8*aw))
	if aw == 1 {
		return dev, []byte{byte(off)}
	}
	return dev, []byte{byte(off >> 8), byte(off)}
}

func (d *Device) checkRange(off, n int) error {
	if off < 0 || n < 0 || off+n > d.profile.Size {
		return &RangeError{Offset: off, Length: n, Size: d.profile.Size}
	}
	return nil
}

// ReadByte reads one byte with a random read.
func (d *Device) ReadByte(ctx context.Context, off int) (byte, error) {
	b, err := d.ReadRange(ctx, off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadRange reads n bytes from off. The read is split into chunks and
// re-addressed at every block boundary.
func (d *Device) ReadRange(ctx context.Context, off, n int) ([]byte, error) {
	if err := d.checkRange(off, n); err != nil {
		return nil, err
	}

	out := make([]byte, 0, n)
	block := d.profile.BlockSize()
	for n > 0 {
		blockEnd := (off/block + 1) * block
		k := min(n, d.opts.readChunk, blockEnd-off)

		dev, a := d.target(off)
		b, err := d.bus.WriteRead(ctx, dev, a, k)
		if err != nil {
			return nil, fmt.Errorf("read 0x%04X+%d: %w", off, k, err)
		}
		out = append(out, b...)
		off += k
		n -= k
	}
	return out, nil
}

// WriteByte writes one byte and waits for the write cycle to finish.
func (d *Device) WriteByte(ctx context.Context, off int, v byte) error {
	if err := d.checkRange(off, 1); err != nil {
		return err
	}

	dev, a := d.target(off)
	if err := d.bus.Write(ctx, dev, append(a, v)); err != nil {
		return fmt.Errorf("write 0x%04X: %w", off, err)
	}
	return d.waitReady(ctx, dev)
}

// WritePage writes up to one page starting at a page boundary and waits
// for the write cycle to finish.
func (d *Device) WritePage(ctx context.Context, off int, data []byte) error {
	if err := d.checkRange(off, len(data)); err != nil {
		return err
	}
	if off%d.profile.PageSize != 0 {
		return fmt.Errorf("write page: offset 0x%04X is not aligned to %d-byte pages", off, d.profile.PageSize)
	}
	if len(data) == 0 || len(data) > d.profile.PageSize {
		return fmt.Errorf("write page: %d bytes, must be 1-%d", len(data), d.profile.PageSize)
	}

	dev, a := d.target(off)
	if err := d.bus.Write(ctx, dev, append(a, data...)); err != nil {
		return fmt.Errorf("write page 0x%04X: %w", off, err)
	}
	return d.waitReady(ctx, dev)
}

// WaitReady polls the chip until it acknowledges its address again, which
// it does once the internal write cycle has finished.
func (d *Device) WaitReady(ctx context.Context) error {
	return d.waitReady(ctx, d.addr)
}

func (d *Device) waitReady(ctx context.Context, dev uint8) error {
	deadline := time.Now().Add(d.opts.pollTimeout)
	for polls := 1; ; polls++ {
		ok, err := d.bus.Probe(ctx, dev)
		if err != nil {
			return fmt.Errorf("acknowledge polling: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("device 0x%02X busy after %d polls: %w", dev, polls, ErrWriteTimeout)
		}
	}
}
