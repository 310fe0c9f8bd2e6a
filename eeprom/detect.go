package eeprom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-ch341prog/transport"
)

// Detect scans the candidate addresses for an EEPROM and determines its
// geometry by probing.
//
// The first candidate that acknowledges becomes the base address. The
// address width is found with a marker write at offset 1 that lands on
// different cells depending on how many address bytes the chip consumes.
// The size class comes from address aliasing (a marker written at offset S
// shows up at offset 0 when the array is S bytes or smaller) and, for
// block-select parts, from which neighbouring device addresses acknowledge.
// Every byte written during detection is restored.
//
// Two separate chips at adjacent addresses are indistinguishable from one
// block-select part; pass a Profile to Open for such boards. Probing needs
// writable cells, so a chip with its WP pin asserted fails with
// ErrWriteProtected and must be opened with a Profile as well.
func Detect(ctx context.Context, bus Bus, opts ...Option) (*Device, error) {
	if bus == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	addr, err := scan(ctx, bus, o)
	if err != nil {
		return nil, err
	}

	// Geometry is unknown yet; pollTimeout and the base address are all
	// the probes below rely on.
	d := &Device{bus: bus, addr: addr, opts: o}

	width, err := d.detectWidth(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect address width: %w", err)
	}

	var size int
	if width == 1 {
		size, err = d.detectNarrowSize(ctx)
	} else {
		size, err = d.detectWideSize(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("detect size: %w", err)
	}

	profile, ok := ProfileForSize(size)
	if !ok {
		return nil, fmt.Errorf("detect size: no part with %d bytes", size)
	}
	d.profile = profile

	o.logger.Info("eeprom detected",
		"address", fmt.Sprintf("0x%02X", addr),
		"part", profile.Name,
		"size", profile.Size,
		"page_size", profile.PageSize,
	)
	return d, nil
}

// scan returns the first candidate address that acknowledges.
func scan(ctx context.Context, bus Bus, o options) (uint8, error) {
	for _, addr := range o.candidates {
		for attempt := 0; attempt < o.scanAttempts; attempt++ {
			if attempt > 0 && o.scanDelay > 0 {
				time.Sleep(o.scanDelay)
			}
			ok, err := bus.Probe(ctx, addr)
			if err != nil {
				return 0, fmt.Errorf("probe 0x%02X: %w", addr, err)
			}
			if ok {
				o.logger.Debug("device acknowledged", "address", fmt.Sprintf("0x%02X", addr), "attempt", attempt+1)
				return addr, nil
			}
		}
	}
	return 0, ErrNoDeviceDetected
}

func (d *Device) readWide(ctx context.Context, dev uint8, off int) (byte, error) {
	b, err := d.bus.WriteRead(ctx, dev, []byte{byte(off >> 8), byte(off)}, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) readNarrow(ctx context.Context, dev uint8, off int) (byte, error) {
	b, err := d.bus.WriteRead(ctx, dev, []byte{byte(off)}, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) rawWrite(ctx context.Context, dev uint8, data ...byte) error {
	if err := d.bus.Write(ctx, dev, data); err != nil {
		return err
	}
	return d.waitReady(ctx, dev)
}

// detectWidth returns the number of memory address bytes.
//
// A two-byte random read of offset 1 returns cell 1 on both kinds of chip:
// a one-byte chip takes 0x00 as its address and latches 0x01 as data, which
// the repeated START discards. Writing [0x00 0x00 M] then stores M in cell
// 1 of a one-byte chip and in cell 0 of a two-byte chip.
func (d *Device) detectWidth(ctx context.Context) (width int, err error) {
	cell1, err := d.readWide(ctx, d.addr, 1)
	if err != nil {
		return 0, err
	}
	wide0, err := d.readWide(ctx, d.addr, 0)
	if err != nil {
		return 0, err
	}
	narrow0, err := d.readNarrow(ctx, d.addr, 0)
	if err != nil {
		return 0, err
	}

	// The marker must differ from cell 0 too, so a write that was
	// acknowledged but not stored is told apart from one that landed.
	marker := ^cell1
	if marker == wide0 {
		marker ^= 0x01
	}
	defer func() {
		if err != nil && !transport.IsFatal(err) {
			err = errors.Join(err, d.undoWidthMarker(context.WithoutCancel(ctx), marker, cell1, wide0, narrow0))
		}
	}()
	if err := d.rawWrite(ctx, d.addr, 0x00, 0x00, marker); err != nil {
		return 0, err
	}

	got, err := d.readWide(ctx, d.addr, 1)
	if err != nil {
		return 0, err
	}

	switch got {
	case marker:
		// One-byte chip: cells 0 and 1 were written.
		if err := d.rawWrite(ctx, d.addr, 0x00, narrow0, cell1); err != nil {
			return 0, fmt.Errorf("restore: %w", err)
		}
		return 1, nil
	case cell1:
		now0, err := d.readWide(ctx, d.addr, 0)
		if err != nil {
			return 0, err
		}
		if now0 != marker {
			return 0, fmt.Errorf("%w: marker 0x%02X not stored", ErrWriteProtected, marker)
		}
		if err := d.rawWrite(ctx, d.addr, 0x00, 0x00, wide0); err != nil {
			return 0, fmt.Errorf("restore: %w", err)
		}
		return 2, nil
	default:
		return 0, fmt.Errorf("inconsistent readback 0x%02X (marker 0x%02X, original 0x%02X)", got, marker, cell1)
	}
}

// undoWidthMarker puts back whatever the width marker overwrote when the
// probe stopped before it could tell the two layouts apart. A marker in
// cell 1 means a one-byte chip, a marker in cell 0 a two-byte chip. When
// neither holds it the write never landed.
func (d *Device) undoWidthMarker(ctx context.Context, marker, cell1, wide0, narrow0 byte) error {
	got1, err := d.readWide(ctx, d.addr, 1)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if got1 == marker {
		if err := d.rawWrite(ctx, d.addr, 0x00, narrow0, cell1); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		return nil
	}

	got0, err := d.readWide(ctx, d.addr, 0)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if got0 == marker && got0 != wide0 {
		if err := d.rawWrite(ctx, d.addr, 0x00, 0x00, wide0); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	return nil
}

// aliases reports whether offset k wraps onto offset 0.
func (d *Device) aliases(ctx context.Context, wide bool, k int) (aliased bool, err error) {
	read := d.readNarrow
	addr := func(off int) []byte { return []byte{byte(off)} }
	if wide {
		read = d.readWide
		addr = func(off int) []byte { return []byte{byte(off >> 8), byte(off)} }
	}

	orig0, err := read(ctx, d.addr, 0)
	if err != nil {
		return false, err
	}
	origK, err := read(ctx, d.addr, k)
	if err != nil {
		return false, err
	}

	// Only cell k is ever written. When aliased, cell k is cell 0 and
	// origK equals orig0.
	restored := false
	defer func() {
		if err != nil && !restored && !transport.IsFatal(err) {
			if rerr := d.rawWrite(context.WithoutCancel(ctx), d.addr, append(addr(k), origK)...); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore 0x%04X: %w", k, rerr))
			}
		}
	}()

	marker := ^orig0
	if err := d.rawWrite(ctx, d.addr, append(addr(k), marker)...); err != nil {
		return false, err
	}
	got0, err := read(ctx, d.addr, 0)
	if err != nil {
		return false, err
	}

	if err := d.rawWrite(ctx, d.addr, append(addr(k), origK)...); err != nil {
		return false, fmt.Errorf("restore 0x%04X: %w", k, err)
	}
	restored = true

	aliased = got0 == marker
	d.opts.logger.Debug("alias probe", "offset", fmt.Sprintf("0x%04X", k), "aliased", aliased)
	return aliased, nil
}

// acks reports whether the base address with the given block bits set
// acknowledges. Bits that overlap the base address never count.
func (d *Device) acks(ctx context.Context, block uint8) (bool, error) {
	if d.addr&block != 0 {
		return false, nil
	}
	return d.bus.Probe(ctx, d.addr|block)
}

// detectNarrowSize sizes a chip with one address byte: 128 or 256 bytes,
// or 512, 1024 or 2048 with block select.
func (d *Device) detectNarrowSize(ctx context.Context) (int, error) {
	size := 256
	for _, block := range []uint8{1, 2, 4} {
		ok, err := d.acks(ctx, block)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		size *= 2
	}
	if size > 256 {
		return size, nil
	}

	aliased, err := d.aliases(ctx, false, 128)
	if err != nil {
		return 0, err
	}
	if aliased {
		return 128, nil
	}
	return 256, nil
}

// detectWideSize sizes a chip with two address bytes with a binary search
// over the alias offsets 4K-32K, then checks block select for 128K.
func (d *Device) detectWideSize(ctx context.Context) (int, error) {
	offsets := []int{4096, 8192, 16384, 32768}

	// Smallest offset that aliases; len(offsets) means none does.
	lo, hi := 0, len(offsets)
	for lo < hi {
		mid := (lo + hi) / 2
		aliased, err := d.aliases(ctx, true, offsets[mid])
		if err != nil {
			return 0, err
		}
		if aliased {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo < len(offsets) {
		return offsets[lo], nil
	}

	ok, err := d.acks(ctx, 1)
	if err != nil {
		return 0, err
	}
	if ok {
		return 131072, nil
	}
	return 65536, nil
}
