// Package transporttest provides an in-memory CH341A bridge with simulated
// I2C EEPROMs for exercising the transport, bus and EEPROM layers without
// hardware.
//
// A Bridge implements both transport.Backend and transport.Conn. It decodes
// every command packet with the protocol package, drives the simulated chips
// and queues the response bytes the real bridge would return.
//
// Basic usage:
//
//	chip := transporttest.NewChip(0x50, transporttest.Chip24C02)
//	bridge := transporttest.NewBridge(chip)
//	mgr := transport.NewManager(bridge)
//	h, err := mgr.Open(ctx, "")
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/moffa90/go-ch341prog/protocol"
	"github.com/moffa90/go-ch341prog/transport"
)

// AdapterID is the identifier the simulated adapter is listed under.
const AdapterID = "sim:1"

// Transaction records one addressed bus transaction, from START to the
// following STOP or repeated START.
type Transaction struct {
	// Addr is the 7-bit device address
	Addr uint8

	// Read is true for a read-direction address phase
	Read bool

	// Acked is true when a device acknowledged the address
	Acked bool

	// Written holds the bytes clocked out after the address
	Written []byte

	// ReadLen is the number of bytes clocked in
	ReadLen int

	// Stopped is true when the transaction ended with STOP
	Stopped bool
}

// Bridge is a simulated CH341A with chips attached to its I2C bus.
//
// Bridge is safe for concurrent use.
type Bridge struct {
	mu    sync.Mutex
	chips []*Chip

	speed     protocol.Speed
	speedSets int
	pending   []byte
	log       []*Transaction
	cur       *Transaction
	addressed bool
	active    *Chip

	open     bool
	openErr  error
	listErr  error
	nackAddr int
	timeouts int
	ioErr    error
	packets  int
}

// NewBridge creates a bridge with the given chips on its bus.
func NewBridge(chips ...*Chip) *Bridge {
	return &Bridge{chips: chips, speed: protocol.Speed100kHz}
}

// AddChip attaches another chip to the bus.
func (b *Bridge) AddChip(c *Chip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chips = append(b.chips, c)
}

// RemoveChip detaches a chip from the bus.
func (b *Bridge) RemoveChip(c *Chip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chips = slices.DeleteFunc(b.chips, func(other *Chip) bool { return other == c })
}

// Speed returns the last speed selected with a SET sub-command.
func (b *Bridge) Speed() protocol.Speed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// SpeedChanges returns how many SET sub-commands were received.
func (b *Bridge) SpeedChanges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speedSets
}

// Packets returns the number of command packets received.
func (b *Bridge) Packets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.packets
}

// Transactions returns a copy of the transaction log.
func (b *Bridge) Transactions() []Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Transaction, len(b.log))
	for i, t := range b.log {
		out[i] = *t
		out[i].Written = append([]byte(nil), t.Written...)
	}
	return out
}

// ResetLog clears the transaction log.
func (b *Bridge) ResetLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
}

// FailAddress makes the next n address phases NACK regardless of the chips.
func (b *Bridge) FailAddress(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nackAddr = n
}

// DropResponses makes the next n reads time out. The response bytes stay
// queued, as a late answer would on real hardware.
func (b *Bridge) DropResponses(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeouts = n
}

// FailNextWrite makes the next bulk write fail with err.
func (b *Bridge) FailNextWrite(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ioErr = err
}

// SetOpenError makes Open fail with err.
func (b *Bridge) SetOpenError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

// SetListError makes List fail with err.
func (b *Bridge) SetListError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// IsOpen reports whether the simulated adapter is currently open.
func (b *Bridge) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// List implements transport.Backend.
func (b *Bridge) List(ctx context.Context) ([]transport.AdapterInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listErr != nil {
		return nil, b.listErr
	}
	return []transport.AdapterInfo{{
		ID:          AdapterID,
		Bus:         1,
		Address:     1,
		VendorID:    protocol.VendorID,
		ProductID:   protocol.ProductID,
		Description: "simulated CH341A",
	}}, nil
}

// Open implements transport.Backend.
func (b *Bridge) Open(ctx context.Context, info transport.AdapterInfo) (transport.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if info.ID != AdapterID {
		return nil, transport.ErrDeviceNotFound
	}
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.open = true
	b.pending = nil
	return b, nil
}

// WriteContext implements transport.Conn.
func (b *Bridge) WriteContext(ctx context.Context, p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return 0, errors.New("write on closed adapter")
	}
	if b.ioErr != nil {
		err := b.ioErr
		b.ioErr = nil
		return 0, err
	}

	insts, err := protocol.ParsePacket(p)
	if err != nil {
		return 0, err
	}
	b.packets++

	for _, in := range insts {
		b.execute(in)
	}
	return len(p), nil
}

// ReadContext implements transport.Conn.
func (b *Bridge) ReadContext(ctx context.Context, p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return 0, errors.New("read on closed adapter")
	}
	if b.timeouts > 0 {
		b.timeouts--
		return 0, fmt.Errorf("%w: simulated", transport.ErrTimeout)
	}
	if len(b.pending) == 0 {
		return 0, fmt.Errorf("%w: no response pending", transport.ErrTimeout)
	}

	n := copy(p[:min(len(p), protocol.PacketSize)], b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// Close implements transport.Conn and transport.Backend.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

func (b *Bridge) execute(in protocol.Instruction) {
	switch in.Op {
	case protocol.StmStart:
		b.endTransaction(false)
		b.cur = &Transaction{}
		b.addressed = false
	case protocol.StmStop:
		b.endTransaction(true)
	case protocol.StmOut:
		for _, v := range in.Bytes {
			ack := b.out(v)
			if in.Count == 0 {
				if ack {
					b.pending = append(b.pending, 0x00)
				} else {
					b.pending = append(b.pending, protocol.NackBit)
				}
			}
		}
	case protocol.StmIn:
		n := max(in.Count, 1)
		for range n {
			b.pending = append(b.pending, b.in())
		}
	case protocol.StmSet:
		b.speed = protocol.Speed(in.Count)
		b.speedSets++
	case protocol.StmDelayUs:
	}
}

// out clocks one byte onto the bus and returns the ACK.
func (b *Bridge) out(v byte) bool {
	if b.cur == nil {
		return false
	}

	// First byte after START is the address phase.
	if !b.addressed {
		b.addressed = true
		return b.addressPhase(v)
	}

	b.cur.Written = append(b.cur.Written, v)
	if b.active == nil {
		return false
	}
	return b.active.write(v)
}

func (b *Bridge) addressPhase(v byte) bool {
	addr, read := v>>1, v&1 == 1
	b.cur.Addr = addr
	b.cur.Read = read
	b.active = nil
	b.log = append(b.log, b.cur)

	if b.nackAddr > 0 {
		b.nackAddr--
		return false
	}

	for _, c := range b.chips {
		if block, ok := c.responds(addr); ok {
			if c.address(block, read) {
				b.active = c
				b.cur.Acked = true
			}
			break
		}
	}
	return b.cur.Acked
}

func (b *Bridge) in() byte {
	if b.cur != nil {
		b.cur.ReadLen++
	}
	if b.active == nil {
		return 0xFF
	}
	return b.active.read()
}

// endTransaction closes the current transaction record and signals STOP or
// repeated START to the chips.
func (b *Bridge) endTransaction(stop bool) {
	for _, c := range b.chips {
		if stop {
			c.stop()
		} else {
			c.deselect()
		}
	}
	b.active = nil

	if b.cur != nil && b.addressed {
		b.cur.Stopped = stop
	}
	b.cur = nil
	b.addressed = false
}
