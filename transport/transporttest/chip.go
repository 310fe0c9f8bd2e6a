package transporttest

import "fmt"

// ChipConfig describes the geometry and timing of a simulated 24Cxx EEPROM.
type ChipConfig struct {
	// Size is the capacity in bytes; must be a power of two
	Size int

	// PageSize is the write page size in bytes; must be a power of two
	PageSize int

	// AddrWidth is the number of memory address bytes (1 or 2)
	AddrWidth int

	// BlockBits is the number of low device address bits used as high
	// memory address bits
	BlockBits int

	// BusyProbes is the number of address phases NACKed after each write
	// cycle. Negative keeps the chip busy forever.
	BusyProbes int
}

// Common chip geometries.
var (
	Chip24C01   = ChipConfig{Size: 128, PageSize: 8, AddrWidth: 1, BusyProbes: 2}
	Chip24C02   = ChipConfig{Size: 256, PageSize: 8, AddrWidth: 1, BusyProbes: 2}
	Chip24C04   = ChipConfig{Size: 512, PageSize: 16, AddrWidth: 1, BlockBits: 1, BusyProbes: 2}
	Chip24C08   = ChipConfig{Size: 1024, PageSize: 16, AddrWidth: 1, BlockBits: 2, BusyProbes: 2}
	Chip24C16   = ChipConfig{Size: 2048, PageSize: 16, AddrWidth: 1, BlockBits: 3, BusyProbes: 2}
	Chip24C32   = ChipConfig{Size: 4096, PageSize: 32, AddrWidth: 2, BusyProbes: 2}
	Chip24C64   = ChipConfig{Size: 8192, PageSize: 32, AddrWidth: 2, BusyProbes: 2}
	Chip24C128  = ChipConfig{Size: 16384, PageSize: 64, AddrWidth: 2, BusyProbes: 2}
	Chip24C256  = ChipConfig{Size: 32768, PageSize: 64, AddrWidth: 2, BusyProbes: 2}
	Chip24C512  = ChipConfig{Size: 65536, PageSize: 128, AddrWidth: 2, BusyProbes: 2}
	Chip24C1024 = ChipConfig{Size: 131072, PageSize: 128, AddrWidth: 2, BlockBits: 1, BusyProbes: 2}
)

// Chip is a simulated I2C EEPROM.
//
// It models the behaviour programmers depend on: the internal address
// counter, page-buffer latching committed only by STOP, page rollover,
// address aliasing beyond the array, and NACKing while a write cycle runs.
type Chip struct {
	cfg  ChipConfig
	base uint8
	mem  []byte

	busy      int
	counter   int
	cycles    int
	protected bool

	// per-transaction state
	selected  bool
	reading   bool
	block     int
	addrBytes int
	word      int
	latch     []latched
}

type latched struct {
	off int
	val byte
}

// NewChip creates a chip answering at base (block bits must be zero) with
// its memory erased to 0xFF.
func NewChip(base uint8, cfg ChipConfig) *Chip {
	mask := uint8(1<<cfg.BlockBits - 1)
	if base&mask != 0 || base > 0x7F {
		panic(fmt.Sprintf("invalid base address 0x%02X for %d block bits", base, cfg.BlockBits))
	}
	if cfg.Size <= 0 || cfg.Size&(cfg.Size-1) != 0 || cfg.PageSize <= 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		panic(fmt.Sprintf("invalid chip geometry %+v", cfg))
	}

	mem := make([]byte, cfg.Size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &Chip{cfg: cfg, base: base, mem: mem}
}

// Config returns the chip geometry.
func (c *Chip) Config() ChipConfig {
	return c.cfg
}

// Memory returns a copy of the array contents.
func (c *Chip) Memory() []byte {
	out := make([]byte, len(c.mem))
	copy(out, c.mem)
	return out
}

// Load writes data directly into the array at offset, bypassing the bus.
func (c *Chip) Load(offset int, data []byte) {
	for i, b := range data {
		c.mem[c.wrap(offset+i)] = b
	}
}

// WriteCycles returns the number of committed write cycles.
func (c *Chip) WriteCycles() int {
	return c.cycles
}

// SetBusy forces the chip into a write cycle lasting n address phases.
func (c *Chip) SetBusy(n int) {
	c.busy = n
}

// SetWriteProtect models the WP pin. A protected chip acknowledges data
// bytes but never starts a write cycle.
func (c *Chip) SetWriteProtect(on bool) {
	c.protected = on
}

func (c *Chip) wrap(off int) int {
	return off & (c.cfg.Size - 1)
}

// responds reports whether the chip answers the 7-bit address and which
// block it selects.
func (c *Chip) responds(addr uint8) (int, bool) {
	mask := uint8(1<<c.cfg.BlockBits - 1)
	if addr&^mask != c.base {
		return 0, false
	}
	return int(addr & mask), true
}

// address handles an address phase and returns the ACK.
func (c *Chip) address(block int, read bool) bool {
	c.deselect()

	if c.busy != 0 {
		if c.busy > 0 {
			c.busy--
		}
		return false
	}

	c.selected = true
	c.reading = read
	c.block = block
	if read && c.cfg.BlockBits > 0 {
		low := c.counter & (1<<(8*c.cfg.AddrWidth) - 1)
		c.counter = c.wrap(block<<(8*c.cfg.AddrWidth) | low)
	}
	return true
}

// write handles a byte clocked out to the chip and returns the ACK.
func (c *Chip) write(b byte) bool {
	if !c.selected || c.reading {
		return false
	}

	if c.addrBytes < c.cfg.AddrWidth {
		c.word = c.word<<8 | int(b)
		c.addrBytes++
		if c.addrBytes == c.cfg.AddrWidth {
			c.counter = c.wrap(c.block<<(8*c.cfg.AddrWidth) | c.word)
		}
		return true
	}

	c.latch = append(c.latch, latched{off: c.counter, val: b})
	page := c.counter &^ (c.cfg.PageSize - 1)
	c.counter = page | (c.counter+1)&(c.cfg.PageSize-1)
	return true
}

// read clocks one byte out of the chip.
func (c *Chip) read() byte {
	if !c.selected || !c.reading {
		return 0xFF
	}
	b := c.mem[c.counter]
	c.counter = c.wrap(c.counter + 1)
	return b
}

// stop ends the transaction; latched data starts a write cycle.
func (c *Chip) stop() {
	if c.selected && !c.reading && len(c.latch) > 0 && !c.protected {
		for _, l := range c.latch {
			c.mem[l.off] = l.val
		}
		c.cycles++
		c.busy = c.cfg.BusyProbes
	}
	c.deselect()
}

// deselect abandons the transaction; latched data is discarded.
func (c *Chip) deselect() {
	c.selected = false
	c.reading = false
	c.addrBytes = 0
	c.word = 0
	c.latch = nil
}
