package eeprom

import (
	"fmt"
	"math/bits"
	"strings"
)

// Profile describes the geometry of an EEPROM part.
type Profile struct {
	// Name is the part name, e.g. "24C02"
	Name string

	// Size is the capacity in bytes
	Size int

	// PageSize is the write page size in bytes
	PageSize int

	// AddressWidth is the number of memory address bytes sent after the
	// device address (1 or 2)
	AddressWidth int

	// BlockBits is the number of high memory address bits carried in the
	// low bits of the device address
	BlockBits int
}

// NewProfile builds a profile and derives its address width.
func NewProfile(name string, size, pageSize, blockBits int) (Profile, error) {
	p := Profile{
		Name:      name,
		Size:      size,
		PageSize:  pageSize,
		BlockBits: blockBits,
	}
	if isPow2(size) {
		p.AddressWidth = addressWidth(size, blockBits)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the geometry invariants.
func (p Profile) Validate() error {
	if !isPow2(p.Size) {
		return fmt.Errorf("profile %s: size %d is not a power of two", p.Name, p.Size)
	}
	if !isPow2(p.PageSize) || p.PageSize > p.Size {
		return fmt.Errorf("profile %s: page size %d must be a power of two not larger than %d",
			p.Name, p.PageSize, p.Size)
	}
	if p.BlockBits < 0 || p.BlockBits > 3 {
		return fmt.Errorf("profile %s: block bits %d out of range 0-3", p.Name, p.BlockBits)
	}
	want := addressWidth(p.Size, p.BlockBits)
	if want < 1 || want > 2 {
		return fmt.Errorf("profile %s: %d bytes with %d block bits needs %d address bytes",
			p.Name, p.Size, p.BlockBits, want)
	}
	if p.AddressWidth != want {
		return fmt.Errorf("profile %s: address width %d, expected %d", p.Name, p.AddressWidth, want)
	}
	return nil
}

// Pages returns the number of write pages.
func (p Profile) Pages() int {
	return p.Size / p.PageSize
}

// BlockSize returns the number of bytes reachable through one device
// address.
func (p Profile) BlockSize() int {
	return min(1<<(8*p.AddressWidth), p.Size)
}

func (p Profile) String() string {
	return fmt.Sprintf("%s (%d bytes, %d-byte pages)", p.Name, p.Size, p.PageSize)
}

func addressWidth(size, blockBits int) int {
	addrBits := bits.Len(uint(size)) - 1 - blockBits
	return (addrBits + 7) / 8
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

var catalog = []Profile{
	{Name: "24C01", Size: 128, PageSize: 8, AddressWidth: 1},
	{Name: "24C02", Size: 256, PageSize: 8, AddressWidth: 1},
	{Name: "24C04", Size: 512, PageSize: 16, AddressWidth: 1, BlockBits: 1},
	{Name: "24C08", Size: 1024, PageSize: 16, AddressWidth: 1, BlockBits: 2},
	{Name: "24C16", Size: 2048, PageSize: 16, AddressWidth: 1, BlockBits: 3},
	{Name: "24C32", Size: 4096, PageSize: 32, AddressWidth: 2},
	{Name: "24C64", Size: 8192, PageSize: 32, AddressWidth: 2},
	{Name: "24C128", Size: 16384, PageSize: 64, AddressWidth: 2},
	{Name: "24C256", Size: 32768, PageSize: 64, AddressWidth: 2},
	{Name: "24C512", Size: 65536, PageSize: 128, AddressWidth: 2},
	{Name: "24C1024", Size: 131072, PageSize: 128, AddressWidth: 2, BlockBits: 1},
}

// Catalog returns the known parts in ascending size.
func Catalog() []Profile {
	out := make([]Profile, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a part by name, ignoring case and an optional "AT" or "M"
// vendor prefix ("24c02", "AT24C02", "M24C02").
func Lookup(name string) (Profile, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "AT")
	n = strings.TrimPrefix(n, "M")
	for _, p := range catalog {
		if p.Name == n {
			return p, true
		}
	}
	return Profile{}, false
}

// ProfileForSize returns the catalog part with the given capacity.
func ProfileForSize(size int) (Profile, bool) {
	for _, p := range catalog {
		if p.Size == size {
			return p, true
		}
	}
	return Profile{}, false
}
