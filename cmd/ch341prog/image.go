package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/moffa90/go-ch341prog/ihex"
	"github.com/moffa90/go-ch341prog/memory"
)

// isBinary reports whether path names a raw binary file rather than
// Intel HEX.
func isBinary(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".rom", ".eep":
		return true
	}
	return false
}

// loadImage reads an Intel HEX file, or a raw binary placed at base.
func loadImage(path string, base int) (*memory.Image, error) {
	if base < 0 || int64(base) > math.MaxUint32 {
		return nil, fmt.Errorf("offset %d out of range", base)
	}
	if isBinary(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s is empty", path)
		}
		return memory.FromBytes(uint32(base), data), nil
	}

	dec, err := ihex.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if dec.Image.Empty() {
		return nil, fmt.Errorf("%s contains no data", path)
	}
	return dec.Image, nil
}

// saveImage writes n bytes from off as Intel HEX or raw binary.
func saveImage(path string, img *memory.Image, off, n int) error {
	if isBinary(path) {
		return os.WriteFile(path, img.Bytes(uint32(off), n, 0xFF), 0o644)
	}
	return ihex.EncodeFile(path, img, uint32(off), uint32(off+n-1))
}
