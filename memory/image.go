// Package memory holds sparse memory images: byte values at explicit
// offsets, with gaps where nothing is specified.
//
// An Image is what the Intel HEX codec decodes into and encodes from, and
// what the EEPROM layer writes, verifies and reads back.
package memory

import (
	"fmt"
	"maps"
	"slices"
)

// Image is a sparse map from offset to byte value.
//
// The zero value is not usable; create images with New.
type Image struct {
	data map[uint32]byte
}

// Segment is a run of contiguous specified bytes.
type Segment struct {
	Offset uint32
	Data   []byte
}

// End returns the offset just past the segment.
func (s Segment) End() uint32 {
	return s.Offset + uint32(len(s.Data))
}

// New returns an empty image.
func New() *Image {
	return &Image{data: make(map[uint32]byte)}
}

// FromBytes returns an image holding data at consecutive offsets from base.
func FromBytes(base uint32, data []byte) *Image {
	img := New()
	img.SetBytes(base, data)
	return img
}

// Set stores v at off, replacing any previous value.
func (m *Image) Set(off uint32, v byte) {
	m.data[off] = v
}

// Get returns the value at off and whether it is specified.
func (m *Image) Get(off uint32) (byte, bool) {
	v, ok := m.data[off]
	return v, ok
}

// SetBytes stores data at consecutive offsets from base.
func (m *Image) SetBytes(base uint32, data []byte) {
	for i, v := range data {
		m.data[base+uint32(i)] = v
	}
}

// Delete removes the value at off.
func (m *Image) Delete(off uint32) {
	delete(m.data, off)
}

// Len returns the number of specified bytes.
func (m *Image) Len() int {
	return len(m.data)
}

// Empty reports whether no byte is specified.
func (m *Image) Empty() bool {
	return len(m.data) == 0
}

// Max returns the highest specified offset. ok is false for an empty image.
func (m *Image) Max() (off uint32, ok bool) {
	for k := range m.data {
		if !ok || k > off {
			off, ok = k, true
		}
	}
	return off, ok
}

// Offsets returns the specified offsets in ascending order.
func (m *Image) Offsets() []uint32 {
	return slices.Sorted(maps.Keys(m.data))
}

// Bytes returns the n bytes starting at start, with unspecified bytes set
// to fill.
func (m *Image) Bytes(start uint32, n int, fill byte) []byte {
	out := make([]byte, n)
	for i := range out {
		if v, ok := m.data[start+uint32(i)]; ok {
			out[i] = v
		} else {
			out[i] = fill
		}
	}
	return out
}

// Segments returns the contiguous runs of specified bytes in ascending order.
func (m *Image) Segments() []Segment {
	var segs []Segment
	for _, off := range m.Offsets() {
		if n := len(segs); n > 0 && segs[n-1].End() == off {
			segs[n-1].Data = append(segs[n-1].Data, m.data[off])
			continue
		}
		segs = append(segs, Segment{Offset: off, Data: []byte{m.data[off]}})
	}
	return segs
}

// Range returns a new image holding the specified bytes in [start, end).
func (m *Image) Range(start, end uint32) *Image {
	out := New()
	for off, v := range m.data {
		if off >= start && off < end {
			out.data[off] = v
		}
	}
	return out
}

// Equal reports whether both images specify the same bytes.
func (m *Image) Equal(other *Image) bool {
	if other == nil {
		return false
	}
	return maps.Equal(m.data, other.data)
}

// Clone returns an independent copy.
func (m *Image) Clone() *Image {
	return &Image{data: maps.Clone(m.data)}
}

// Merge copies every byte of other into m, overwriting on overlap.
func (m *Image) Merge(other *Image) {
	maps.Copy(m.data, other.data)
}

func (m *Image) String() string {
	segs := m.Segments()
	if len(segs) == 0 {
		return "memory.Image{}"
	}
	return fmt.Sprintf("memory.Image{%d bytes in %d segments, 0x%X-0x%X}",
		m.Len(), len(segs), segs[0].Offset, segs[len(segs)-1].End()-1)
}
