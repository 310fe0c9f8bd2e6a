package ihex

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moffa90/go-ch341prog/memory"
)

type encodeOptions struct {
	recordSize int
	newline    string
	start      *StartAddress
}

func defaultEncodeOptions() encodeOptions {
	return encodeOptions{
		recordSize: 16,
		newline:    "\n",
	}
}

// Option is a functional option for the encoder.
type Option func(*encodeOptions)

// WithRecordSize sets the maximum number of data bytes per record (1-255).
// Default is 16.
func WithRecordSize(n int) Option {
	return func(o *encodeOptions) {
		if n > 0 && n <= MaxRecordSize {
			o.recordSize = n
		}
	}
}

// WithCRLF terminates lines with CRLF instead of LF.
func WithCRLF() Option {
	return func(o *encodeOptions) {
		o.newline = "\r\n"
	}
}

// WithStartAddress emits a start address record before the end-of-file
// record.
func WithStartAddress(s *StartAddress) Option {
	return func(o *encodeOptions) {
		o.start = s
	}
}

// Encode returns the Intel HEX text for the bytes of img whose offsets lie
// in [start, end].
//
// Data records hold at most 16 bytes, appear in ascending address order,
// never span a gap or a 64 KiB boundary, and an extended linear address
// record precedes the first record of every 64 KiB region above the first.
func Encode(img *memory.Image, start, end uint32, opts ...Option) (string, error) {
	var sb strings.Builder
	if err := EncodeTo(&sb, img, start, end, opts...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// EncodeFile writes the Intel HEX text for img to path.
func EncodeFile(path string, img *memory.Image, start, end uint32, opts ...Option) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := EncodeTo(f, img, start, end, opts...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// EncodeTo writes the Intel HEX text for img to w.
func EncodeTo(w io.Writer, img *memory.Image, start, end uint32, opts ...Option) error {
	if img == nil {
		return fmt.Errorf("image cannot be nil")
	}
	if start > end {
		return fmt.Errorf("invalid range: start 0x%X is after end 0x%X", start, end)
	}

	o := defaultEncodeOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bw := bufio.NewWriter(w)
	emit := func(r Record) {
		bw.WriteString(r.String())
		bw.WriteString(o.newline)
	}

	var upper uint32

	for _, seg := range clip(img.Segments(), start, end) {
		data := seg.Data
		addr := seg.Offset
		for len(data) > 0 {
			n := min(len(data), o.recordSize, int(0x10000-addr&0xFFFF))
			if hi := addr >> 16; hi != upper {
				emit(Record{Type: TypeExtendedLinear, Data: []byte{byte(hi >> 8), byte(hi)}})
				upper = hi
			}
			emit(Record{Type: TypeData, Address: uint16(addr), Data: data[:n]})
			data = data[n:]
			addr += uint32(n)
		}
	}

	if o.start != nil {
		typ := TypeStartSegment
		if o.start.Linear {
			typ = TypeStartLinear
		}
		v := o.start.Value
		emit(Record{Type: typ, Data: []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}})
	}
	emit(Record{Type: TypeEOF})

	return bw.Flush()
}

// clip returns the parts of segs that lie in [start, end].
func clip(segs []memory.Segment, start, end uint32) []memory.Segment {
	var out []memory.Segment
	for _, seg := range segs {
		last := seg.Offset + uint32(len(seg.Data)-1)
		if last < start || seg.Offset > end {
			continue
		}
		lo := max(seg.Offset, start) - seg.Offset
		hi := min(last, end) - seg.Offset
		out = append(out, memory.Segment{Offset: seg.Offset + lo, Data: seg.Data[lo : hi+1]})
	}
	return out
}
