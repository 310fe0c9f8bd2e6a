package ihex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moffa90/go-ch341prog/memory"
)

// StartAddress is the execution start address carried by a type 03 or 05
// record. EEPROM contents rarely have one; it is kept so files survive a
// decode/encode cycle unchanged.
type StartAddress struct {
	// Linear is true for a type 05 record, false for type 03
	Linear bool

	// Value is EIP for type 05, or CS<<16 | IP for type 03
	Value uint32
}

// Decoded is the result of decoding a file.
type Decoded struct {
	Image *memory.Image
	Start *StartAddress
}

// Decode decodes Intel HEX text into a memory image.
//
// Example:
//
//	img, err := ihex.Decode(":0100000042BD\n:00000001FF\n")
func Decode(text string) (*memory.Image, error) {
	dec, err := DecodeReader(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	return dec.Image, nil
}

// DecodeFile decodes the Intel HEX file at path.
func DecodeFile(path string) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return DecodeReader(f)
}

// DecodeReader decodes Intel HEX text from any io.Reader. LF and CRLF line
// endings are accepted and blank lines are skipped.
func DecodeReader(r io.Reader) (*Decoded, error) {
	scanner := bufio.NewScanner(r)
	// Room for the longest record plus trailing blanks and CRLF.
	scanner.Buffer(make([]byte, 0, 1024), maxLineLength+64)

	dec := &Decoded{Image: memory.New()}
	var base uint32
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if line == "" {
			continue
		}

		rec, err := ParseRecord(line)
		if err != nil {
			return nil, &MalformedRecordError{Line: lineNum, Reason: err.Error()}
		}

		switch rec.Type {
		case TypeData:
			dec.Image.SetBytes(base+uint32(rec.Address), rec.Data)
		case TypeEOF:
			return dec, nil
		case TypeExtendedSegment:
			base = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 4
		case TypeExtendedLinear:
			base = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 16
		case TypeStartSegment, TypeStartLinear:
			dec.Start = &StartAddress{
				Linear: rec.Type == TypeStartLinear,
				Value:  uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16 | uint32(rec.Data[2])<<8 | uint32(rec.Data[3]),
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &MalformedRecordError{Line: lineNum + 1, Reason: "line too long"}
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return nil, &MalformedRecordError{Line: lineNum + 1, Reason: "missing end-of-file record"}
}
