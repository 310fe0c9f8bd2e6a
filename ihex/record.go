package ihex

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// RecordType identifies the kind of a record.
type RecordType byte

// Record types.
const (
	TypeData            RecordType = 0x00
	TypeEOF             RecordType = 0x01
	TypeExtendedSegment RecordType = 0x02
	TypeStartSegment    RecordType = 0x03
	TypeExtendedLinear  RecordType = 0x04
	TypeStartLinear     RecordType = 0x05
)

const (
	// MaxRecordSize is the largest data payload a record can carry
	MaxRecordSize = 255

	// count + address(2) + type + checksum
	recordOverhead = 5

	// maxLineLength is the longest valid record line without terminator
	maxLineLength = 1 + 2*(MaxRecordSize+recordOverhead)
)

func (t RecordType) String() string {
	switch t {
	case TypeData:
		return "data"
	case TypeEOF:
		return "end of file"
	case TypeExtendedSegment:
		return "extended segment address"
	case TypeStartSegment:
		return "start segment address"
	case TypeExtendedLinear:
		return "extended linear address"
	case TypeStartLinear:
		return "start linear address"
	default:
		return fmt.Sprintf("type 0x%02X", byte(t))
	}
}

// Record is one decoded line.
type Record struct {
	Type    RecordType
	Address uint16
	Data    []byte
}

// Checksum returns the two's complement of the sum of the record bytes.
func (r Record) Checksum() byte {
	sum := byte(len(r.Data)) + byte(r.Address>>8) + byte(r.Address) + byte(r.Type)
	for _, b := range r.Data {
		sum += b
	}
	return ^sum + 1
}

// String formats the record as a line without terminator.
func (r Record) String() string {
	var sb strings.Builder
	sb.Grow(1 + 2*(len(r.Data)+recordOverhead))
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(r.Data), r.Address, byte(r.Type))
	for _, b := range r.Data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, "%02X", r.Checksum())
	return sb.String()
}

// ParseRecord parses a single line.
//
// Both upper and lower case hex digits are accepted. The error, if any, is
// the bare reason; callers add the line number.
func ParseRecord(line string) (Record, error) {
	if len(line) == 0 || line[0] != ':' {
		return Record{}, fmt.Errorf("missing start code ':'")
	}

	body := line[1:]
	if len(body)%2 != 0 {
		return Record{}, fmt.Errorf("odd number of hex digits (%d)", len(body))
	}
	if len(body) < 2*recordOverhead {
		return Record{}, fmt.Errorf("record too short: got %d characters, minimum is %d", len(body), 2*recordOverhead)
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return Record{}, fmt.Errorf("invalid hex data: %w", err)
	}

	count := int(raw[0])
	if len(raw) != count+recordOverhead {
		return Record{}, fmt.Errorf("length mismatch: byte count %d needs %d characters, got %d",
			count, 2*(count+recordOverhead), len(body))
	}

	r := Record{
		Type:    RecordType(raw[3]),
		Address: uint16(raw[1])<<8 | uint16(raw[2]),
		Data:    raw[4 : 4+count],
	}

	if got, want := raw[len(raw)-1], r.Checksum(); got != want {
		return Record{}, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", got, want)
	}

	if err := r.validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// validate checks the payload length each record type requires.
func (r Record) validate() error {
	want := -1
	switch r.Type {
	case TypeData:
		return nil
	case TypeEOF:
		want = 0
	case TypeExtendedSegment, TypeExtendedLinear:
		want = 2
	case TypeStartSegment, TypeStartLinear:
		want = 4
	default:
		return fmt.Errorf("unknown record type 0x%02X", byte(r.Type))
	}

	if len(r.Data) != want {
		return fmt.Errorf("%s record has %d data bytes, expected %d", r.Type, len(r.Data), want)
	}
	return nil
}
