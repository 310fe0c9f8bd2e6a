package ihex

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-ch341prog/memory"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[uint32]byte
		start *StartAddress
	}{
		{
			name:  "hello world",
			input: ":1000000048656C6C6F2C20776F726C642100000067\n:00000001FF\n",
			want: map[uint32]byte{
				0x00: 0x48, 0x01: 0x65, 0x02: 0x6C, 0x03: 0x6C, 0x04: 0x6F, 0x05: 0x2C, 0x06: 0x20, 0x07: 0x77,
				0x08: 0x6F, 0x09: 0x72, 0x0A: 0x6C, 0x0B: 0x64, 0x0C: 0x21, 0x0D: 0x00, 0x0E: 0x00, 0x0F: 0x00,
			},
		},
		{
			name:  "CRLF and blank lines",
			input: "\r\n:0100100042AD\r\n\r\n:00000001FF\r\n",
			want:  map[uint32]byte{0x10: 0x42},
		},
		{
			name:  "lower case hex",
			input: ":02000000abcd86\n:00000001ff\n",
			want:  map[uint32]byte{0x00: 0xAB, 0x01: 0xCD},
		},
		{
			name:  "extended linear address",
			input: ":020000040001F9\n:0100020011EC\n:00000001FF\n",
			want:  map[uint32]byte{0x10002: 0x11},
		},
		{
			name:  "extended segment address",
			input: ":020000021000EC\n:0100020011EC\n:00000001FF\n",
			want:  map[uint32]byte{0x10002: 0x11},
		},
		{
			name:  "base applies until overridden",
			input: ":020000040001F9\n:0100000001FE\n:020000040000FA\n:0100000002FD\n:00000001FF\n",
			want:  map[uint32]byte{0x10000: 0x01, 0x00000: 0x02},
		},
		{
			name:  "start linear address",
			input: ":0400000500001234B1\n:00000001FF\n",
			want:  map[uint32]byte{},
			start: &StartAddress{Linear: true, Value: 0x1234},
		},
		{
			name:  "content after EOF ignored",
			input: ":0100000001FE\n:00000001FF\nthis is not a record\n",
			want:  map[uint32]byte{0x00: 0x01},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := DecodeReader(strings.NewReader(tt.input))
			require.NoError(t, err)

			want := memory.New()
			for off, v := range tt.want {
				want.Set(off, v)
			}
			assert.True(t, want.Equal(dec.Image), "got %v", dec.Image)
			assert.Equal(t, tt.start, dec.Start)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		errMsg   string
	}{
		{
			name:     "missing colon",
			input:    "0100000001FE\n:00000001FF\n",
			wantLine: 1,
			errMsg:   "missing start code",
		},
		{
			name:     "invalid hex",
			input:    ":01000000G1FE\n:00000001FF\n",
			wantLine: 1,
			errMsg:   "invalid hex data",
		},
		{
			name:     "checksum mismatch",
			input:    ":0100000001FF\n:00000001FF\n",
			wantLine: 1,
			errMsg:   "checksum mismatch",
		},
		{
			name:     "length mismatch",
			input:    ":0100000001FE\n:0200000001FC\n",
			wantLine: 2,
			errMsg:   "length mismatch",
		},
		{
			name:     "unknown record type",
			input:    ":00000006FA\n:00000001FF\n",
			wantLine: 1,
			errMsg:   "unknown record type 0x06",
		},
		{
			name:     "short record",
			input:    ":000000\n",
			wantLine: 1,
			errMsg:   "too short",
		},
		{
			name:     "extended address with wrong length",
			input:    ":0100000401FA\n:00000001FF\n",
			wantLine: 1,
			errMsg:   "expected 2",
		},
		{
			name:     "missing EOF",
			input:    ":0100000001FE\n",
			wantLine: 2,
			errMsg:   "missing end-of-file",
		},
		{
			name:     "empty input",
			input:    "",
			wantLine: 1,
			errMsg:   "missing end-of-file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)

			var merr *MalformedRecordError
			require.True(t, errors.As(err, &merr), "got %T: %v", err, err)
			assert.Equal(t, tt.wantLine, merr.Line)
			assert.Contains(t, merr.Reason, tt.errMsg)
			assert.Contains(t, err.Error(), "line ")
		})
	}
}

func TestDecode_LineLength(t *testing.T) {
	full := Record{Type: TypeData, Address: 0x0100, Data: []byte(strings.Repeat("x", MaxRecordSize))}

	img, err := Decode(full.String() + "  \r\n:00000001FF\n")
	require.NoError(t, err)
	assert.Equal(t, MaxRecordSize, img.Len())

	for _, n := range []int{2 * maxLineLength, 70 << 10} {
		input := ":0100000001FE\n:" + strings.Repeat("00", n/2) + "\n:00000001FF\n"
		_, err := Decode(input)

		var merr *MalformedRecordError
		require.ErrorAs(t, err, &merr, "length %d", n)
		assert.Equal(t, 2, merr.Line)
		assert.Equal(t, "line too long", merr.Reason)
	}
}

// The checksum byte of this literal is 0x21; the correct value is 0x67.
func TestDecode_WrongChecksumLiteral(t *testing.T) {
	_, err := Decode(":1000000048656C6C6F2C20776F726C642100000021\n:00000001FF\n")

	var merr *MalformedRecordError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 1, merr.Line)
	assert.Contains(t, merr.Reason, "expected 0x67")
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.hex")
	require.NoError(t, os.WriteFile(path, []byte(":0100000001FE\n:00000001FF\n"), 0o644))

	dec, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, dec.Image.Len())

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.hex"))
	assert.ErrorContains(t, err, "failed to open file")
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(":03FFF00001020308")
	require.NoError(t, err)
	assert.Equal(t, Record{Type: TypeData, Address: 0xFFF0, Data: []byte{1, 2, 3}}, rec)
	assert.Equal(t, ":03FFF00001020308", rec.String())
	assert.Equal(t, "extended linear address", TypeExtendedLinear.String())
	assert.Equal(t, "type 0x07", RecordType(7).String())
}
