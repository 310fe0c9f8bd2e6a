package protocol

import "fmt"

// Response holds the decoded answer to one packet.
type Response struct {
	// Acks holds one entry per acknowledged OUT, true when the slave ACKed
	Acks []bool

	// Data holds the bytes clocked in by IN sub-commands, in order
	Data []byte
}

// ParseResponse splits the raw bytes read from the bulk IN pipe according to
// the layout recorded in pkt.
func ParseResponse(pkt Packet, raw []byte) (*Response, error) {
	want := pkt.ResponseLen()
	if len(raw) < want {
		return nil, &ProtocolError{
			Operation: "parse response",
			Reason:    fmt.Sprintf("short response: got %d bytes, expected %d", len(raw), want),
		}
	}

	r := &Response{}
	pos := 0
	for _, f := range pkt.Expect {
		switch f.Kind {
		case FieldAck:
			r.Acks = append(r.Acks, raw[pos]&NackBit == 0)
		case FieldData:
			r.Data = append(r.Data, raw[pos:pos+f.Len]...)
		}
		pos += f.Len
	}

	return r, nil
}

// Instruction is one decoded stream sub-command.
type Instruction struct {
	// Op is the base sub-command code (StmStart, StmOut, ...)
	Op byte

	// Count is the count or speed argument carried in the low bits
	Count int

	// Bytes holds the payload of an OUT sub-command
	Bytes []byte
}

// ParsePacket decodes a command packet into its sub-commands.
// The packet must start with CmdI2CStream and be terminated by StmEnd.
func ParsePacket(data []byte) ([]Instruction, error) {
	if len(data) == 0 || data[0] != CmdI2CStream {
		return nil, &ProtocolError{Operation: "parse packet", Reason: "missing stream header"}
	}
	if len(data) > PacketSize {
		return nil, &ProtocolError{
			Operation: "parse packet",
			Reason:    fmt.Sprintf("packet too long: %d bytes, maximum is %d", len(data), PacketSize),
		}
	}

	var out []Instruction
	for i := 1; i < len(data); i++ {
		b := data[i]
		switch {
		case b == StmEnd:
			return out, nil
		case b == StmStart, b == StmStop:
			out = append(out, Instruction{Op: b})
		case b&0xE0 == StmOut:
			n := int(b & CountMask)
			size := max(n, 1)
			if i+size >= len(data) {
				return nil, &ProtocolError{Operation: "parse packet", Reason: "truncated OUT payload"}
			}
			out = append(out, Instruction{Op: StmOut, Count: n, Bytes: data[i+1 : i+1+size]})
			i += size
		case b&0xE0 == StmIn:
			out = append(out, Instruction{Op: StmIn, Count: int(b & CountMask)})
		case b&0xFC == StmSet:
			out = append(out, Instruction{Op: StmSet, Count: int(b & SpeedMask)})
		case b&0xE0 == StmDelayUs:
			out = append(out, Instruction{Op: StmDelayUs, Count: int(b & CountMask)})
		default:
			return nil, &ProtocolError{
				Operation: "parse packet",
				Reason:    fmt.Sprintf("unknown sub-command 0x%02X at position %d", b, i),
			}
		}
	}

	return nil, &ProtocolError{Operation: "parse packet", Reason: "missing end of stream"}
}
