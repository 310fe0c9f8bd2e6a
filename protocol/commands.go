package protocol

import "fmt"

// FieldKind identifies what a group of response bytes carries.
type FieldKind int

const (
	// FieldAck is one ACK status byte returned for an acknowledged OUT
	FieldAck FieldKind = iota

	// FieldData is Len bytes clocked in by IN sub-commands
	FieldData
)

// Field describes one group of bytes in a bridge response.
type Field struct {
	Kind FieldKind
	Len  int
}

// Packet is one command packet ready to be written to the bulk OUT pipe.
type Packet struct {
	// Data is the raw packet, starting with CmdI2CStream and ending with StmEnd
	Data []byte

	// Expect lists, in order, the fields of the response the bridge returns
	Expect []Field
}

// ResponseLen returns the number of bytes the bridge answers this packet with.
func (p Packet) ResponseLen() int {
	n := 0
	for _, f := range p.Expect {
		n += f.Len
	}
	return n
}

// Stream assembles the sub-commands of a bus transaction and splits them into
// packets that respect PacketSize for both the command and the response.
//
// Sub-commands are never split across packets, so a packet boundary never
// falls between an OUT sub-command and its data byte. The bridge keeps the bus
// state between packets; only StmStop releases the bus.
type Stream struct {
	packets []Packet
	cur     *Packet
	respLen int
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Start appends a START (or repeated START) condition.
func (s *Stream) Start() *Stream {
	s.reserve(1, 0)
	s.cur.Data = append(s.cur.Data, StmStart)
	return s
}

// Stop appends a STOP condition.
func (s *Stream) Stop() *Stream {
	s.reserve(1, 0)
	s.cur.Data = append(s.cur.Data, StmStop)
	return s
}

// WriteAcked clocks out one byte and asks the bridge to return its ACK status.
func (s *Stream) WriteAcked(b byte) *Stream {
	s.reserve(2, 1)
	s.cur.Data = append(s.cur.Data, StmOut, b)
	s.expect(FieldAck, 1)
	return s
}

// Read clocks in n bytes. All bytes but the last are ACKed; the last one is
// NACKed so the slave releases the bus before STOP or repeated START.
func (s *Stream) Read(n int) *Stream {
	for n > 1 {
		s.reserve(1, 1)
		k := min(n-1, MaxReadChunk, PacketSize-s.respLen)
		s.cur.Data = append(s.cur.Data, StmIn|byte(k))
		s.expect(FieldData, k)
		n -= k
	}
	if n == 1 {
		s.reserve(1, 1)
		s.cur.Data = append(s.cur.Data, StmIn)
		s.expect(FieldData, 1)
	}
	return s
}

// Delay makes the bridge wait for the given number of microseconds.
func (s *Stream) Delay(us int) *Stream {
	for us > 0 {
		k := min(us, CountMask)
		s.reserve(1, 0)
		s.cur.Data = append(s.cur.Data, StmDelayUs|byte(k))
		us -= k
	}
	return s
}

// Packets terminates the stream and returns its packets.
func (s *Stream) Packets() []Packet {
	s.flush()
	return s.packets
}

// reserve makes sure the current packet has room for cmdLen more command
// bytes (plus the terminating StmEnd) and respLen more response bytes.
func (s *Stream) reserve(cmdLen, respLen int) {
	if s.cur != nil &&
		len(s.cur.Data)+cmdLen+1 <= PacketSize &&
		s.respLen+respLen <= PacketSize {
		return
	}

	s.flush()
	s.cur = &Packet{Data: make([]byte, 0, PacketSize)}
	s.cur.Data = append(s.cur.Data, CmdI2CStream)
	s.respLen = 0
}

func (s *Stream) expect(kind FieldKind, n int) {
	s.cur.Expect = append(s.cur.Expect, Field{Kind: kind, Len: n})
	s.respLen += n
}

func (s *Stream) flush() {
	if s.cur == nil {
		return
	}
	s.cur.Data = append(s.cur.Data, StmEnd)
	s.packets = append(s.packets, *s.cur)
	s.cur = nil
	s.respLen = 0
}

// BuildSetSpeedCmd constructs the packet that sets the I2C clock.
//
// Packet structure:
//
//	[0xAA][0x60|SPEED][0x00]
func BuildSetSpeedCmd(speed Speed) (Packet, error) {
	if speed > Speed750kHz {
		return Packet{}, fmt.Errorf("invalid speed selector %d: must be 0-3", speed)
	}

	return Packet{
		Data: []byte{CmdI2CStream, StmSet | byte(speed), StmEnd},
	}, nil
}
