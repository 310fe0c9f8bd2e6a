package protocol

import (
	"bytes"
	"testing"
)

func TestBuildSetSpeedCmd(t *testing.T) {
	tests := []struct {
		name    string
		speed   Speed
		want    []byte
		wantErr bool
	}{
		{name: "20 kHz", speed: Speed20kHz, want: []byte{0xAA, 0x60, 0x00}},
		{name: "100 kHz", speed: Speed100kHz, want: []byte{0xAA, 0x61, 0x00}},
		{name: "400 kHz", speed: Speed400kHz, want: []byte{0xAA, 0x62, 0x00}},
		{name: "750 kHz", speed: Speed750kHz, want: []byte{0xAA, 0x63, 0x00}},
		{name: "invalid selector", speed: Speed(4), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := BuildSetSpeedCmd(tt.speed)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(pkt.Data, tt.want) {
				t.Errorf("packet = % X, want % X", pkt.Data, tt.want)
			}
			if pkt.ResponseLen() != 0 {
				t.Errorf("ResponseLen() = %d, want 0", pkt.ResponseLen())
			}
		})
	}
}

func TestStreamRandomRead(t *testing.T) {
	s := NewStream().
		Start().WriteAcked(0xA0).WriteAcked(0x10).
		Start().WriteAcked(0xA1).Read(4).
		Stop()

	pkts := s.Packets()
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}

	want := []byte{
		0xAA,
		0x74, 0x80, 0xA0, 0x80, 0x10,
		0x74, 0x80, 0xA1, 0xC3, 0xC0,
		0x75,
		0x00,
	}
	if !bytes.Equal(pkts[0].Data, want) {
		t.Errorf("packet = % X, want % X", pkts[0].Data, want)
	}

	// three ACK bytes plus four data bytes
	if got := pkts[0].ResponseLen(); got != 7 {
		t.Errorf("ResponseLen() = %d, want 7", got)
	}
}

func TestStreamSplitsLongWrites(t *testing.T) {
	s := NewStream().Start()
	for i := 0; i < 40; i++ {
		s.WriteAcked(byte(i))
	}
	s.Stop()

	pkts := s.Packets()
	if len(pkts) < 3 {
		t.Fatalf("got %d packets, want at least 3", len(pkts))
	}

	acks := 0
	for i, p := range pkts {
		if len(p.Data) > PacketSize {
			t.Errorf("packet %d is %d bytes, limit is %d", i, len(p.Data), PacketSize)
		}
		if p.Data[0] != CmdI2CStream || p.Data[len(p.Data)-1] != StmEnd {
			t.Errorf("packet %d is not framed: % X", i, p.Data)
		}
		acks += p.ResponseLen()
	}
	if acks != 40 {
		t.Errorf("total ACK bytes = %d, want 40", acks)
	}
}

func TestStreamSplitsLongReads(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{name: "single byte", n: 1},
		{name: "fits one IN", n: 31},
		{name: "one packet of response", n: 32},
		{name: "spans packets", n: 100},
		{name: "page of 128", n: 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkts := NewStream().Read(tt.n).Packets()

			total := 0
			for i, p := range pkts {
				if p.ResponseLen() > PacketSize {
					t.Errorf("packet %d expects %d response bytes, limit is %d", i, p.ResponseLen(), PacketSize)
				}
				total += p.ResponseLen()
			}
			if total != tt.n {
				t.Errorf("total data = %d, want %d", total, tt.n)
			}

			// the final IN must NACK
			last := pkts[len(pkts)-1].Data
			if last[len(last)-2] != StmIn {
				t.Errorf("last sub-command = 0x%02X, want 0x%02X", last[len(last)-2], StmIn)
			}
		})
	}
}

func TestStreamDelay(t *testing.T) {
	pkts := NewStream().Delay(40).Packets()
	want := []byte{0xAA, 0x5F, 0x49, 0x00}
	if !bytes.Equal(pkts[0].Data, want) {
		t.Errorf("packet = % X, want % X", pkts[0].Data, want)
	}
}

func TestSpeedString(t *testing.T) {
	if Speed400kHz.String() != "400 kHz" || Speed400kHz.Hz() != 400000 {
		t.Errorf("Speed400kHz = %s / %d", Speed400kHz, Speed400kHz.Hz())
	}
	if Speed(9).String() != "unknown" || Speed(9).Hz() != 0 {
		t.Errorf("invalid speed not reported as unknown")
	}
}
