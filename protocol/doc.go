// Package protocol implements the CH341A I2C stream command set.
//
// The CH341A bridge (USB VID 0x1A86, PID 0x5512) exposes its I2C master
// through two bulk endpoints. The host writes command packets to EP 0x02 and
// reads the bytes the bridge clocked in from EP 0x82. Packets are at most
// PacketSize (32) bytes long.
//
// # Packet Format
//
// Every I2C packet is a stream:
//
//	[0xAA][SUB-CMD...][0x00]
//
// Where each sub-command is one of:
//   - 0x74        START (or repeated START) condition
//   - 0x75        STOP condition
//   - 0x80|n, b…  OUT: clock out n bytes; n=0 clocks out one byte and returns its ACK status
//   - 0xC0|n      IN: clock in n bytes, ACKing each; n=0 clocks in one byte and NACKs it
//   - 0x60|s      SET: bus speed (0=20 kHz, 1=100 kHz, 2=400 kHz, 3=750 kHz)
//   - 0x40|n      DELAY: wait n microseconds
//   - 0x00        END of stream
//
// An ACK status byte has bit 7 clear when the slave acknowledged.
//
// # Stream Builder
//
// Use a Stream to assemble one bus transaction. It splits the transaction
// into packets that fit the bridge's limits and records, for every packet,
// the layout of the bytes the bridge will return:
//
//	s := protocol.NewStream()
//	s.Start().WriteAcked(0x50 << 1).WriteAcked(0x00).Start().WriteAcked(0x50<<1 | 1).Read(16).Stop()
//	for _, pkt := range s.Packets() {
//	    resp, err := handle.SendCommand(ctx, pkt.Data, pkt.ResponseLen())
//	    ...
//	    r, err := protocol.ParseResponse(pkt, resp)
//	}
//
// # Decoding
//
// ParsePacket decodes a raw command packet back into instructions. It is
// used by the bridge simulator in transport/transporttest.
package protocol
