// Package ihex encodes and decodes Intel HEX files.
//
// # Record Format
//
// Every line is one record:
//
//	:LLAAAATT[DD...]CC
//	  LL   = byte count
//	  AAAA = 16-bit load offset (big-endian)
//	  TT   = record type
//	  DD   = LL data bytes
//	  CC   = two's complement of the sum of all preceding bytes
//
// Record types:
//
//	00 = data
//	01 = end of file
//	02 = extended segment address (base = value * 16)
//	03 = start segment address (CS:IP)
//	04 = extended linear address (base = value << 16)
//	05 = start linear address (EIP)
//
// # Usage
//
// Decode a file into a sparse memory image:
//
//	dec, err := ihex.DecodeFile("eeprom.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(dec.Image)
//
// Encode part of an image:
//
//	text, err := ihex.Encode(img, 0, 0xFF)
//
// # Error Handling
//
// Decoding fails on the first bad record with a *MalformedRecordError that
// carries the 1-based line number and the reason: missing ':', bad hex
// digits, a length that disagrees with the byte count, a checksum
// mismatch, an unknown record type, or a missing end-of-file record.
// Content after the first end-of-file record is ignored.
package ihex
