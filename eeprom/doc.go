// Package eeprom models 24Cxx-family I2C serial EEPROMs.
//
// A Device combines a bus, a 7-bit base address and a Profile describing the
// chip geometry. It provides random and sequential reads, byte and page
// writes with acknowledge polling, and page-granular bulk operations
// (WriteRange, OverwritePages, EraseChip, Verify, Dump) that report progress
// after every page and stop cleanly between pages when the context is
// cancelled.
//
// Detect finds a chip on the bus and works out its address width and size
// by probing; every byte it overwrites is restored. Open skips detection
// for a known part:
//
//	profile, _ := eeprom.Lookup("24C256")
//	dev, err := eeprom.Open(bus, 0x50, profile)
//	data, err := dev.ReadRange(ctx, 0, 64)
//
// Chips with block select (24C04/08/16, 24C1024) take the high memory
// address bits from the low bits of the device address; Device handles the
// split transparently.
package eeprom
