package protocol

// USB identification of the CH341A in I2C/SPI ("EPP/MEM") mode.
const (
	// VendorID is the WCH USB vendor ID
	VendorID = 0x1A86

	// ProductID is the CH341A product ID when strapped for I2C
	ProductID = 0x5512

	// EndpointOut is the bulk OUT endpoint address
	EndpointOut = 0x02

	// EndpointIn is the bulk IN endpoint address
	EndpointIn = 0x82

	// Interface is the USB interface carrying the bulk pipes
	Interface = 0
)

// PacketSize is the maximum length of a command packet and of a response
// in bytes.
const PacketSize = 32

// Command and stream sub-command codes.
const (
	// CmdI2CStream opens an I2C stream packet
	CmdI2CStream = 0xAA

	// StmStart issues a START or repeated START condition
	StmStart = 0x74

	// StmStop issues a STOP condition
	StmStop = 0x75

	// StmOut clocks out bytes; low 5 bits carry the count
	StmOut = 0x80

	// StmIn clocks in bytes; low 5 bits carry the count
	StmIn = 0xC0

	// StmSet configures the bus; low 2 bits select the speed
	StmSet = 0x60

	// StmDelayUs waits; low 5 bits carry microseconds
	StmDelayUs = 0x40

	// StmEnd terminates the stream
	StmEnd = 0x00
)

// Masks for the sub-command argument fields.
const (
	// CountMask extracts the count from OUT/IN/DELAY sub-commands
	CountMask = 0x1F

	// SpeedMask extracts the speed selector from SET
	SpeedMask = 0x03

	// NackBit is set in an ACK status byte when the slave did not acknowledge
	NackBit = 0x80
)

// MaxReadChunk is the largest count a single IN sub-command can carry.
const MaxReadChunk = CountMask

// Speed selects the I2C clock generated by the bridge.
type Speed byte

// Bus speeds supported by the CH341A.
const (
	Speed20kHz  Speed = 0
	Speed100kHz Speed = 1
	Speed400kHz Speed = 2
	Speed750kHz Speed = 3
)

// Hz returns the nominal clock frequency.
func (s Speed) Hz() int {
	switch s {
	case Speed20kHz:
		return 20000
	case Speed100kHz:
		return 100000
	case Speed400kHz:
		return 400000
	case Speed750kHz:
		return 750000
	default:
		return 0
	}
}

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case Speed20kHz:
		return "20 kHz"
	case Speed100kHz:
		return "100 kHz"
	case Speed400kHz:
		return "400 kHz"
	case Speed750kHz:
		return "750 kHz"
	default:
		return "unknown"
	}
}
