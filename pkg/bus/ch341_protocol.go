package bus

import (
	"fmt"
)

// CH341 stream command IDs
const (
	CmdI2CStream = 0xAA
	CmdUIOStream = 0xAB
)

// I2C stream sub-commands
const (
	I2CStmStart = 0x74
	I2CStmStop  = 0x75
	I2CStmOut   = 0x80 // Bits [5:0] = byte count
	I2CStmIn    = 0xC0 // Bits [5:0] = byte count, 0 reads one byte and NAKs
	I2CStmMax   = 0x20
	I2CStmSet   = 0x60 // Bits [1:0] = speed
	I2CStmMs    = 0x50 // Bits [3:0] = delay in ms
	I2CStmEnd   = 0x00
)

// UIO stream sub-commands
const (
	UIOStmIn  = 0x00
	UIOStmDir = 0x40
	UIOStmOut = 0x80
	UIOStmEnd = 0x20
)

// I2C clock selections for I2CStmSet
const (
	I2CSpeed20k  = 0x00
	I2CSpeed100k = 0x01
	I2CSpeed400k = 0x02
	I2CSpeed750k = 0x03
)

// Bank select lines live on D0 (SEL1) and D1 (SEL2).
const (
	bankSel1 = 1 << 0
	bankSel2 = 1 << 1

	// writeCycleMs covers the internal page write time of 24xx parts.
	writeCycleMs = 5
)

var bankLines = map[int]byte{
	0: 0,
	1: bankSel1,
	2: bankSel2,
}

// CH341Protocol handles encoding/decoding of CH341 stream commands for 24xx
// EEPROMs with a 16-bit word address.
type CH341Protocol struct {
	PacketSize int
}

// NewCH341Protocol creates a new protocol handler
func NewCH341Protocol(packetSize int) *CH341Protocol {
	return &CH341Protocol{PacketSize: packetSize}
}

// BlockAddress returns the 7-bit device address that owns offset. Parts
// larger than 64 KiB take the upper offset bits in the device select field.
func BlockAddress(address uint16, offset int) uint16 {
	return address + uint16(offset>>16)
}

// EncodeSetSpeed builds an I2C clock selection command
func (p *CH341Protocol) EncodeSetSpeed(speed byte) []byte {
	return []byte{CmdI2CStream, I2CStmSet | (speed & 0x03), I2CStmEnd}
}

// EncodeProbe addresses a device for writing and stops, so the response
// carries its acknowledge bit.
func (p *CH341Protocol) EncodeProbe(address uint16) []byte {
	return []byte{
		CmdI2CStream,
		I2CStmStart,
		I2CStmOut,
		byte(address << 1),
		I2CStmStop,
		I2CStmEnd,
	}
}

// DecodeAck parses the status byte returned after EncodeProbe
func (p *CH341Protocol) DecodeAck(resp []byte) error {
	if len(resp) < 1 {
		return fmt.Errorf("response too short")
	}
	if resp[0]&0x80 != 0 {
		return ErrNoAck
	}
	return nil
}

// EncodeRead builds a random read of one byte: a dummy write sets the word
// address, then a repeated start reads it back.
func (p *CH341Protocol) EncodeRead(address uint16, offset int) []byte {
	dev := byte(BlockAddress(address, offset) << 1)
	return []byte{
		CmdI2CStream,
		I2CStmStart,
		I2CStmOut | 3,
		dev,
		byte(offset >> 8),
		byte(offset),
		I2CStmStart,
		I2CStmOut | 1,
		dev | 0x01,
		I2CStmIn,
		I2CStmStop,
		I2CStmEnd,
	}
}

// DecodeRead parses the data returned by EncodeRead
func (p *CH341Protocol) DecodeRead(resp []byte) (byte, error) {
	if len(resp) != 1 {
		return 0, fmt.Errorf("expected 1 data byte, got %d", len(resp))
	}
	return resp[0], nil
}

// EncodeWrite builds a byte write followed by the device's write cycle delay
func (p *CH341Protocol) EncodeWrite(address uint16, offset int, value byte) []byte {
	dev := byte(BlockAddress(address, offset) << 1)
	return []byte{
		CmdI2CStream,
		I2CStmStart,
		I2CStmOut | 4,
		dev,
		byte(offset >> 8),
		byte(offset),
		value,
		I2CStmStop,
		I2CStmMs | writeCycleMs,
		I2CStmEnd,
	}
}

// EncodeSelectBank drives the two bank select lines. D0-D5 are set as
// outputs; only D0 and D1 carry the bank code.
func (p *CH341Protocol) EncodeSelectBank(bank int) ([]byte, error) {
	lines, ok := bankLines[bank]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBank, bank)
	}
	return []byte{
		CmdUIOStream,
		UIOStmOut | lines,
		UIOStmDir | 0x3F,
		UIOStmEnd,
	}, nil
}
