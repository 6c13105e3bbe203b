package wire

import "github.com/sigurn/crc16"

// CRCSize is the trailing checksum length on multi-frame transfers.
const CRCSize = 2

// Transfer payloads are protected by CRC-16/CCITT-FALSE: polynomial
// 0x1021, initial value 0xFFFF, no reflection, zero xorout. The
// parameters are a wire-compatibility requirement.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CRC is an incremental transfer checksum accumulator.
type CRC uint16

// NewCRC returns the initial accumulator value.
func NewCRC() CRC {
	return CRC(crc16.Init(crcTable))
}

// Update folds p into the accumulator.
func (c CRC) Update(p []byte) CRC {
	return CRC(crc16.Update(uint16(c), p, crcTable))
}

// Sum finalizes the accumulator into the 16-bit checksum.
func (c CRC) Sum() uint16 {
	return crc16.Complete(uint16(c), crcTable)
}

// Checksum is the one-shot form.
func Checksum(p []byte) uint16 {
	return NewCRC().Update(p).Sum()
}

// PutCRC appends the checksum high byte first, the trailing byte order
// required on the wire.
func PutCRC(dst []byte, sum uint16) []byte {
	return append(dst, byte(sum>>8), byte(sum))
}

// GetCRC reads a checksum written by PutCRC.
func GetCRC(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
