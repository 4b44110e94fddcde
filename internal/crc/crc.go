// Package crc implements the two checksum algorithms the bundle integrity
// block can carry: CRC-16/X.25 and CRC-32/Castagnoli.
package crc

import "hash/crc32"

// CRC16 is a running CRC-16/X.25 (a.k.a. CRC-CCITT, poly 0x1021, reflected,
// init 0xFFFF, xorout 0xFFFF) accumulator. The zero value is not the X.25
// starting value; use NewCRC16 to start a fresh computation.
type CRC16 uint16

// NewCRC16 returns the initial CRC-16/X.25 accumulator.
func NewCRC16() CRC16 {
	return CRC16(0xFFFF)
}

var ccittTable [256]uint16

func init() {
	const poly = 0x8408 // reflected polynomial for 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for b := 0; b < 8; b++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		ccittTable[i] = crc
	}
}

// Single folds one byte into the running CRC.
func (c *CRC16) Single(b byte) {
	*c = CRC16(ccittTable[(byte(*c)^b)&0xFF] ^ (*c >> 8))
}

// Block folds every byte of buf into the running CRC.
func (c *CRC16) Block(buf []byte) {
	for _, b := range buf {
		c.Single(b)
	}
}

// Final returns the X.25 output CRC (accumulator XORed with 0xFFFF).
func (c CRC16) Final() uint16 {
	return uint16(c) ^ 0xFFFF
}

// ComputeCRC16 returns the CRC-16/X.25 of buf in one call.
func ComputeCRC16(buf []byte) uint16 {
	c := NewCRC16()
	c.Block(buf)
	return c.Final()
}

// CRC32C is a running CRC-32/Castagnoli accumulator.
type CRC32C uint32

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// NewCRC32C returns the initial CRC-32/Castagnoli accumulator.
func NewCRC32C() CRC32C {
	return 0
}

// Block folds every byte of buf into the running CRC.
func (c *CRC32C) Block(buf []byte) {
	*c = CRC32C(crc32.Update(uint32(*c), castagnoliTable, buf))
}

// Final returns the accumulated CRC-32C value.
func (c CRC32C) Final() uint32 {
	return uint32(c)
}

// ComputeCRC32C returns the CRC-32/Castagnoli of buf in one call.
func ComputeCRC32C(buf []byte) uint32 {
	var c CRC32C
	c.Block(buf)
	return c.Final()
}
