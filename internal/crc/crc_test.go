package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16X25CheckValue(t *testing.T) {
	// Catalogued CRC-16/X-25 check value for ASCII "123456789".
	assert.EqualValues(t, 0x906E, ComputeCRC16([]byte("123456789")))
}

func TestCRC16IncrementalMatchesBlock(t *testing.T) {
	data := []byte("HELLO")
	var c CRC16 = NewCRC16()
	for _, b := range data {
		c.Single(b)
	}
	assert.Equal(t, ComputeCRC16(data), c.Final())
}

func TestCRC32CastagnoliCheckValue(t *testing.T) {
	// Catalogued CRC-32/ISCSI (Castagnoli) check value for "123456789".
	assert.EqualValues(t, 0xE3069283, ComputeCRC32C([]byte("123456789")))
}

func TestCRCSingleBitFlipChangesResult(t *testing.T) {
	original := []byte("HELLO")
	flipped := append([]byte(nil), original...)
	flipped[0] ^= 0x01

	assert.NotEqual(t, ComputeCRC16(original), ComputeCRC16(flipped))
	assert.NotEqual(t, ComputeCRC32C(original), ComputeCRC32C(flipped))
}
