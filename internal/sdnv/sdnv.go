// Package sdnv implements the Self-Delimiting Numeric Value codec: a
// base-128, big-endian, variable-length encoding of an unsigned integer in
// which every byte but the last has its high bit set.
package sdnv

import "github.com/dtn7/bpv6engine/pkg/bpevent"

// MaxWidth is the number of bytes needed to hold the widest possible 64-bit
// value (ceil(64/7) == 10).
const MaxWidth = 10

// Field is a value together with its byte offset and width inside an
// enclosing buffer. Width == 0 on a write request asks the codec to pick the
// minimum width and report it back; Width > 0 reserves exactly that many
// bytes so the field can later be rewritten in place without shifting any
// downstream field.
type Field struct {
	Value uint64
	Index int
	Width int
}

// bitsUsed returns the number of bits needed to represent v (0 needs 1 bit).
func bitsUsed(v uint64) int {
	if v == 0 {
		return 1
	}
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// MinWidth returns the number of SDNV bytes required to encode v unconstrained,
// i.e. ceil(bitsUsed(v)/7).
func MinWidth(v uint64) int {
	bits := bitsUsed(v)
	w := bits / 7
	if bits%7 != 0 {
		w++
	}
	return w
}

// Mask truncates f.Value to the maximum value representable in f.Width
// bytes (7*Width bits), per spec sdnv_mask.
func Mask(f *Field) {
	if f.Width <= 0 || f.Width >= MaxWidth {
		return
	}
	bits := uint(f.Width * 7)
	if bits >= 64 {
		return
	}
	f.Value &= (uint64(1) << bits) - 1
}

// Read decodes the SDNV found in buf starting at field.Index.
//
// If field.Width == 0, the codec consumes bytes until it finds one without
// the continuation bit set and records the consumed width back into
// field.Width. If field.Width > 0, it consumes exactly that many bytes
// (right-justified encoding, used for previously-reserved fields).
//
// It returns the offset of the next byte following the field and the
// accumulated error flags. On error the field still advances past the
// attempted read so that a caller skipping over unknown blocks can keep
// scanning.
func Read(buf []byte, field *Field) (next int, flags bpevent.Flags) {
	start := field.Index
	if start < 0 || start >= len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return start, flags
	}

	var value uint64
	i := start
	fixedWidth := field.Width > 0

	for {
		if i >= len(buf) {
			flags.Set(bpevent.SDNVIncomplete)
			field.Value = value
			if !fixedWidth {
				field.Width = i - start
			}
			return i, flags
		}

		b := buf[i]
		// Detect overflow before shifting: value must fit in 64 bits once we
		// OR in 7 more bits.
		if value > (^uint64(0) >> 7) {
			flags.Set(bpevent.SDNVOverflow)
		}
		value = (value << 7) | uint64(b&0x7F)
		i++

		last := b&0x80 == 0
		consumed := i - start

		if fixedWidth {
			if consumed == field.Width {
				field.Value = value
				return i, flags
			}
			// Keep consuming until width bytes read, regardless of the
			// continuation bit, since the field reserves an exact width.
			continue
		}

		if last {
			field.Value = value
			field.Width = consumed
			return i, flags
		}
	}
}

// Write encodes field.Value into buf starting at field.Index.
//
// If field.Width == 0, the codec picks the minimum width needed and records
// it into field.Width. If field.Width > 0, the value is right-justified into
// exactly that many bytes, left-padded with high-bit-set zero continuation
// bytes if the value needs fewer bytes than Width.
//
// It returns the offset of the next byte following the field.
func Write(buf []byte, field *Field) (next int, flags bpevent.Flags) {
	start := field.Index
	width := field.Width
	if width == 0 {
		width = MinWidth(field.Value)
		field.Width = width
	}

	if start < 0 || start+width > len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return start + width, flags
	}

	// Check the value actually fits in width bytes (7*width bits); if not,
	// truncate it the way sdnv_mask would and flag the overflow.
	if width < MaxWidth {
		maxVal := uint64(1)<<(uint(width)*7) - 1
		if field.Value > maxVal {
			flags.Set(bpevent.SDNVOverflow)
		}
	}

	v := field.Value
	for i := width - 1; i >= 0; i-- {
		buf[start+i] = byte(v & 0x7F)
		v >>= 7
	}
	// Set continuation bit on every byte but the last.
	for i := 0; i < width-1; i++ {
		buf[start+i] |= 0x80
	}

	return start + width, flags
}
