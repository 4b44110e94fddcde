package block

import (
	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

// PAY is the payload block, spec.md §3: type byte (0x01), flags SDNV,
// block-length SDNV, then the opaque application payload bytes.
type PAY struct {
	Flags   sdnv.Field
	BlkLen  sdnv.Field
	Payload []byte
}

// CanonicalPAYLayout returns a zero-valued PAY with Flags/BlkLen indices
// pre-populated (type byte at 0, flags at 1×1, blklen at 2×4 to leave room
// for in-place rewrite as fragments shrink the payload).
func CanonicalPAYLayout() PAY {
	return PAY{
		Flags:  sdnv.Field{Index: 1, Width: 1},
		BlkLen: sdnv.Field{Index: 2, Width: 4},
	}
}

// WriteCanonicalPAY emits the payload block at the offsets recorded in p's
// fields.
func WriteCanonicalPAY(buf []byte, p *PAY) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	buf[0] = TypePayload

	_, fl := sdnv.Write(buf, &p.Flags)
	flags |= fl

	start := p.BlkLen.Index + p.BlkLen.Width
	if start+len(p.Payload) > len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return start, flags
	}
	copy(buf[start:], p.Payload)
	end := start + len(p.Payload)

	p.BlkLen.Value = uint64(len(p.Payload))
	sdnv.Mask(&p.BlkLen)
	_, fl = sdnv.Write(buf, &p.BlkLen)
	flags |= fl

	return end, flags
}

// ReadCanonicalPAY decodes a payload block using the offsets recorded in p's
// fields. Payload aliases buf; callers that retain it past buf's lifetime
// must copy it.
func ReadCanonicalPAY(buf []byte, p *PAY) (n int, flags bpevent.Flags) {
	if len(buf) < 1 || buf[0] != TypePayload {
		flags.Set(bpevent.FailedToParse)
		return 0, flags
	}
	_, fl := sdnv.Read(buf, &p.Flags)
	flags |= fl
	_, fl = sdnv.Read(buf, &p.BlkLen)
	flags |= fl

	start := p.BlkLen.Index + p.BlkLen.Width
	end := start + int(p.BlkLen.Value)
	if end > len(buf) {
		flags.Set(bpevent.FailedToParse)
		return len(buf), flags
	}
	p.Payload = buf[start:end]
	return end, flags
}

// WriteAutoPAY emits a payload block using minimum-width SDNVs laid out
// sequentially; unlike blklen in the primary block, PAY's blklen is just the
// payload length, known before anything is written, so no two-pass layout
// is needed.
func WriteAutoPAY(buf []byte, p *PAY) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	buf[0] = TypePayload

	p.Flags.Index, p.Flags.Width = 1, 0
	idx, fl := sdnv.Write(buf, &p.Flags)
	flags |= fl

	p.BlkLen.Index, p.BlkLen.Width = idx, 0
	p.BlkLen.Value = uint64(len(p.Payload))
	idx, fl = sdnv.Write(buf, &p.BlkLen)
	flags |= fl

	if idx+len(p.Payload) > len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return idx, flags
	}
	copy(buf[idx:], p.Payload)
	return idx + len(p.Payload), flags
}

// ReadAutoPAY decodes a payload block whose flags/blklen widths are not
// known in advance, recording the actual index/width found for each.
func ReadAutoPAY(buf []byte, p *PAY) (n int, flags bpevent.Flags) {
	if len(buf) < 1 || buf[0] != TypePayload {
		flags.Set(bpevent.FailedToParse)
		return 0, flags
	}
	p.Flags = sdnv.Field{Index: 1}
	idx, fl := sdnv.Read(buf, &p.Flags)
	flags |= fl
	p.BlkLen = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &p.BlkLen)
	flags |= fl

	end := idx + int(p.BlkLen.Value)
	if end > len(buf) {
		flags.Set(bpevent.FailedToParse)
		return len(buf), flags
	}
	p.Payload = buf[idx:end]
	return end, flags
}
