package block

import (
	"strconv"
	"strings"

	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

// CTEB is the custody transfer enhancement block, spec.md §3: block-type
// byte (0x0A), flags SDNV, block-length SDNV, custody-ID SDNV, then an EID
// string "ipn:node.service\0".
type CTEB struct {
	Flags   sdnv.Field
	BlkLen  sdnv.Field
	CID     sdnv.Field
	CstNode uint64
	CstServ uint64
}

// CanonicalCTEBLayout returns a zero-valued CTEB with Index/Width
// pre-populated per spec.md §6 (type byte at 0, flags at 1×1, blklen at 2×1,
// cid at 3×4).
func CanonicalCTEBLayout() CTEB {
	return CTEB{
		Flags:  sdnv.Field{Index: 1, Width: 1},
		BlkLen: sdnv.Field{Index: 2, Width: 1},
		CID:    sdnv.Field{Index: 3, Width: 4},
	}
}

func eidString(node, serv uint64) string {
	var b strings.Builder
	b.WriteString("ipn:")
	b.WriteString(strconv.FormatUint(node, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(serv, 10))
	b.WriteByte(0)
	return b.String()
}

// WriteCanonicalCTEB emits the CTEB at the offsets recorded in c's fields.
func WriteCanonicalCTEB(buf []byte, c *CTEB) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	buf[0] = TypeCTEB

	_, fl := sdnv.Write(buf, &c.Flags)
	flags |= fl
	_, fl = sdnv.Write(buf, &c.CID)
	flags |= fl

	eid := eidString(c.CstNode, c.CstServ)
	eidStart := c.CID.Index + c.CID.Width
	if eidStart+len(eid) > len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return eidStart, flags
	}
	copy(buf[eidStart:], eid)
	end := eidStart + len(eid)

	c.BlkLen.Value = uint64(end - (c.BlkLen.Index + c.BlkLen.Width))
	sdnv.Mask(&c.BlkLen)
	_, fl = sdnv.Write(buf, &c.BlkLen)
	flags |= fl

	return end, flags
}

// ReadCanonicalCTEB decodes a CTEB using the offsets recorded in c's fields.
func ReadCanonicalCTEB(buf []byte, c *CTEB) (n int, flags bpevent.Flags) {
	if len(buf) < 1 || buf[0] != TypeCTEB {
		flags.Set(bpevent.FailedToParse)
		return 0, flags
	}
	_, fl := sdnv.Read(buf, &c.Flags)
	flags |= fl
	_, fl = sdnv.Read(buf, &c.BlkLen)
	flags |= fl
	_, fl = sdnv.Read(buf, &c.CID)
	flags |= fl

	start := c.CID.Index + c.CID.Width
	end := start
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end >= len(buf) {
		flags.Set(bpevent.FailedToParse)
		return end, flags
	}
	node, serv, ok := parseEIDString(string(buf[start:end]))
	if !ok {
		flags.Set(bpevent.FailedToParse)
	}
	c.CstNode, c.CstServ = node, serv
	return end + 1, flags
}

// ReadAutoCTEB decodes a CTEB whose field widths are laid out sequentially,
// recording the actual index/width found for each one.
func ReadAutoCTEB(buf []byte, c *CTEB) (n int, flags bpevent.Flags) {
	if len(buf) < 1 || buf[0] != TypeCTEB {
		flags.Set(bpevent.FailedToParse)
		return 0, flags
	}
	idx := 1
	c.Flags = sdnv.Field{Index: idx}
	idx, fl := sdnv.Read(buf, &c.Flags)
	flags |= fl
	c.BlkLen = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &c.BlkLen)
	flags |= fl
	c.CID = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &c.CID)
	flags |= fl

	start := idx
	end := start
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end >= len(buf) {
		flags.Set(bpevent.FailedToParse)
		return end, flags
	}
	node, serv, ok := parseEIDString(string(buf[start:end]))
	if !ok {
		flags.Set(bpevent.FailedToParse)
	}
	c.CstNode, c.CstServ = node, serv
	return end + 1, flags
}

func parseEIDString(s string) (node, serv uint64, ok bool) {
	const prefix = "ipn:"
	if !strings.HasPrefix(s, prefix) {
		return 0, 0, false
	}
	rest := s[len(prefix):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return 0, 0, false
	}
	n, err1 := strconv.ParseUint(rest[:dot], 10, 64)
	sv, err2 := strconv.ParseUint(rest[dot+1:], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return n, sv, true
}
