package block

import (
	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

// Primary is the BPv6 primary block, spec.md §3.
type Primary struct {
	Version uint8

	PCF      sdnv.Field
	BlockLen sdnv.Field

	DstNode, DstServ sdnv.Field
	SrcNode, SrcServ sdnv.Field
	RptNode, RptServ sdnv.Field
	CstNode, CstServ sdnv.Field

	CreateSec, CreateSeq sdnv.Field
	Lifetime             sdnv.Field
	DictLen              sdnv.Field

	// Present only when IsFragment() is true.
	FragOffset, PayLen sdnv.Field
}

// CanonicalPrimaryLayout returns a zero-valued Primary with every field's
// Index/Width pre-populated to the fixed offsets of spec.md §6, so that
// WriteCanonicalPrimary/ReadCanonicalPrimary can later be used to rewrite a single field
// (creation time, fragment offset, ...) without disturbing any other.
func CanonicalPrimaryLayout() Primary {
	return Primary{
		PCF:        sdnv.Field{Index: 1, Width: 3},
		BlockLen:   sdnv.Field{Index: 4, Width: 1},
		DstNode:    sdnv.Field{Index: 5, Width: 4},
		DstServ:    sdnv.Field{Index: 9, Width: 2},
		SrcNode:    sdnv.Field{Index: 11, Width: 4},
		SrcServ:    sdnv.Field{Index: 15, Width: 2},
		RptNode:    sdnv.Field{Index: 17, Width: 4},
		RptServ:    sdnv.Field{Index: 21, Width: 2},
		CstNode:    sdnv.Field{Index: 23, Width: 4},
		CstServ:    sdnv.Field{Index: 27, Width: 2},
		CreateSec:  sdnv.Field{Index: 29, Width: 6},
		CreateSeq:  sdnv.Field{Index: 35, Width: 2},
		Lifetime:   sdnv.Field{Index: 37, Width: 6},
		DictLen:    sdnv.Field{Index: 43, Width: 1},
		FragOffset: sdnv.Field{Index: 44, Width: 4},
		PayLen:     sdnv.Field{Index: 48, Width: 4},
	}
}

func (p *Primary) IsFragment() bool         { return p.PCF.Value&PCFIsFragment != 0 }
func (p *Primary) IsAdminRecord() bool      { return p.PCF.Value&PCFIsAdminRecord != 0 }
func (p *Primary) AllowFragmentation() bool { return p.PCF.Value&PCFAllowFragmentation != 0 }
func (p *Primary) CustodyRequested() bool   { return p.PCF.Value&PCFCustodyRequested != 0 }
func (p *Primary) AppAckRequested() bool    { return p.PCF.Value&PCFAppAckRequested != 0 }

func (p *Primary) SetFlag(bit uint64, set bool) {
	if set {
		p.PCF.Value |= bit
	} else {
		p.PCF.Value &^= bit
	}
}

// fixedFields lists every field common to fragmented and non-fragmented
// bundles, in wire order, for the shared write/read loop.
func (p *Primary) fixedFields() []*sdnv.Field {
	return []*sdnv.Field{
		&p.PCF, &p.BlockLen,
		&p.DstNode, &p.DstServ,
		&p.SrcNode, &p.SrcServ,
		&p.RptNode, &p.RptServ,
		&p.CstNode, &p.CstServ,
		&p.CreateSec, &p.CreateSeq,
		&p.Lifetime,
		&p.DictLen,
	}
}

// WriteCanonicalPrimary emits the primary block at the offsets already recorded in
// p's fields (see CanonicalPrimaryLayout), so that a later call can rewrite
// a single field in place. Returns total bytes written.
func WriteCanonicalPrimary(buf []byte, p *Primary) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	buf[0] = p.Version

	last := 0
	for _, f := range p.fixedFields() {
		_, fl := sdnv.Write(buf, f)
		flags |= fl
		if end := f.Index + f.Width; end > last {
			last = end
		}
	}
	if p.IsFragment() {
		_, fl := sdnv.Write(buf, &p.FragOffset)
		flags |= fl
		_, fl = sdnv.Write(buf, &p.PayLen)
		flags |= fl
		if end := p.PayLen.Index + p.PayLen.Width; end > last {
			last = end
		}
	}

	// blklen covers everything after the blklen field itself.
	p.BlockLen.Value = uint64(last - (p.BlockLen.Index + p.BlockLen.Width))
	sdnv.Mask(&p.BlockLen)
	_, fl := sdnv.Write(buf, &p.BlockLen)
	flags |= fl

	return last, flags
}

// ReadCanonicalPrimary decodes the primary block using the offsets already recorded
// in p's fields (see CanonicalPrimaryLayout). Use this only when re-parsing
// a buffer this engine itself laid out; inbound bundles from other BPv6
// implementations must use ReadAutoPrimary since they may choose their own
// SDNV widths.
func ReadCanonicalPrimary(buf []byte, p *Primary) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	p.Version = buf[0]
	last := 1
	for _, f := range p.fixedFields() {
		next, fl := sdnv.Read(buf, f)
		flags |= fl
		if next > last {
			last = next
		}
	}
	if p.IsFragment() {
		var fl bpevent.Flags
		last, fl = sdnv.Read(buf, &p.FragOffset)
		flags |= fl
		last, fl = sdnv.Read(buf, &p.PayLen)
		flags |= fl
	}
	return last, flags
}

// ReadAutoPrimary decodes a primary block whose field widths are not known
// in advance, laying fields out sequentially and recording the actual
// index/width the codec found for each one.
func ReadAutoPrimary(buf []byte, p *Primary) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	p.Version = buf[0]
	idx := 1

	readNext := func(f *sdnv.Field) {
		f.Index = idx
		f.Width = 0
		next, fl := sdnv.Read(buf, f)
		flags |= fl
		idx = next
	}

	readNext(&p.PCF)
	readNext(&p.BlockLen)
	readNext(&p.DstNode)
	readNext(&p.DstServ)
	readNext(&p.SrcNode)
	readNext(&p.SrcServ)
	readNext(&p.RptNode)
	readNext(&p.RptServ)
	readNext(&p.CstNode)
	readNext(&p.CstServ)
	readNext(&p.CreateSec)
	readNext(&p.CreateSeq)
	readNext(&p.Lifetime)
	readNext(&p.DictLen)
	if p.IsFragment() {
		readNext(&p.FragOffset)
		readNext(&p.PayLen)
	}

	return idx, flags
}

// WriteAutoPrimary emits a primary block using minimum-width SDNVs laid out
// sequentially, recording the actual index/width chosen for each field.
//
// blklen must describe the number of bytes following it, so this runs two
// passes: the first lays out every field but blklen into a scratch buffer to
// discover their widths and the resulting total length, the second emits
// the real bytes (including the now-known blklen) into buf.
func WriteAutoPrimary(buf []byte, p *Primary) (n int, flags bpevent.Flags) {
	if len(buf) < 1 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}

	buf[0] = p.Version
	scratch := make([]byte, len(buf))
	scratch[0] = p.Version
	fields := p.fixedFields()

	layout := func(dst []byte) (idx int, fl bpevent.Flags) {
		idx = 1
		for i, f := range fields {
			if i == 1 { // blklen: width fixed by an earlier pass, value filled below
				f.Index = idx
				_, e := sdnv.Write(dst, f)
				fl |= e
				idx = f.Index + f.Width
				continue
			}
			f.Index = idx
			f.Width = 0
			next, e := sdnv.Write(dst, f)
			fl |= e
			idx = next
		}
		if p.IsFragment() {
			p.FragOffset.Index, p.FragOffset.Width = idx, 0
			idx, _ = sdnv.Write(dst, &p.FragOffset)
			p.PayLen.Index, p.PayLen.Width = idx, 0
			idx, _ = sdnv.Write(dst, &p.PayLen)
		}
		return idx, fl
	}

	// Pass 1: pick blklen's width from its current value (0 on first build),
	// discover everything else's width/offset.
	p.BlockLen.Width = 0
	total, fl1 := layout(scratch)
	flags |= fl1
	p.BlockLen.Value = uint64(total - (p.BlockLen.Index + p.BlockLen.Width))
	sdnv.Mask(&p.BlockLen)

	// Pass 2: re-run with the real blklen value; widths are stable since
	// blklen's own width didn't change between passes for any value that
	// fits what pass 1 already reserved.
	n, fl2 := layout(buf)
	flags |= fl2
	return n, flags
}
