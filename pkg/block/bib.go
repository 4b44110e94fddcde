package block

import (
	"github.com/dtn7/bpv6engine/internal/crc"
	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

// BIB is the bundle integrity block, spec.md §3: type byte (0x0D), flags
// SDNV, block-length SDNV, security-target-count SDNV (always 1 here),
// security-target-type byte, cipher-suite-id SDNV, cipher-suite-flags SDNV,
// compound-length SDNV, security-result-type byte, security-result-length
// SDNV, then the raw CRC bytes (big-endian, 2 bytes for CRC-16/X.25 or 4
// bytes for CRC-32/Castagnoli).
type BIB struct {
	Flags           sdnv.Field
	BlkLen          sdnv.Field
	TargetCount     sdnv.Field
	TargetType      uint8
	CipherSuiteID   sdnv.Field
	CipherSuiteFlag sdnv.Field
	CompoundLen     sdnv.Field
	ResultType      uint8
	ResultLen       sdnv.Field
	Result          []byte
}

// CanonicalBIBLayout returns a zero-valued BIB with the Flags, BlkLen,
// TargetCount and CipherSuiteID offsets pre-populated; WriteCanonicalBIB lays
// out the remaining fields after them. UpdateBIB sizes Result (2 or 4 bytes)
// for whichever cipher suite is set, and WriteCanonicalBIB derives
// ResultLen from it.
func CanonicalBIBLayout() BIB {
	b := BIB{
		Flags:         sdnv.Field{Index: 1, Width: 1},
		BlkLen:        sdnv.Field{Index: 2, Width: 1},
		TargetCount:   sdnv.Field{Index: 3, Width: 1},
		CipherSuiteID: sdnv.Field{Index: 5, Width: 1},
	}
	b.TargetCount.Value = 1
	return b
}

// targetTypePayload is the only security-target-type this engine emits: the
// payload block is always what the BIB protects.
const targetTypePayload = TypePayload

// UpdateBIB computes the integrity result over payload using the cipher
// suite recorded in b.CipherSuiteID.Value and fills in Result/ResultLen.
func UpdateBIB(b *BIB, payload []byte) bpevent.Flags {
	var flags bpevent.Flags
	switch b.CipherSuiteID.Value {
	case CipherSuiteCRC16X25:
		sum := crc.ComputeCRC16(payload)
		b.Result = []byte{byte(sum >> 8), byte(sum)}
	case CipherSuiteCRC32Castagnoli:
		sum := crc.ComputeCRC32C(payload)
		b.Result = []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	default:
		flags.Set(bpevent.InvalidCipherSuiteID)
		return flags
	}
	b.ResultType = SecurityResultIntegritySignature
	b.ResultLen.Value = uint64(len(b.Result))
	b.TargetType = targetTypePayload
	return flags
}

// VerifyBIB recomputes the integrity result over payload and compares it to
// b.Result, returning FailedIntegrityCheck on mismatch.
func VerifyBIB(b *BIB, payload []byte) bpevent.Flags {
	var flags bpevent.Flags
	if b.ResultType != SecurityResultIntegritySignature {
		flags.Set(bpevent.InvalidBIBResultType)
		return flags
	}
	if b.TargetType != targetTypePayload {
		flags.Set(bpevent.InvalidBIBTargetType)
		return flags
	}
	var want []byte
	switch b.CipherSuiteID.Value {
	case CipherSuiteCRC16X25:
		sum := crc.ComputeCRC16(payload)
		want = []byte{byte(sum >> 8), byte(sum)}
	case CipherSuiteCRC32Castagnoli:
		sum := crc.ComputeCRC32C(payload)
		want = []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	default:
		flags.Set(bpevent.InvalidCipherSuiteID)
		return flags
	}
	if len(want) != len(b.Result) {
		flags.Set(bpevent.FailedIntegrityCheck)
		return flags
	}
	for i := range want {
		if want[i] != b.Result[i] {
			flags.Set(bpevent.FailedIntegrityCheck)
			return flags
		}
	}
	return flags
}

// WriteCanonicalBIB emits the BIB at the offsets recorded in b's fields.
// Call UpdateBIB first so Result/ResultLen/ResultType/TargetType are filled.
func WriteCanonicalBIB(buf []byte, b *BIB) (n int, flags bpevent.Flags) {
	if len(buf) < 7 {
		flags.Set(bpevent.SDNVIncomplete)
		return 0, flags
	}
	buf[0] = TypeBIB

	_, fl := sdnv.Write(buf, &b.Flags)
	flags |= fl
	b.TargetCount.Value = 1
	_, fl = sdnv.Write(buf, &b.TargetCount)
	flags |= fl

	idx := b.TargetCount.Index + b.TargetCount.Width
	buf[idx] = b.TargetType
	idx++

	b.CipherSuiteID.Index = idx
	idx, fl = sdnv.Write(buf, &b.CipherSuiteID)
	flags |= fl

	b.CipherSuiteFlag.Index = idx
	idx, fl = sdnv.Write(buf, &b.CipherSuiteFlag)
	flags |= fl

	// compound-length covers result-type + result-length + result bytes.
	b.ResultLen.Value = uint64(len(b.Result))
	rlWidth := sdnv.MinWidth(b.ResultLen.Value)

	b.CompoundLen.Index = idx
	b.CompoundLen.Width = 0
	b.CompoundLen.Value = uint64(1 + rlWidth + len(b.Result))
	idx, fl = sdnv.Write(buf, &b.CompoundLen)
	flags |= fl

	if idx >= len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return idx, flags
	}
	buf[idx] = b.ResultType
	idx++

	b.ResultLen.Index = idx
	b.ResultLen.Width = 0
	idx, fl = sdnv.Write(buf, &b.ResultLen)
	flags |= fl

	if idx+len(b.Result) > len(buf) {
		flags.Set(bpevent.SDNVIncomplete)
		return idx, flags
	}
	copy(buf[idx:], b.Result)
	idx += len(b.Result)

	b.BlkLen.Value = uint64(idx - (b.BlkLen.Index + b.BlkLen.Width))
	sdnv.Mask(&b.BlkLen)
	_, fl = sdnv.Write(buf, &b.BlkLen)
	flags |= fl

	return idx, flags
}

// ReadCanonicalBIB decodes a BIB using the offsets recorded in b's fields.
func ReadCanonicalBIB(buf []byte, b *BIB) (n int, flags bpevent.Flags) {
	if len(buf) < 1 || buf[0] != TypeBIB {
		flags.Set(bpevent.FailedToParse)
		return 0, flags
	}
	_, fl := sdnv.Read(buf, &b.Flags)
	flags |= fl
	_, fl = sdnv.Read(buf, &b.BlkLen)
	flags |= fl
	_, fl = sdnv.Read(buf, &b.TargetCount)
	flags |= fl

	idx := b.TargetCount.Index + b.TargetCount.Width
	if idx >= len(buf) {
		flags.Set(bpevent.FailedToParse)
		return idx, flags
	}
	b.TargetType = buf[idx]
	idx++

	b.CipherSuiteID.Index = idx
	b.CipherSuiteID.Width = 0
	idx, fl = sdnv.Read(buf, &b.CipherSuiteID)
	flags |= fl

	b.CipherSuiteFlag.Index = idx
	b.CipherSuiteFlag.Width = 0
	idx, fl = sdnv.Read(buf, &b.CipherSuiteFlag)
	flags |= fl

	b.CompoundLen.Index = idx
	b.CompoundLen.Width = 0
	idx, fl = sdnv.Read(buf, &b.CompoundLen)
	flags |= fl

	if idx >= len(buf) {
		flags.Set(bpevent.FailedToParse)
		return idx, flags
	}
	b.ResultType = buf[idx]
	idx++

	b.ResultLen.Index = idx
	b.ResultLen.Width = 0
	idx, fl = sdnv.Read(buf, &b.ResultLen)
	flags |= fl

	resLen := int(b.ResultLen.Value)
	if idx+resLen > len(buf) {
		flags.Set(bpevent.FailedToParse)
		return idx, flags
	}
	b.Result = append([]byte(nil), buf[idx:idx+resLen]...)
	idx += resLen

	return idx, flags
}

// ReadAutoBIB decodes a BIB whose field widths are not known in advance,
// laying every SDNV out sequentially and recording the actual index/width
// found for each one — the receive path's entry point for a BIB emitted by
// another implementation's own width choices.
func ReadAutoBIB(buf []byte, b *BIB) (n int, flags bpevent.Flags) {
	if len(buf) < 1 || buf[0] != TypeBIB {
		flags.Set(bpevent.FailedToParse)
		return 0, flags
	}
	idx := 1
	b.Flags = sdnv.Field{Index: idx}
	idx, fl := sdnv.Read(buf, &b.Flags)
	flags |= fl
	b.BlkLen = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &b.BlkLen)
	flags |= fl
	b.TargetCount = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &b.TargetCount)
	flags |= fl

	if idx >= len(buf) {
		flags.Set(bpevent.FailedToParse)
		return idx, flags
	}
	b.TargetType = buf[idx]
	idx++

	b.CipherSuiteID = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &b.CipherSuiteID)
	flags |= fl
	b.CipherSuiteFlag = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &b.CipherSuiteFlag)
	flags |= fl
	b.CompoundLen = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &b.CompoundLen)
	flags |= fl

	if idx >= len(buf) {
		flags.Set(bpevent.FailedToParse)
		return idx, flags
	}
	b.ResultType = buf[idx]
	idx++

	b.ResultLen = sdnv.Field{Index: idx}
	idx, fl = sdnv.Read(buf, &b.ResultLen)
	flags |= fl

	resLen := int(b.ResultLen.Value)
	if idx+resLen > len(buf) {
		flags.Set(bpevent.FailedToParse)
		return idx, flags
	}
	b.Result = append([]byte(nil), buf[idx:idx+resLen]...)
	idx += resLen

	return idx, flags
}
