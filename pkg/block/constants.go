// Package block implements the canonical and auto-layout encode/decode of
// the primary block (PRI), custody transfer enhancement block (CTEB), bundle
// integrity block (BIB), and payload block (PAY).
package block

// Block type bytes, spec.md §6.
const (
	TypePayload = 0x01
	TypeCTEB    = 0x0A
	TypeBIB     = 0x0D
)

// Primary-block processing-control-flag bit positions, spec.md §3.
const (
	PCFIsFragment           uint64 = 1 << 0
	PCFIsAdminRecord        uint64 = 1 << 1
	PCFAllowFragmentation   uint64 = 1 << 2
	PCFCustodyRequested     uint64 = 1 << 3
	PCFAppAckRequested      uint64 = 1 << 4
	pcfClassOfServiceShift         = 5
	pcfClassOfServiceMask   uint64 = 0x7 << pcfClassOfServiceShift
)

// ClassOfService extracts the 3-bit class-of-service field from a PCF value.
func ClassOfService(pcf uint64) uint8 {
	return uint8((pcf & pcfClassOfServiceMask) >> pcfClassOfServiceShift)
}

// WithClassOfService returns pcf with its class-of-service field set to cos.
func WithClassOfService(pcf uint64, cos uint8) uint64 {
	return (pcf &^ pcfClassOfServiceMask) | (uint64(cos&0x7) << pcfClassOfServiceShift)
}

// Extension-block flag mask bits, spec.md §6.
const (
	BlockFlagReplicateAllFragments uint64 = 0x01
	BlockFlagNotifyOnNoProc        uint64 = 0x02
	BlockFlagDeleteBundleOnNoProc  uint64 = 0x04
	BlockFlagLastBlock             uint64 = 0x08
	BlockFlagDropBlockOnNoProc     uint64 = 0x10
	BlockFlagForwardWithoutProc    uint64 = 0x20
	BlockFlagEIDRef                uint64 = 0x40
)

// BIB cipher suite ids, spec.md §3.
const (
	CipherSuiteCRC16X25        uint64 = 0
	CipherSuiteCRC32Castagnoli uint64 = 1
)

// SecurityResultIntegritySignature is the BIB's security-result-type marker.
const SecurityResultIntegritySignature uint8 = 0x01

// Administrative record type byte, carried as the first payload byte of an
// admin-record bundle.
const (
	AdminRecordStatusReport           uint8 = 1
	AdminRecordCustodySignal          uint8 = 2
	AdminRecordAggregateCustodySignal uint8 = 4
)

// Sentinel creation-time / expiration-time values, distinguished from any
// real wall-clock second count.
//
// UnknownCreationTime and TTLCreationTime are written into the createsec
// SDNV, which is fixed at 6 bytes (42 bits) wide in the canonical primary
// layout, so both must fit there; MaxEncodedValue bounds the purely
// in-memory exprtime calculation and is never itself serialized, so it can
// use the full 64-bit range.
const (
	maxFortyTwoBit      uint64 = 1<<42 - 1
	UnknownCreationTime uint64 = maxFortyTwoBit
	TTLCreationTime     uint64 = maxFortyTwoBit - 1
	MaxEncodedValue     uint64 = 1<<64 - 1
	BestEffortLifetime  uint64 = 1<<32 - 1
)

// HeaderBufSize is the fixed header buffer capacity, spec.md §6.
const HeaderBufSize = 128

// DefaultClassOfService is used when the route/attributes don't override it.
const DefaultClassOfService uint8 = 0
