// Package backup implements the write-ahead backup layout and crash
// recovery protocol described in spec.md §3 and §4.6. Records are
// defined with an explicit on-disk byte order (big-endian, per §9's
// design note) rather than read directly as host-aligned structs, so the
// layout is stable across architectures and matches the fixed 256-byte
// record size interoperably.
package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// RecordSize is the fixed size of both the BackupHeader and every Op
// record, per spec.md §3.
const RecordSize = 0x100

// MaxBackupDepth bounds the number of normal op slots in one backup file.
const MaxBackupDepth = 32

// Layout offsets, per spec.md §3.
const (
	HeaderOffset  = 0
	OpsBaseOffset = RecordSize          // Op[0] begins here
	AdjSlotIndex  = MaxBackupDepth      // Op[ADJ] is the 33rd slot
	AdjOffset     = OpsBaseOffset + AdjSlotIndex*RecordSize
	PayloadBase   = 0x4000 // first page-aligned payload offset
	PageSize      = 0x1000
)

// magic is "hexpeek bk v0" null-padded to 16 bytes.
var magic = [16]byte{'h', 'e', 'x', 'p', 'e', 'e', 'k', ' ', 'b', 'k', ' ', 'v', '0', 0, 0, 0}

// opMagicFill is the 12×0xFF + 3×0x00 sentinel prefix of every Op record.
var opMagicFill = append(bytes.Repeat([]byte{0xFF}, 12), 0, 0, 0)

// Status is the three-phase fencing field of an Op record.
type Status byte

const (
	StatusEmpty        Status = 0x00
	StatusBackupStart  Status = 0xB0
	StatusBackupDone   Status = 0xBD
	StatusRecoveryDone Status = 0xDD
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusBackupStart:
		return "backup_start"
	case StatusBackupDone:
		return "backup_done"
	case StatusRecoveryDone:
		return "recovery_done"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(s))
	}
}

// origCmdWidth is the space left in an Op record for the verbatim command
// text after the fixed fields.
const origCmdWidth = RecordSize - 15 - 1 - 8*6

// Header is the one-record preamble of a backup file.
type Header struct {
	FirstOp uint64
}

// Op is one per-operation backup record.
type Op struct {
	Status Status

	SizeOrig  int64 // file size before the op; unused for the ADJ slot
	SizeAdj   int64 // +len insert, 0 replace, -len kill
	LastAt    int64 // prior current offset
	SavedFrom int64 // data-file offset the payload was copied from
	SavedAt   int64 // backup-file offset the payload lives at
	SavedLen  int64 // payload length

	OrigCmd string
}

// IsEmpty reports whether the slot holds no record.
func (o Op) IsEmpty() bool { return o.Status == StatusEmpty }

// EncodeHeader serializes h into a RecordSize-byte record.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, RecordSize)
	copy(buf[:16], magic[:])
	binary.BigEndian.PutUint64(buf[16:24], h.FirstOp)

	return buf
}

// DecodeHeader parses a RecordSize-byte record written by EncodeHeader.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < RecordSize {
		return Header{}, fmt.Errorf("%w: short header record (%d bytes)", ErrCorruptRecord, len(buf))
	}

	if !bytes.Equal(buf[:16], magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrCorruptRecord)
	}

	return Header{FirstOp: binary.BigEndian.Uint64(buf[16:24])}, nil
}

// EncodeOp serializes op into a RecordSize-byte record, truncating
// OrigCmd to fit and marking truncation with a trailing '~', per spec.md §3.
func EncodeOp(op Op) []byte {
	buf := make([]byte, RecordSize)
	copy(buf[0:15], opMagicFill)
	buf[15] = byte(op.Status)

	binary.BigEndian.PutUint64(buf[16:24], uint64(op.SizeOrig))
	binary.BigEndian.PutUint64(buf[24:32], uint64(op.SizeAdj))
	binary.BigEndian.PutUint64(buf[32:40], uint64(op.LastAt))
	binary.BigEndian.PutUint64(buf[40:48], uint64(op.SavedFrom))
	binary.BigEndian.PutUint64(buf[48:56], uint64(op.SavedAt))
	binary.BigEndian.PutUint64(buf[56:64], uint64(op.SavedLen))

	cmd := op.OrigCmd
	if len(cmd) > origCmdWidth {
		cmd = cmd[:origCmdWidth-1] + "~"
	}

	copy(buf[64:], cmd)

	return buf
}

// DecodeOp parses a RecordSize-byte record written by EncodeOp.
func DecodeOp(buf []byte) (Op, error) {
	if len(buf) < RecordSize {
		return Op{}, fmt.Errorf("%w: short op record (%d bytes)", ErrCorruptRecord, len(buf))
	}

	status := Status(buf[15])
	if status == StatusEmpty && bytes.Equal(buf, make([]byte, RecordSize)) {
		return Op{Status: StatusEmpty}, nil
	}

	if !bytes.Equal(buf[0:12], opMagicFill[0:12]) {
		return Op{}, fmt.Errorf("%w: bad op magic", ErrCorruptRecord)
	}

	op := Op{
		Status:    status,
		SizeOrig:  int64(binary.BigEndian.Uint64(buf[16:24])),
		SizeAdj:   int64(binary.BigEndian.Uint64(buf[24:32])),
		LastAt:    int64(binary.BigEndian.Uint64(buf[32:40])),
		SavedFrom: int64(binary.BigEndian.Uint64(buf[40:48])),
		SavedAt:   int64(binary.BigEndian.Uint64(buf[48:56])),
		SavedLen:  int64(binary.BigEndian.Uint64(buf[56:64])),
	}

	end := bytes.IndexByte(buf[64:], 0)
	if end < 0 {
		end = len(buf) - 64
	}

	op.OrigCmd = string(buf[64 : 64+end])

	return op, nil
}

// SlotOffset returns the byte offset of op slot index (0..31 normal,
// AdjSlotIndex for the ADJ slot).
func SlotOffset(index int) int64 {
	return OpsBaseOffset + int64(index)*RecordSize
}

// ActiveFileIndex implements the rotation identity from spec.md §4.6 and
// §8 property 3: active_file(k) = (k div depth) mod 2.
func ActiveFileIndex(k uint64, depth int) int {
	if depth <= 0 {
		return 0
	}

	return int((k / uint64(depth)) % 2)
}

// SlotForOp returns the slot index within a round for op counter k.
func SlotForOp(k uint64, depth int) int {
	if depth <= 0 {
		return 0
	}

	return int(k % uint64(depth))
}

// RoundStart returns the first op counter of the round containing k.
func RoundStart(k uint64, depth int) uint64 {
	if depth <= 0 {
		return 0
	}

	return (k / uint64(depth)) * uint64(depth)
}

// roundUpPage rounds off up to the next PageSize boundary.
func roundUpPage(off int64) int64 {
	if off%PageSize == 0 {
		return off
	}

	return (off/PageSize + 1) * PageSize
}
