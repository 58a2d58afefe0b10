package backup

import (
	"errors"
	"fmt"

	"github.com/hexpeek/hexpeek/internal/fsio"
)

// ErrCorruptRecord reports a header or Op record that fails structural
// validation (spec.md §7 StateError).
var ErrCorruptRecord = errors.New("corrupt backup record")

// ErrBackupsDisabled reports an attempted backup operation with depth 0.
var ErrBackupsDisabled = errors.New("backups disabled")

// Files groups the two rotating backup files kept for one Infile.
type Files struct {
	File [2]*fsio.File
}

// Ledger implements the per-operation write-ahead protocol of spec.md §4.6.
type Ledger struct {
	FS    *fsio.Service
	Depth int // 0 disables backups entirely
	Sync  bool
}

// Active returns the backup file that op counter k writes to.
func (f *Files) Active(k uint64, depth int) *fsio.File {
	return f.File[ActiveFileIndex(k, depth)]
}

// BeginRoundIfNeeded truncates and reinitializes the active file with a
// fresh header when k starts a new round (k mod depth == 0).
func (l *Ledger) BeginRoundIfNeeded(active *fsio.File, k uint64) error {
	if l.Depth <= 0 {
		return ErrBackupsDisabled
	}

	if k%uint64(l.Depth) != 0 {
		return nil
	}

	if err := l.FS.Truncate(active, 0); err != nil {
		return fmt.Errorf("backup: begin round: truncate: %w", err)
	}

	if err := l.FS.WriteAt(active, HeaderOffset, EncodeHeader(Header{FirstOp: k})); err != nil {
		return fmt.Errorf("backup: begin round: write header: %w", err)
	}

	return nil
}

// ReadHeader reads and validates a backup file's header.
func (l *Ledger) ReadHeader(f *fsio.File) (Header, error) {
	buf := make([]byte, RecordSize)

	n, err := l.FS.ReadFull(f, HeaderOffset, buf)
	if err != nil {
		return Header{}, fmt.Errorf("backup: read header: %w", err)
	}

	if n < RecordSize {
		return Header{}, fmt.Errorf("%w: truncated header", ErrCorruptRecord)
	}

	return DecodeHeader(buf)
}

// ReadOp reads and decodes op slot index from f.
func (l *Ledger) ReadOp(f *fsio.File, index int) (Op, error) {
	buf := make([]byte, RecordSize)

	n, err := l.FS.ReadFull(f, SlotOffset(index), buf)
	if err != nil {
		return Op{}, fmt.Errorf("backup: read op[%d]: %w", index, err)
	}

	if n < RecordSize {
		return Op{Status: StatusEmpty}, nil
	}

	return DecodeOp(buf)
}

// nextPayloadOffset scans every slot (0..31 plus ADJ) and returns the next
// page-aligned offset after the highest occupied payload region, or
// PayloadBase if none are occupied.
func (l *Ledger) nextPayloadOffset(f *fsio.File) (int64, error) {
	maxEnd := int64(PayloadBase)

	for idx := 0; idx <= AdjSlotIndex; idx++ {
		op, err := l.ReadOp(f, idx)
		if err != nil {
			return 0, err
		}

		if op.IsEmpty() {
			continue
		}

		end := op.SavedAt + op.SavedLen
		if end > maxEnd {
			maxEnd = end
		}
	}

	return roundUpPage(maxEnd), nil
}

// writeOp writes a full op record at slot index.
func (l *Ledger) writeOp(f *fsio.File, index int, op Op) error {
	if err := l.FS.WriteAt(f, SlotOffset(index), EncodeOp(op)); err != nil {
		return fmt.Errorf("backup: write op[%d]: %w", index, err)
	}

	return nil
}

// writeStatus overwrites only the status byte of slot index, the final
// fencing step of the write-ahead protocol.
func (l *Ledger) writeStatus(f *fsio.File, index int, status Status) error {
	statusOffset := SlotOffset(index) + 15
	if err := l.FS.WriteAt(f, statusOffset, []byte{byte(status)}); err != nil {
		return fmt.Errorf("backup: write status[%d]: %w", index, err)
	}

	return nil
}

// BeginOp executes the per-operation protocol of spec.md §4.6 steps 1-5:
// locate the next payload slot, write the Op with status BACKUP_START plus
// its payload, optionally fsync, then flip the status byte to BACKUP_DONE
// and optionally fsync again. Callers perform the data-file mutation
// (steps 6-7) only after BeginOp returns successfully.
func (l *Ledger) BeginOp(data *fsio.File, active *fsio.File, k uint64, rec Op) (Op, error) {
	if l.Depth <= 0 {
		return rec, ErrBackupsDisabled
	}

	if err := l.BeginRoundIfNeeded(active, k); err != nil {
		return rec, err
	}

	slot := SlotForOp(k, l.Depth)

	savedAt, err := l.nextPayloadOffset(active)
	if err != nil {
		return rec, err
	}

	rec.SavedAt = savedAt
	rec.Status = StatusBackupStart

	if err := l.writeOp(active, slot, rec); err != nil {
		return rec, err
	}

	if rec.SavedLen > 0 {
		if err := l.FS.CopyExternal(data, rec.SavedFrom, active, rec.SavedAt, rec.SavedLen); err != nil {
			return rec, fmt.Errorf("backup: copy payload: %w", err)
		}
	}

	if l.Sync {
		if err := l.FS.Sync(active); err != nil {
			return rec, fmt.Errorf("backup: sync after start: %w", err)
		}
	}

	if err := l.writeStatus(active, slot, StatusBackupDone); err != nil {
		return rec, err
	}

	rec.Status = StatusBackupDone

	if l.Sync {
		if err := l.FS.Sync(active); err != nil {
			return rec, fmt.Errorf("backup: sync after done: %w", err)
		}
	}

	return rec, nil
}

// BeginAdj records the ADJ-slot record for an in-flight size adjustment,
// using the same write-ahead protocol as BeginOp but always at the
// reserved ADJ slot.
func (l *Ledger) BeginAdj(data *fsio.File, active *fsio.File, rec Op) (Op, error) {
	if l.Depth <= 0 {
		return rec, ErrBackupsDisabled
	}

	savedAt, err := l.nextPayloadOffset(active)
	if err != nil {
		return rec, err
	}

	rec.SavedAt = savedAt
	rec.Status = StatusBackupStart

	if err := l.writeOp(active, AdjSlotIndex, rec); err != nil {
		return rec, err
	}

	if rec.SavedLen > 0 {
		if err := l.FS.CopyExternal(data, rec.SavedFrom, active, rec.SavedAt, rec.SavedLen); err != nil {
			return rec, fmt.Errorf("backup: copy adj payload: %w", err)
		}
	}

	if l.Sync {
		if err := l.FS.Sync(active); err != nil {
			return rec, fmt.Errorf("backup: sync adj start: %w", err)
		}
	}

	if err := l.writeStatus(active, AdjSlotIndex, StatusBackupDone); err != nil {
		return rec, err
	}

	rec.Status = StatusBackupDone

	if l.Sync {
		if err := l.FS.Sync(active); err != nil {
			return rec, fmt.Errorf("backup: sync adj done: %w", err)
		}
	}

	return rec, nil
}

// ClearAdj clears the ADJ slot once its size adjustment has completed. Per
// spec.md §9's preserved source behavior, an empty-payload record (SavedLen
// == 0) is cleared without truncating the backup file's payload storage.
func (l *Ledger) ClearAdj(active *fsio.File, rec Op) error {
	if err := l.writeOp(active, AdjSlotIndex, Op{Status: StatusEmpty}); err != nil {
		return err
	}

	if rec.SavedLen == 0 {
		return nil
	}

	if err := l.FS.Truncate(active, rec.SavedAt); err != nil {
		return fmt.Errorf("backup: clear adj: truncate: %w", err)
	}

	return nil
}

// MarkDone flips a normal op slot's status to BACKUP_DONE without
// rewriting the whole record. Nothing in this repository calls it; BeginOp
// already does this as part of its sequence.
func (l *Ledger) MarkDone(active *fsio.File, k uint64) error {
	return l.writeStatus(active, SlotForOp(k, l.Depth), StatusBackupDone)
}
