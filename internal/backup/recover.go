package backup

import (
	"errors"
	"fmt"

	"github.com/hexpeek/hexpeek/internal/fsio"
)

// ErrSizeMismatch reports a data file whose size matches neither the
// pre-op nor the post-op size recorded for an op being rolled back
// (spec.md §4.6's fatal "data file size is wrong").
var ErrSizeMismatch = errors.New("data file size is wrong")

// Action records one step Recover/Undo performed, for the "ops"
// introspection command and for tests.
type Action struct {
	FileIndex int // 0 or 1, which rotation file the op came from
	OpIndex   int // slot index, or AdjSlotIndex
	Op        Op
	Reverted  bool // false when the op was BACKUP_START and skipped
}

// roundOrder returns the two backup files ordered newest round first, by
// comparing header FirstOp (spec.md §4.6: "sort newest-first by firstop").
func (l *Ledger) roundOrder(files *Files) ([2]int, [2]Header, error) {
	var headers [2]Header

	for i := range 2 {
		h, err := l.ReadHeader(files.File[i])
		if err != nil {
			// An unreadable/fresh file sorts as oldest (FirstOp 0).
			headers[i] = Header{FirstOp: 0}

			continue
		}

		headers[i] = h
	}

	order := [2]int{0, 1}
	if headers[1].FirstOp > headers[0].FirstOp {
		order = [2]int{1, 0}
	}

	return order, headers, nil
}

// revertSize reverses the size half of one op: comparing the data file's
// current size against the recorded pre/post sizes and moving the tail
// back, per spec.md §4.6.
func (l *Ledger) revertSize(data *fsio.File, op Op) error {
	if op.SizeAdj == 0 {
		return nil
	}

	info, err := l.FS.Stat(data)
	if err != nil {
		return fmt.Errorf("backup: revert size: stat: %w", err)
	}

	size := info.Size()
	postSize := op.SizeOrig + op.SizeAdj

	switch {
	case size == op.SizeOrig:
		return nil
	case size == postSize:
		// Undo the original adjust_size(pos, amt) call: pos was
		// SavedFrom+SavedLen (the tail's pre-move location) and amt was
		// SizeAdj, so the reversal is adjust_size(pos+amt, -amt).
		pos := op.SavedFrom + op.SavedLen + op.SizeAdj

		return l.FS.AdjustSize(data, pos, -op.SizeAdj)
	case size > op.SizeOrig && op.SizeAdj > 0 && op.SavedFrom == op.SizeOrig:
		// A grow whose tail reached EOF was only partially applied before
		// the crash; spec.md §9 treats truncating back to the pre-op size
		// as legal in this one shape.
		return l.FS.Truncate(data, op.SizeOrig)
	default:
		return fmt.Errorf("%w: have %d, want %d or %d", ErrSizeMismatch, size, op.SizeOrig, postSize)
	}
}

// revertAdj handles an in-flight ADJ record found during recovery: the
// move was recorded but may not have completed, so the data file is
// truncated back to the point past the saved tail and the tail is
// rewritten in place, then the slot is cleared.
func (l *Ledger) revertAdj(data *fsio.File, active *fsio.File, op Op) error {
	if op.IsEmpty() {
		return nil
	}

	if op.Status == StatusRecoveryDone {
		return nil
	}

	restoreAt := op.SavedFrom + op.SavedLen

	if err := l.FS.Truncate(data, restoreAt); err != nil {
		return fmt.Errorf("backup: revert adj: truncate: %w", err)
	}

	if op.SavedLen > 0 {
		if err := l.FS.CopyExternal(active, op.SavedAt, data, op.SavedFrom, op.SavedLen); err != nil {
			return fmt.Errorf("backup: revert adj: restore payload: %w", err)
		}
	}

	return l.ClearAdj(active, op)
}

// revertOp fully reverts one normal op: resolve the size half, copy the
// saved payload back over the (possibly moved) region, and mark the slot
// RECOVERY_DONE.
func (l *Ledger) revertOp(data *fsio.File, active *fsio.File, fileIdx, slot int, op Op) (Action, error) {
	if op.Status == StatusBackupStart {
		// The op never took effect on the data file; nothing to revert.
		return Action{FileIndex: fileIdx, OpIndex: slot, Op: op, Reverted: false}, nil
	}

	if err := l.revertSize(data, op); err != nil {
		return Action{}, err
	}

	if op.SavedLen > 0 {
		if err := l.FS.CopyExternal(active, op.SavedAt, data, op.SavedFrom, op.SavedLen); err != nil {
			return Action{}, fmt.Errorf("backup: revert op: restore payload: %w", err)
		}
	}

	if err := l.writeOp(active, slot, Op{
		Status:    StatusRecoveryDone,
		SizeOrig:  op.SizeOrig,
		SizeAdj:   op.SizeAdj,
		LastAt:    op.LastAt,
		SavedFrom: op.SavedFrom,
		SavedAt:   op.SavedAt,
		SavedLen:  op.SavedLen,
		OrigCmd:   op.OrigCmd,
	}); err != nil {
		return Action{}, err
	}

	return Action{FileIndex: fileIdx, OpIndex: slot, Op: op, Reverted: true}, nil
}

// Recover performs full post-crash recovery across both of an Infile's
// backup files: the newer round first, ADJ slot before normal ops, each
// file's normal ops from the highest slot down to 0 (spec.md §4.6).
func (l *Ledger) Recover(data *fsio.File, files *Files) ([]Action, error) {
	order, _, err := l.roundOrder(files)
	if err != nil {
		return nil, err
	}

	var actions []Action

	for _, fileIdx := range order {
		active := files.File[fileIdx]

		adj, err := l.ReadOp(active, AdjSlotIndex)
		if err != nil {
			return actions, err
		}

		if !adj.IsEmpty() && adj.Status != StatusRecoveryDone {
			if err := l.revertAdj(data, active, adj); err != nil {
				return actions, err
			}

			actions = append(actions, Action{FileIndex: fileIdx, OpIndex: AdjSlotIndex, Op: adj, Reverted: true})
		}

		for slot := MaxBackupDepth - 1; slot >= 0; slot-- {
			op, err := l.ReadOp(active, slot)
			if err != nil {
				return actions, err
			}

			if op.IsEmpty() || op.Status == StatusRecoveryDone {
				continue
			}

			action, err := l.revertOp(data, active, fileIdx, slot, op)
			if err != nil {
				return actions, err
			}

			actions = append(actions, action)
		}
	}

	if err := l.FS.Sync(data); err != nil {
		return actions, fmt.Errorf("backup: recover: sync data file: %w", err)
	}

	return actions, nil
}

// UndoResult reports what an Undo call changed, so the caller (the
// session's undo/ops commands) can rewind CurrentOffset and the op
// counter.
type UndoResult struct {
	Actions      []Action
	OpsUndone    int
	LastAt       int64 // the earliest LastAt among undone ops; the offset to rewind to
	HasLastAt    bool
}

// Undo reverts the most recent n BACKUP_DONE ops across both backup files,
// walking newest-first exactly like Recover but stopping after n reverted
// ops (spec.md §4.6 "Undo depth N").
func (l *Ledger) Undo(data *fsio.File, files *Files, n int) (UndoResult, error) {
	order, _, err := l.roundOrder(files)
	if err != nil {
		return UndoResult{}, err
	}

	var result UndoResult

	for _, fileIdx := range order {
		if result.OpsUndone >= n {
			break
		}

		active := files.File[fileIdx]

		for slot := MaxBackupDepth - 1; slot >= 0 && result.OpsUndone < n; slot-- {
			op, err := l.ReadOp(active, slot)
			if err != nil {
				return result, err
			}

			if op.Status != StatusBackupDone {
				continue
			}

			action, err := l.revertOp(data, active, fileIdx, slot, op)
			if err != nil {
				return result, err
			}

			result.Actions = append(result.Actions, action)
			result.OpsUndone++
			result.LastAt = op.LastAt
			result.HasLastAt = true
		}
	}

	if result.OpsUndone > 0 {
		if err := l.FS.Sync(data); err != nil {
			return result, fmt.Errorf("backup: undo: sync data file: %w", err)
		}
	}

	return result, nil
}

// Ledger entries for the "ops" introspection command (SPEC_FULL.md item 2):
// the non-empty slots of backup file 0, then those of backup file 1, each
// file in ascending slot order with the ADJ slot last.
func (l *Ledger) ListOps(files *Files) ([]Action, error) {
	var out []Action

	for fileIdx := range 2 {
		active := files.File[fileIdx]

		for slot := 0; slot <= AdjSlotIndex; slot++ {
			op, err := l.ReadOp(active, slot)
			if err != nil {
				return out, err
			}

			if op.IsEmpty() {
				continue
			}

			out = append(out, Action{FileIndex: fileIdx, OpIndex: slot, Op: op})
		}
	}

	return out, nil
}
