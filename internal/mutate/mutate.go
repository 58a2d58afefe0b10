// Package mutate implements the Mutation Engine from spec.md §4.5:
// replace, insert, and kill over arbitrarily large regions, wrapped in the
// Backup/Recovery write-ahead protocol from spec.md §4.6.
package mutate

import (
	"fmt"

	"github.com/hexpeek/hexpeek/internal/backup"
	"github.com/hexpeek/hexpeek/internal/fsio"
	"github.com/hexpeek/hexpeek/internal/session"
)

// Engine executes write-class commands against an Infile.
type Engine struct {
	FS       *fsio.Service
	Progress fsio.ProgressFunc
}

// Source is a mutation's data argument: either a literal buffer or a
// region to copy from an (possibly the same) open Infile.
type Source struct {
	Literal  []byte
	FromFile *session.Infile
	FromStart int64
	FromLen   int64
}

// Len returns the source's byte count.
func (s Source) Len() int64 {
	if s.FromFile != nil {
		return s.FromLen
	}

	return int64(len(s.Literal))
}

// Plan is one mutation to apply to Target.
type Plan struct {
	Target  *session.Infile
	Backups *backup.Files
	Ledger  *backup.Ledger

	Start  int64
	Len    int64 // target region length
	Source Source

	OrigCmd string
}

func (e *Engine) writeSource(f *fsio.File, at, length int64, src Source, verb string) error {
	if length <= 0 {
		return nil
	}

	if src.FromFile == nil {
		n := int64(len(src.Literal))
		if n == 0 {
			return fmt.Errorf("mutate: %s: empty literal for non-zero region", verb)
		}

		writeLen := n
		if writeLen > length {
			writeLen = length
		}

		if err := e.FS.WriteAt(f, at, src.Literal[:writeLen]); err != nil {
			return fmt.Errorf("mutate: %s: write literal: %w", verb, err)
		}

		if writeLen < length {
			if err := e.FS.RepeatFill(f, at, writeLen, length-writeLen); err != nil {
				return fmt.Errorf("mutate: %s: repeat fill: %w", verb, err)
			}
		}

		return nil
	}

	if src.FromFile.File == f {
		if err := e.FS.FileCopy(src.FromFile.File, src.FromStart, length, f, at, length); err != nil {
			return fmt.Errorf("mutate: %s: same-file copy: %w", verb, err)
		}

		return nil
	}

	if err := e.FS.CopyForwardProgress(src.FromFile.File, src.FromStart, f, at, length, verb, e.Progress); err != nil {
		return fmt.Errorf("mutate: %s: cross-file copy: %w", verb, err)
	}

	return nil
}

// Replace overwrites [Start, Start+Len) with plan.Source, repeat-filling a
// short literal to the target region's size, per spec.md §4.5.
func (e *Engine) Replace(plan Plan) error {
	inf := plan.Target
	size, err := inf.Size()
	if err != nil {
		return fmt.Errorf("replace: size: %w", err)
	}

	k := inf.OpCounter
	active := plan.Backups.Active(k, plan.Ledger.Depth)

	rec := backup.Op{
		SizeOrig:  size,
		SizeAdj:   0,
		LastAt:    inf.CurrentOffset.Or(0),
		SavedFrom: plan.Start,
		SavedLen:  plan.Len,
		OrigCmd:   plan.OrigCmd,
	}

	if _, err := plan.Ledger.BeginOp(inf.File, active, k, rec); err != nil {
		return fmt.Errorf("replace: backup: %w", err)
	}

	if err := e.writeSource(inf.File, plan.Start, plan.Len, plan.Source, "replace"); err != nil {
		return err
	}

	inf.OpCounter++

	return nil
}

// Insert opens a hole of plan.Source.Len() bytes at Start and writes
// plan.Source into it, fixing up a same-file source zone that lies at or
// after the insertion point to account for the shift, per spec.md §4.5.
func (e *Engine) Insert(plan Plan) error {
	inf := plan.Target

	size, err := inf.Size()
	if err != nil {
		return fmt.Errorf("insert: size: %w", err)
	}

	growBy := plan.Source.Len()

	k := inf.OpCounter
	active := plan.Backups.Active(k, plan.Ledger.Depth)

	rec := backup.Op{
		SizeOrig:  size,
		SizeAdj:   growBy,
		LastAt:    inf.CurrentOffset.Or(0),
		SavedFrom: plan.Start,
		SavedLen:  0, // the inserted region did not previously exist
		OrigCmd:   plan.OrigCmd,
	}

	if _, err := plan.Ledger.BeginOp(inf.File, active, k, rec); err != nil {
		return fmt.Errorf("insert: backup: %w", err)
	}

	if err := e.adjustSize(inf, plan.Backups, plan.Ledger, k, plan.Start, growBy); err != nil {
		return fmt.Errorf("insert: grow: %w", err)
	}

	src := plan.Source
	if src.FromFile != nil && src.FromFile.File == inf.File && src.FromStart >= plan.Start {
		src.FromStart += growBy
	}

	if err := e.writeSource(inf.File, plan.Start, growBy, src, "insert"); err != nil {
		return err
	}

	inf.OpCounter++

	return nil
}

// Kill clamps Len to the remaining file tail, backs up the doomed region,
// and shrinks the file, per spec.md §4.5.
func (e *Engine) Kill(plan Plan) error {
	inf := plan.Target

	size, err := inf.Size()
	if err != nil {
		return fmt.Errorf("kill: size: %w", err)
	}

	start := plan.Start
	length := plan.Len

	if start+length > size {
		length = size - start
	}

	if length < 0 {
		length = 0
	}

	k := inf.OpCounter
	active := plan.Backups.Active(k, plan.Ledger.Depth)

	rec := backup.Op{
		SizeOrig:  size,
		SizeAdj:   -length,
		LastAt:    inf.CurrentOffset.Or(0),
		SavedFrom: start,
		SavedLen:  length,
		OrigCmd:   plan.OrigCmd,
	}

	if _, err := plan.Ledger.BeginOp(inf.File, active, k, rec); err != nil {
		return fmt.Errorf("kill: backup: %w", err)
	}

	if err := e.adjustSize(inf, plan.Backups, plan.Ledger, k, start+length, -length); err != nil {
		return fmt.Errorf("kill: shrink: %w", err)
	}

	inf.OpCounter++

	return nil
}

// adjustSize wraps fsio.Service.AdjustSize in the ADJ-slot fencing
// protocol of spec.md §4.6, so a crash mid-move can be rolled back or
// rolled forward by backup.Recover.
func (e *Engine) adjustSize(inf *session.Infile, bf *backup.Files, ledger *backup.Ledger, k uint64, pos, amt int64) error {
	if amt == 0 {
		return nil
	}

	active := bf.Active(k, ledger.Depth)

	// saved_from is always the tail's pre-move location (pos); its payload
	// is the bytes from pos to the old EOF. Recovery truncates back to
	// saved_from+saved_len (the original size) and replays the payload at
	// saved_from, which reconstructs the pre-move layout whether the move
	// was a grow or a shrink.
	size, err := inf.Size()
	if err != nil {
		return err
	}

	tailLen := size - pos
	if tailLen < 0 {
		tailLen = 0
	}

	adjRec := backup.Op{SavedFrom: pos, SavedLen: tailLen}

	adjRec, err := ledger.BeginAdj(inf.File, active, adjRec)
	if err != nil {
		return fmt.Errorf("adjust size: record adj: %w", err)
	}

	if err := e.FS.AdjustSize(inf.File, pos, amt); err != nil {
		return fmt.Errorf("adjust size: move: %w", err)
	}

	if err := ledger.ClearAdj(active, adjRec); err != nil {
		return fmt.Errorf("adjust size: clear adj: %w", err)
	}

	return nil
}
