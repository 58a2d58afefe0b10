// Package session owns the process-wide Settings and the (at most two)
// open Infile records, replacing the C implementation's global mutable
// state with a value that main constructs and threads through the parser,
// mutation engine, and printer, per spec.md §9.
package session

import (
	"github.com/hexpeek/hexpeek/internal/fsio"
	"github.com/hexpeek/hexpeek/internal/offset"
)

// BackupSlot holds the path, display name, and open descriptor for one of
// an Infile's two rotating backup files.
type BackupSlot struct {
	Path        string
	DisplayName string
	File        *fsio.File
}

// Infile is one of up to two files a session has open.
type Infile struct {
	Path        string // filesystem path, or "" if descriptor-bound
	DisplayName string
	ExternalFD  bool // opened from a pre-opened descriptor (-d FD)
	ReadWrite   bool
	Created     bool // this session created the file (cleanup candidate if left empty)

	File *fsio.File

	CurrentOffset     offset.Offset
	SavedPriorOffset  offset.Offset // rollback point for a failed command
	OpCounter         uint64

	ForwardTrack int64 // shadow offset for non-seekable descriptors

	Backups [2]BackupSlot
}

// Seekable reports whether the underlying descriptor supports real seeks.
func (f *Infile) Seekable() bool {
	if f.File == nil {
		return false
	}

	return f.File.Seekable()
}

// Size returns the file's current size via Stat.
func (f *Infile) Size() (int64, error) {
	info, err := f.File.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// RememberOffsetForRollback snapshots CurrentOffset so a failed command can
// restore it.
func (f *Infile) RememberOffsetForRollback() {
	f.SavedPriorOffset = f.CurrentOffset
}

// RollbackOffset restores CurrentOffset from the last snapshot.
func (f *Infile) RollbackOffset() {
	f.CurrentOffset = f.SavedPriorOffset
}
