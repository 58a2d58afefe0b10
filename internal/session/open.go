package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hexpeek/hexpeek/internal/backup"
	"github.com/hexpeek/hexpeek/internal/fsio"
	"github.com/hexpeek/hexpeek/internal/offset"
)

// BackupExt is the fixed extension spec.md §6 requires on every backup
// file name, regardless of which infile it shadows.
const BackupExt = "hexpeek-backup"

// backupNamesForPath derives the `.<basename>.f<bidx>.<ext>` pair for a
// path-bound infile (spec.md §6 "Backup file naming").
func backupNamesForPath(path string) (paths, names [2]string) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	for bidx := 0; bidx < 2; bidx++ {
		name := fmt.Sprintf(".%s.f%d.%s", base, bidx, BackupExt)
		names[bidx] = name
		paths[bidx] = filepath.Join(dir, name)
	}

	return paths, names
}

// backupNamesForFD derives the `.<ppid>-<fd>.d<bidx>.<ext>` pair for a
// descriptor-bound infile (-d FD). Descriptor-bound backups live in the
// process's working directory since there is no path to anchor them to.
func backupNamesForFD(ppid, fd int) (paths, names [2]string) {
	for bidx := 0; bidx < 2; bidx++ {
		name := fmt.Sprintf(".%d-%d.d%d.%s", ppid, fd, bidx, BackupExt)
		names[bidx] = name
		paths[bidx] = name
	}

	return paths, names
}

// OpenSpec describes one infile the caller wants opened, mirroring the
// CLI's per-file options (spec.md §6: -r/-w/-W, -d FD).
type OpenSpec struct {
	Path       string // "" if descriptor-bound
	FD         int    // valid only when Path == ""
	ReadWrite  bool
	Create     bool // -w: create if missing
	BackupOnly bool // open backups without truncating/rotating (recovery, reset)
}

// Open opens one infile and, unless backups are disabled, its pair of
// rotating backup files, wiring them into slot fi of the session
// (spec.md §3 Infile, §6 backup file naming).
func (s *Session) Open(fi int, spec OpenSpec) error {
	flag := os.O_RDONLY
	if spec.ReadWrite {
		flag = os.O_RDWR
		if spec.Create {
			flag |= os.O_CREATE
		}
	}

	var (
		f          *fsio.File
		displayName string
		created    bool
	)

	if spec.Path != "" {
		_, statErr := os.Stat(spec.Path)
		created = spec.ReadWrite && spec.Create && os.IsNotExist(statErr)

		var err error
		f, err = s.FS.Open(spec.Path, flag, 0o644)
		if err != nil {
			return fmt.Errorf("open %q: %w", spec.Path, err)
		}

		displayName = spec.Path
	} else {
		raw := os.NewFile(uintptr(spec.FD), fmt.Sprintf("fd%d", spec.FD))
		if raw == nil {
			return fmt.Errorf("open: fd %d is not valid", spec.FD)
		}

		f = fsio.Adopt(raw)
		displayName = fmt.Sprintf("<fd %d>", spec.FD)
	}

	inf := &Infile{
		Path:        spec.Path,
		DisplayName: displayName,
		ExternalFD:  spec.Path == "",
		ReadWrite:   spec.ReadWrite,
		Created:     created,
		File:        f,

		CurrentOffset:    offset.Unset(),
		SavedPriorOffset: offset.Unset(),
	}

	s.Files[fi] = inf
	if fi+1 > s.NumFiles {
		s.NumFiles = fi + 1
	}

	if !s.Settings.AssumeUnique {
		if err := s.checkUnique(fi); err != nil {
			return err
		}
	}

	if s.Settings.BackupDepth <= 0 {
		return nil
	}

	return s.openBackups(fi, inf)
}

func (s *Session) openBackups(fi int, inf *Infile) error {
	var paths [2]string

	if inf.Path != "" {
		p, names := backupNamesForPath(inf.Path)
		paths = p

		for i := range names {
			inf.Backups[i].DisplayName = names[i]
		}
	} else {
		p, names := backupNamesForFD(os.Getppid(), fiToFD(inf))
		paths = p

		for i := range names {
			inf.Backups[i].DisplayName = names[i]
		}
	}

	bf := &backup.Files{}

	for i, p := range paths {
		flag := os.O_RDWR | os.O_CREATE
		if !inf.ReadWrite {
			flag = os.O_RDONLY | os.O_CREATE
		}

		f, err := s.FS.Open(p, flag, 0o600)
		if err != nil {
			return fmt.Errorf("open backup %q: %w", p, err)
		}

		inf.Backups[i].Path = p
		inf.Backups[i].File = f
		bf.File[i] = f
	}

	s.Backups[fi] = bf

	return nil
}

// fiToFD recovers the raw descriptor number from an adopted external file,
// used only to name descriptor-bound backup files.
func fiToFD(inf *Infile) int {
	return int(inf.File.Fd())
}

// checkUnique rejects opening fi when it names the same underlying file as
// another already-open infile, unless -unique (AssumeUnique) was given.
func (s *Session) checkUnique(fi int) error {
	a := s.Files[fi]
	if a == nil {
		return nil
	}

	for i, b := range s.Files {
		if i == fi || b == nil {
			continue
		}

		if fsio.SameFile(a.File, b.File) {
			return fmt.Errorf("open %s: same file as $%d (use -unique to override)", a.DisplayName, i)
		}
	}

	return nil
}

// CloseAll closes every open infile and its backups, removing any
// zero-length file this session created (spec.md §5 "single teardown
// path").
func (s *Session) CloseAll() {
	for i, inf := range s.Files {
		if inf == nil {
			continue
		}

		removeEmpty := false
		if inf.Created {
			if size, err := inf.Size(); err == nil && size == 0 {
				removeEmpty = true
			}
		}

		_ = inf.File.Close()

		for _, bk := range inf.Backups {
			if bk.File != nil {
				_ = bk.File.Close()
			}
		}

		if removeEmpty {
			_ = os.Remove(inf.Path)
		}

		s.Files[i] = nil
	}
}
