package mutate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hexpeek/hexpeek/internal/backup"
	"github.com/hexpeek/hexpeek/internal/fsio"
	"github.com/hexpeek/hexpeek/internal/mutate"
	"github.com/hexpeek/hexpeek/internal/offset"
	"github.com/hexpeek/hexpeek/internal/session"
)

func seedInfile(t *testing.T, svc *fsio.Service, dir, name string, data []byte) *session.Infile {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}

	f, err := svc.Open(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}

	t.Cleanup(func() { _ = f.Close() })

	return &session.Infile{Path: path, File: f, ReadWrite: true, CurrentOffset: offset.Of(0)}
}

func newBackupFiles(t *testing.T, svc *fsio.Service, dir string) *backup.Files {
	t.Helper()

	mk := func(name string) *fsio.File {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}

		f, err := svc.Open(path, os.O_RDWR, 0o644)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}

		t.Cleanup(func() { _ = f.Close() })

		return f
	}

	return &backup.Files{File: [2]*fsio.File{mk("bk0"), mk("bk1")}}
}

func readAll(t *testing.T, svc *fsio.Service, f *fsio.File) []byte {
	t.Helper()

	info, err := svc.Stat(f)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	buf := make([]byte, info.Size())
	if _, err := svc.ReadFull(f, 0, buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	return buf
}

// S1 — basic replace and readback.
func TestReplaceBasic(t *testing.T) {
	dir := t.TempDir()
	svc := fsio.NewReal()
	inf := seedInfile(t, svc, dir, "a", []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
	bf := newBackupFiles(t, svc, dir)
	ledger := &backup.Ledger{FS: svc, Depth: 8}
	engine := &mutate.Engine{FS: svc}

	err := engine.Replace(mutate.Plan{
		Target:  inf,
		Backups: bf,
		Ledger:  ledger,
		Start:   0,
		Len:     3,
		Source:  mutate.Source{Literal: []byte{0xaa, 0xbb, 0xcc}},
		OrigCmd: "0,3 r aabbcc",
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got := readAll(t, svc, inf.File)
	want := []byte{0xaa, 0xbb, 0xcc, 0x03, 0x04, 0x05, 0x06, 0x07}

	if string(got) != string(want) {
		t.Fatalf("content = %x, want %x", got, want)
	}

	if inf.OpCounter != 1 {
		t.Fatalf("OpCounter = %d, want 1", inf.OpCounter)
	}

	active := bf.Active(0, ledger.Depth)

	op, err := ledger.ReadOp(active, 0)
	if err != nil {
		t.Fatalf("ReadOp: %v", err)
	}

	if op.SavedFrom != 0 || op.SavedLen != 3 || op.SizeAdj != 0 {
		t.Fatalf("backup op mismatch: %+v", op)
	}
}

// S2 — insert with self-source across the newly opened hole.
func TestInsertSelfSource(t *testing.T) {
	dir := t.TempDir()
	svc := fsio.NewReal()
	inf := seedInfile(t, svc, dir, "a", []byte{0x00, 0x11, 0x22, 0x33})
	bf := newBackupFiles(t, svc, dir)
	ledger := &backup.Ledger{FS: svc, Depth: 8}
	engine := &mutate.Engine{FS: svc}

	err := engine.Insert(mutate.Plan{
		Target:  inf,
		Backups: bf,
		Ledger:  ledger,
		Start:   2,
		Source:  mutate.Source{FromFile: inf, FromStart: 0, FromLen: 2},
		OrigCmd: "2 i @0,2",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got := readAll(t, svc, inf.File)
	want := []byte{0x00, 0x11, 0x00, 0x11, 0x22, 0x33}

	if string(got) != string(want) {
		t.Fatalf("content = %x, want %x", got, want)
	}
}

// S3 — kill clamp at EOF.
func TestKillClampsAtEOF(t *testing.T) {
	dir := t.TempDir()
	svc := fsio.NewReal()
	inf := seedInfile(t, svc, dir, "a", []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	bf := newBackupFiles(t, svc, dir)
	ledger := &backup.Ledger{FS: svc, Depth: 8}
	engine := &mutate.Engine{FS: svc}

	err := engine.Kill(mutate.Plan{
		Target:  inf,
		Backups: bf,
		Ledger:  ledger,
		Start:   8,
		Len:     10, // exceeds the remaining tail (2 bytes)
		OrigCmd: "8,10 k",
	})
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}

	info, err := svc.Stat(inf.File)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if info.Size() != 8 {
		t.Fatalf("size = %d, want 8", info.Size())
	}
}

// A completed kill followed by a one-step undo through the backup ledger
// leaves the file at its pre-kill content.
func TestKillThenRecoverRestoresOriginal(t *testing.T) {
	dir := t.TempDir()
	svc := fsio.NewReal()
	inf := seedInfile(t, svc, dir, "a", []byte{0, 1, 2, 3, 4, 5, 6, 7})
	bf := newBackupFiles(t, svc, dir)
	ledger := &backup.Ledger{FS: svc, Depth: 8}
	engine := &mutate.Engine{FS: svc}

	orig := readAll(t, svc, inf.File)

	if err := engine.Kill(mutate.Plan{
		Target: inf, Backups: bf, Ledger: ledger,
		Start: 2, Len: 3, OrigCmd: "2,3 k",
	}); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	actions, err := ledger.Undo(inf.File, bf, 1)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if actions.OpsUndone != 1 {
		t.Fatalf("OpsUndone = %d, want 1", actions.OpsUndone)
	}

	got := readAll(t, svc, inf.File)
	if string(got) != string(orig) {
		t.Fatalf("after undo = %x, want original %x", got, orig)
	}
}
