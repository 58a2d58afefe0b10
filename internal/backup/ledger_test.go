package backup_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hexpeek/hexpeek/internal/backup"
	"github.com/hexpeek/hexpeek/internal/fsio"
)

func openTemp(t *testing.T, svc *fsio.Service, dir, name string, data []byte) *fsio.File {
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

	return f
}

func newHarness(t *testing.T) (svc *fsio.Service, data *fsio.File, bfiles *backup.Files, ledger *backup.Ledger) {
	t.Helper()

	dir := t.TempDir()
	svc = fsio.NewReal()
	data = openTemp(t, svc, dir, "data", []byte{0x11, 0x22, 0x33, 0x44})

	bf := &backup.Files{File: [2]*fsio.File{
		openTemp(t, svc, dir, "bk0", nil),
		openTemp(t, svc, dir, "bk1", nil),
	}}

	ledger = &backup.Ledger{FS: svc, Depth: 8, Sync: false}

	return svc, data, bf, ledger
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

// S1-ish: one replace op records a correct backup slot.
func TestBeginOpRecordsBackupSlot(t *testing.T) {
	svc, data, bf, ledger := newHarness(t)

	active := bf.Active(0, ledger.Depth)

	rec := backup.Op{
		SizeOrig:  4,
		SizeAdj:   0,
		LastAt:    0,
		SavedFrom: 0,
		SavedLen:  3,
		OrigCmd:   "0,3 r aabbcc",
	}

	rec, err := ledger.BeginOp(data, active, 0, rec)
	if err != nil {
		t.Fatalf("BeginOp: %v", err)
	}

	if rec.Status != backup.StatusBackupDone {
		t.Fatalf("status = %v, want BackupDone", rec.Status)
	}

	got, err := ledger.ReadOp(active, 0)
	if err != nil {
		t.Fatalf("ReadOp: %v", err)
	}

	if got.SavedFrom != 0 || got.SavedLen != 3 || got.SizeAdj != 0 {
		t.Fatalf("op mismatch: %+v", got)
	}

	if got.SavedAt < backup.PayloadBase {
		t.Fatalf("saved_at %d below payload base %d", got.SavedAt, backup.PayloadBase)
	}

	payload := make([]byte, 3)
	if _, err := svc.ReadFull(active, got.SavedAt, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}

	if string(payload) != "\x11\x22\x33" {
		t.Fatalf("payload = %x, want 112233", payload)
	}
}

// §8 property 2: successive non-empty records in the same file never
// overlap their payload regions.
func TestSuccessivePayloadsDoNotOverlap(t *testing.T) {
	_, data, bf, ledger := newHarness(t)
	active := bf.Active(0, ledger.Depth)

	rec0, err := ledger.BeginOp(data, active, 0, backup.Op{SizeOrig: 4, SavedFrom: 0, SavedLen: 2})
	if err != nil {
		t.Fatalf("BeginOp 0: %v", err)
	}

	rec1, err := ledger.BeginOp(data, active, 1, backup.Op{SizeOrig: 4, SavedFrom: 2, SavedLen: 2})
	if err != nil {
		t.Fatalf("BeginOp 1: %v", err)
	}

	if rec1.SavedAt < rec0.SavedAt+rec0.SavedLen {
		t.Fatalf("op1.saved_at=%d overlaps op0 [%d,%d)", rec1.SavedAt, rec0.SavedAt, rec0.SavedAt+rec0.SavedLen)
	}
}

// §8 property 3: active_file(k) = (k div depth) mod 2, and the active
// file's header firstop = depth*(k div depth).
func TestRotationIdentity(t *testing.T) {
	depth := 8

	cases := []struct {
		k        uint64
		wantFile int
		wantRound uint64
	}{
		{0, 0, 0},
		{7, 0, 0},
		{8, 1, 8},
		{15, 1, 8},
		{16, 0, 16},
	}

	for _, c := range cases {
		if got := backup.ActiveFileIndex(c.k, depth); got != c.wantFile {
			t.Errorf("ActiveFileIndex(%d)=%d, want %d", c.k, got, c.wantFile)
		}

		if got := backup.RoundStart(c.k, depth); got != c.wantRound {
			t.Errorf("RoundStart(%d)=%d, want %d", c.k, got, c.wantRound)
		}
	}
}

// S5 — undo after two replace ops restores the original bytes.
func TestUndoTwoReplaces(t *testing.T) {
	svc, data, bf, ledger := newHarness(t)
	active := bf.Active(0, ledger.Depth)

	// op 0: replace byte 0 (0x11) with 0xff
	if _, err := ledger.BeginOp(data, active, 0, backup.Op{SizeOrig: 4, SavedFrom: 0, SavedLen: 1, LastAt: 0}); err != nil {
		t.Fatalf("BeginOp 0: %v", err)
	}

	if err := svc.WriteAt(data, 0, []byte{0xff}); err != nil {
		t.Fatalf("apply op0: %v", err)
	}

	// op 1: replace byte 1 (0x22) with 0xee
	if _, err := ledger.BeginOp(data, active, 1, backup.Op{SizeOrig: 4, SavedFrom: 1, SavedLen: 1, LastAt: 1}); err != nil {
		t.Fatalf("BeginOp 1: %v", err)
	}

	if err := svc.WriteAt(data, 1, []byte{0xee}); err != nil {
		t.Fatalf("apply op1: %v", err)
	}

	got := readAll(t, svc, data)
	if string(got) != "\xff\xee\x33\x44" {
		t.Fatalf("after ops = %x", got)
	}

	result, err := ledger.Undo(data, bf, 2)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}

	if result.OpsUndone != 2 {
		t.Fatalf("OpsUndone = %d, want 2", result.OpsUndone)
	}

	got = readAll(t, svc, data)
	if string(got) != "\x11\x22\x33\x44" {
		t.Fatalf("after undo = %x, want original", got)
	}

	for _, idx := range []int{0, 1} {
		op, err := ledger.ReadOp(active, idx)
		if err != nil {
			t.Fatalf("ReadOp(%d): %v", idx, err)
		}

		if op.Status != backup.StatusRecoveryDone {
			t.Fatalf("op[%d].Status = %v, want RecoveryDone", idx, op.Status)
		}
	}
}

// S6-ish — a fully written ADJ record whose move never applied is
// recovered back to the pre-insert file.
func TestRecoverInterruptedAdj(t *testing.T) {
	svc, data, bf, ledger := newHarness(t)
	active := bf.Active(0, ledger.Depth)

	orig := readAll(t, svc, data)

	// Simulate: insert is about to move the 2-byte tail at offset 2 right
	// by 2 bytes. Record the ADJ slot (tail = bytes[2:4]) then crash
	// before the move or the new payload write happens.
	if _, err := ledger.BeginAdj(data, active, backup.Op{SavedFrom: 2, SavedLen: 2}); err != nil {
		t.Fatalf("BeginAdj: %v", err)
	}

	actions, err := ledger.Recover(data, bf)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if len(actions) != 1 || actions[0].OpIndex != backup.AdjSlotIndex {
		t.Fatalf("actions = %+v, want one ADJ action", actions)
	}

	got := readAll(t, svc, data)
	if string(got) != string(orig) {
		t.Fatalf("after recovery = %x, want original %x", got, orig)
	}

	adjOp, err := ledger.ReadOp(active, backup.AdjSlotIndex)
	if err != nil {
		t.Fatalf("ReadOp ADJ: %v", err)
	}

	if !adjOp.IsEmpty() {
		t.Fatalf("ADJ slot not cleared: %+v", adjOp)
	}
}

// Recovery of a completed replace whose data-file mutation never
// happened (status stuck at BACKUP_START) is a no-op: the crash occurred
// before step 6 in spec.md §4.6, so the data file already holds its
// pre-op content.
func TestRecoverSkipsBackupStartOnlyOp(t *testing.T) {
	svc, data, bf, ledger := newHarness(t)
	active := bf.Active(0, ledger.Depth)

	orig := readAll(t, svc, data)

	if err := ledger.BeginRoundIfNeeded(active, 0); err != nil {
		t.Fatalf("BeginRoundIfNeeded: %v", err)
	}

	rec := backup.Op{SizeOrig: 4, SavedFrom: 0, SavedLen: 1, Status: backup.StatusBackupStart, SavedAt: backup.PayloadBase}
	if err := svc.WriteAt(active, backup.SlotOffset(0), backup.EncodeOp(rec)); err != nil {
		t.Fatalf("write op: %v", err)
	}

	actions, err := ledger.Recover(data, bf)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if len(actions) != 1 || actions[0].Reverted {
		t.Fatalf("actions = %+v, want one skipped (non-reverted) action", actions)
	}

	got := readAll(t, svc, data)
	if string(got) != string(orig) {
		t.Fatalf("data mutated despite BACKUP_START-only op: %x", got)
	}
}
