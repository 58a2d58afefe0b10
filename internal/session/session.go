package session

import (
	"fmt"
	"io"
	"reflect"

	"github.com/hexpeek/hexpeek/internal/backup"
	"github.com/hexpeek/hexpeek/internal/codec"
	"github.com/hexpeek/hexpeek/internal/command"
	"github.com/hexpeek/hexpeek/internal/fsio"
	"github.com/hexpeek/hexpeek/internal/mutate"
	"github.com/hexpeek/hexpeek/internal/offset"
	"github.com/hexpeek/hexpeek/internal/printer"
	"github.com/hexpeek/hexpeek/internal/settings"
	"github.com/hexpeek/hexpeek/internal/zone"
)

// Session is the top-level value tying Settings, the open Infiles, the
// backup ledger, the mutation engine, and the printer together, replacing
// the C implementation's process-global state (spec.md §9).
type Session struct {
	Settings settings.Settings

	Files    [2]*Infile
	NumFiles int

	FS      *fsio.Service
	Backups [2]*backup.Files
	Ledger  *backup.Ledger
	Mutate  *mutate.Engine
	Printer *printer.Printer

	Out    io.Writer
	ErrOut io.Writer
	Trace  io.Writer

	// Env backs the "settings save" command's rcfile path resolution
	// (os.Environ() as captured by cmd/hexpeek's main, SPEC_FULL.md
	// "settings/files/ops introspection").
	Env map[string]string

	Quit          bool
	Stop          bool
	LastDiffFound bool
}

// New constructs a Session with its collaborators wired per the spec's
// design note: a File Service shared by both infiles, a Ledger whose
// depth/sync mirror Settings, a Mutation Engine bound to the File
// Service, and a Printer bound to the session's own Settings so toggling
// a display option takes effect immediately.
func New(s settings.Settings, out, errOut io.Writer) *Session {
	sess := &Session{
		Settings: s,
		FS:       fsio.NewReal(),
		Out:      out,
		ErrOut:   errOut,
	}

	sess.Ledger = &backup.Ledger{FS: sess.FS, Depth: s.BackupDepth, Sync: s.BackupSync}
	sess.Mutate = &mutate.Engine{FS: sess.FS, Progress: sess.progress}
	sess.Printer = &printer.Printer{Settings: &sess.Settings}

	return sess
}

func (s *Session) progress(verb string, done, total int64) {
	if s.ErrOut == nil {
		return
	}

	fmt.Fprintf(s.ErrOut, "\r%s: %d/%d", verb, done, total)
}

// --- zone.Resolver / command.Context wiring ---

func (s *Session) NumOpenFiles() int { return s.NumFiles }
func (s *Session) Infer() bool       { return s.Settings.Infer }
func (s *Session) ScalarBase() int   { return int(s.Settings.ScalarBase) }

func (s *Session) infile(fi int) *Infile {
	if fi < 0 || fi >= len(s.Files) {
		return nil
	}

	return s.Files[fi]
}

func (s *Session) CurrentOffset(fi int) (int64, bool) {
	inf := s.infile(fi)
	if inf == nil {
		return 0, false
	}

	return inf.CurrentOffset.Value()
}

func (s *Session) FileSize(fi int) (int64, error) {
	inf := s.infile(fi)
	if inf == nil {
		return 0, fmt.Errorf("file $%d is not open", fi)
	}

	return inf.Size()
}

func (s *Session) Seekable(fi int) bool {
	inf := s.infile(fi)
	if inf == nil {
		return false
	}

	return inf.Seekable()
}

func (s *Session) readWrite(fi int) bool {
	inf := s.infile(fi)
	return inf != nil && inf.ReadWrite
}

func (s *Session) context(interactive bool) command.Context {
	return command.Context{
		Settings:    s.Settings,
		Resolver:    s,
		ReadWrite:   s.readWrite,
		Interactive: interactive,
	}
}

// Execute parses and runs one line of input.
func (s *Session) Execute(line string, interactive bool) error {
	if s.Trace != nil {
		fmt.Fprintf(s.Trace, "> %s\n", line)
	}

	pc, err := command.Parse(line, s.context(interactive))
	if err != nil {
		if s.Trace != nil {
			fmt.Fprintf(s.Trace, "! %v\n", err)
		}

		return err
	}

	err = s.dispatch(pc)
	if s.Trace != nil && err != nil {
		fmt.Fprintf(s.Trace, "! %v\n", err)
	}

	return err
}

// readZone reads a resolved filezone's bytes into memory, clamping to the
// file's actual size when the zone tolerates EOF (spec.md §4.2's `max`).
func (s *Session) readZone(fz zone.FileZone) ([]byte, int64, error) {
	inf := s.infile(fz.FileIndex)
	if inf == nil {
		return nil, 0, fmt.Errorf("file $%d is not open", fz.FileIndex)
	}

	length := fz.Len

	if fz.TolerateEOF || length == offset.Max {
		size, err := inf.Size()
		if err != nil {
			return nil, 0, err
		}

		if remaining := size - fz.Start; remaining < length {
			length = remaining
		}
	}

	if length < 0 {
		length = 0
	}

	buf := make([]byte, length)

	n, err := s.FS.ReadFull(inf.File, fz.Start, buf)
	if err != nil {
		return nil, 0, err
	}

	if int64(n) < length && !fz.TolerateEOF && !s.Settings.TolerateEOF {
		return nil, 0, fmt.Errorf("%w: short read at $%d@%#x", io.ErrUnexpectedEOF, fz.FileIndex, fz.Start)
	}

	return buf[:n], int64(n), nil
}

func (s *Session) dispatch(pc *command.ParsedCommand) error {
	switch pc.Cmd {
	case command.KindQuit:
		s.Quit = true
		return nil
	case command.KindStop:
		s.Stop = true
		return nil
	case command.KindHelp:
		return s.cmdHelp()
	case command.KindFiles:
		return s.cmdFiles()
	case command.KindSettingsShow:
		return s.cmdSettings()
	case command.KindSettingsSave:
		return s.cmdSettingsSave()
	case command.KindOps:
		return s.cmdOps()
	case command.KindReset:
		return s.cmdReset(pc)
	case command.KindUndo:
		return s.cmdUndo(pc)
	case command.KindPageForward:
		return s.cmdPageForward()
	case command.KindEndian:
		if pc.Subtype == "b" {
			s.Settings.Endian = codec.BigEndian
		} else {
			s.Settings.Endian = codec.LittleEndian
		}

		return nil
	case command.KindHexMode:
		s.Settings.DisplayMode = codec.ModeHex
		s.Settings.HexUpper = pc.Subtype == "u"

		return nil
	case command.KindBitsMode:
		s.Settings.DisplayMode = codec.ModeBits
		return nil
	case command.KindRLen, command.KindSLen, command.KindLine, command.KindCols, command.KindGroup,
		command.KindMargin, command.KindScalar, command.KindPrefix, command.KindAutoskip,
		command.KindDiffskip, command.KindText, command.KindRuler:
		return s.cmdSetting(pc)
	case command.KindPrint:
		return s.cmdPrint(pc)
	case command.KindOffset:
		return s.cmdOffset(pc)
	case command.KindSearch:
		return s.cmdSearch(pc)
	case command.KindDiff:
		return s.cmdDiff(pc)
	case command.KindDiffSearch:
		return s.cmdDiffSearch(pc)
	case command.KindReplace:
		return s.cmdWrite(pc, s.Mutate.Replace)
	case command.KindInsert:
		return s.cmdWrite(pc, s.Mutate.Insert)
	case command.KindKill:
		return s.cmdWrite(pc, s.Mutate.Kill)
	default:
		return fmt.Errorf("session: unhandled command kind %v", pc.Cmd)
	}
}

func (s *Session) cmdHelp() error {
	_, err := io.WriteString(s.Out, helpText)
	return err
}

func (s *Session) cmdFiles() error {
	for i, inf := range s.Files {
		if inf == nil {
			continue
		}

		size, _ := inf.Size()
		mode := "ro"

		if inf.ReadWrite {
			mode = "rw"
		}

		_, err := fmt.Fprintf(s.Out, "$%d  %s  %s  size=%#x  offset=%s  ops=%d\n",
			i, inf.DisplayName, mode, size, inf.CurrentOffset.String(), inf.OpCounter)
		if err != nil {
			return err
		}
	}

	return nil
}

// cmdSettings dumps every Settings field, one name/value pair per line
// (SPEC_FULL.md "settings/files/ops introspection").
func (s *Session) cmdSettings() error {
	v := reflect.ValueOf(s.Settings)
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		if _, err := fmt.Fprintf(s.Out, "%s=%v\n", t.Field(i).Name, v.Field(i).Interface()); err != nil {
			return err
		}
	}

	return nil
}

// cmdSettingsSave persists the live Settings to the rcfile via an atomic
// rename-into-place write.
func (s *Session) cmdSettingsSave() error {
	path, err := settings.SaveRCFile(s.Settings, s.Env)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.Out, "settings saved to %s\n", path)

	return err
}

func (s *Session) cmdOps() error {
	for i, inf := range s.Files {
		bf := s.Backups[i]
		if inf == nil || bf == nil {
			continue
		}

		actions, err := s.Ledger.ListOps(bf)
		if err != nil {
			return err
		}

		for _, a := range actions {
			_, err := fmt.Fprintf(s.Out, "$%d file=%d slot=%d status=%v cmd=%q\n",
				i, a.FileIndex, a.OpIndex, a.Op.Status, a.Op.OrigCmd)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// cmdReset clears the current offset and op counter of the named infile
// (or both, if none named) and recovers any pending backup records. The
// file itself is not reopened.
func (s *Session) cmdReset(pc *command.ParsedCommand) error {
	indices := []int{0, 1}
	if pc.TargetFZ.FileIndex >= 0 {
		indices = []int{pc.TargetFZ.FileIndex}
	}

	for _, i := range indices {
		inf := s.infile(i)
		bf := s.Backups[i]

		if inf == nil {
			continue
		}

		inf.CurrentOffset = offset.Unset()
		inf.OpCounter = 0

		if bf == nil {
			continue
		}

		if _, err := s.Ledger.Recover(inf.File, bf); err != nil {
			return fmt.Errorf("reset: recover $%d: %w", i, err)
		}
	}

	return nil
}

func (s *Session) cmdUndo(pc *command.ParsedCommand) error {
	fi := 0
	if s.NumFiles > 1 {
		return fmt.Errorf("%w: undo requires an explicit target when two files are open", command.ErrIllegalCommand)
	}

	inf := s.infile(fi)
	bf := s.Backups[fi]

	if inf == nil || bf == nil {
		return fmt.Errorf("undo: file $%d has no backups", fi)
	}

	result, err := s.Ledger.Undo(inf.File, bf, pc.UndoDepth)
	if err != nil {
		return err
	}

	if result.OpsUndone == 0 {
		return nil
	}

	if inf.OpCounter >= uint64(result.OpsUndone) {
		inf.OpCounter -= uint64(result.OpsUndone)
	}

	if result.HasLastAt {
		inf.CurrentOffset = offset.Of(result.LastAt)
	}

	_, err = fmt.Fprintf(s.Out, "undo: reverted %d op(s)\n", result.OpsUndone)

	return err
}

// cmdPageForward implements the empty-line "+" shortcut: print the
// default-length zone starting at the current offset, then advance it by
// the bytes actually shown.
func (s *Session) cmdPageForward() error {
	fi := 0

	fz := zone.FileZone{FileIndex: fi, TolerateEOF: true}

	cur, ok := s.CurrentOffset(fi)
	if ok {
		fz.Start = cur
	}

	n := s.Settings.PrintLenHex
	if s.Settings.DisplayMode == codec.ModeBits {
		n = s.Settings.PrintLenBits
	}

	fz.Len = int64(n)
	fz.LenSpecified = true

	return s.printZone(fz, false, true)
}

func (s *Session) cmdPrint(pc *command.ParsedCommand) error {
	return s.printZone(pc.TargetFZ, pc.PrintVerbose, true)
}

func (s *Session) printZone(fz zone.FileZone, verbose, advance bool) error {
	data, n, err := s.readZone(fz)
	if err != nil {
		return err
	}

	if err := s.Printer.Dump(s.Out, data, fz.Start, verbose); err != nil {
		return err
	}

	if advance {
		if inf := s.infile(fz.FileIndex); inf != nil {
			inf.CurrentOffset = offset.Of(fz.Start + n)
		}
	}

	return nil
}

func (s *Session) cmdOffset(pc *command.ParsedCommand) error {
	inf := s.infile(pc.TargetFZ.FileIndex)
	if inf == nil {
		return fmt.Errorf("file $%d is not open", pc.TargetFZ.FileIndex)
	}

	_, err := fmt.Fprintln(s.Out, inf.CurrentOffset.String())

	return err
}

// cmdSearch scans the target zone for the converted pattern, honoring the
// wildcard mask per spec.md §8 property 8.
func (s *Session) cmdSearch(pc *command.ParsedCommand) error {
	fz := pc.TargetFZ

	data, _, err := s.readZone(fz)
	if err != nil {
		return err
	}

	pat := pc.ArgConverted.Octets
	mask := pc.ArgConverted.Masks

	if len(pat) == 0 {
		return fmt.Errorf("%w: empty search pattern", command.ErrMalformedCommand)
	}

	for start := 0; start+len(pat) <= len(data); start++ {
		if matchesAt(data[start:start+len(pat)], pat, mask) {
			_, err := fmt.Fprintf(s.Out, "match at offset %#x\n", fz.Start+int64(start))
			return err
		}
	}

	_, err = fmt.Fprintln(s.Out, "no match")

	return err
}

func matchesAt(window, pat, mask []byte) bool {
	for i := range pat {
		if window[i]&mask[i] != pat[i]&mask[i] {
			return false
		}
	}

	return true
}

func (s *Session) cmdDiff(pc *command.ParsedCommand) error {
	a, _, err := s.readZone(pc.TargetFZ)
	if err != nil {
		return err
	}

	b, _, err := s.readZone(*pc.ArgConverted.SourceZone)
	if err != nil {
		return err
	}

	if len(b) < len(a) {
		a = a[:len(b)]
	} else if len(a) < len(b) {
		b = b[:len(a)]
	}

	differs, err := s.Printer.Diff(s.Out, a, b, pc.TargetFZ.Start)
	if err != nil {
		return err
	}

	s.LastDiffFound = differs

	return nil
}

// cmdDiffSearch reports the first offset at which the two zones differ
// (spec.md §8 scenario S4).
func (s *Session) cmdDiffSearch(pc *command.ParsedCommand) error {
	a, _, err := s.readZone(pc.TargetFZ)
	if err != nil {
		return err
	}

	b, _, err := s.readZone(*pc.ArgConverted.SourceZone)
	if err != nil {
		return err
	}

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			s.LastDiffFound = true
			_, err := fmt.Fprintf(s.Out, "match at offset %#x\n", pc.TargetFZ.Start+int64(i))

			return err
		}
	}

	s.LastDiffFound = false
	_, err = fmt.Fprintln(s.Out, "no difference")

	return err
}

type writeOp func(mutate.Plan) error

// cmdWrite executes a replace/insert/kill through the Mutation Engine,
// rewinding the target file's current offset if the operation fails
// (spec.md §5's "command execution is atomic at the level of the
// command").
func (s *Session) cmdWrite(pc *command.ParsedCommand, op writeOp) error {
	fz := pc.TargetFZ

	inf := s.infile(fz.FileIndex)
	if inf == nil {
		return fmt.Errorf("file $%d is not open", fz.FileIndex)
	}

	bf := s.Backups[fz.FileIndex]
	if bf == nil {
		return fmt.Errorf("file $%d has no backup files configured", fz.FileIndex)
	}

	inf.RememberOffsetForRollback()

	src, err := s.resolveSource(pc)
	if err != nil {
		inf.RollbackOffset()
		return err
	}

	plan := mutate.Plan{
		Target:  inf,
		Backups: bf,
		Ledger:  s.Ledger,
		Start:   fz.Start,
		Len:     fz.Len,
		Source:  src,
		OrigCmd: pc.OrigCmd,
	}

	if err := op(plan); err != nil {
		inf.RollbackOffset()
		return err
	}

	inf.CurrentOffset = offset.Of(fz.Start)

	if pc.PostIncrement {
		inf.CurrentOffset = offset.Of(fz.Start + src.Len())
	}

	return nil
}

func (s *Session) resolveSource(pc *command.ParsedCommand) (mutate.Source, error) {
	ct := pc.ArgConverted

	if !ct.HasSourceZone {
		return mutate.Source{Literal: ct.Octets}, nil
	}

	srcInf := s.infile(ct.SourceZone.FileIndex)
	if srcInf == nil {
		return mutate.Source{}, fmt.Errorf("file $%d is not open", ct.SourceZone.FileIndex)
	}

	return mutate.Source{
		FromFile:  srcInf,
		FromStart: ct.SourceZone.Start,
		FromLen:   ct.SourceZone.Len,
	}, nil
}

func (s *Session) cmdSetting(pc *command.ParsedCommand) error {
	return applySetting(&s.Settings, pc)
}

const helpText = `Commands: quit/q stop help/h files reset settings[ save] endian{b,l} hex[l|u] bits
  rlen slen line cols group margin scalar [+]prefix [+]autoskip [+]diffskip
  [+]text[=ascii|=ebcdic] [+]ruler print/p[v] v offset search// replace/r
  insert/i kill/k delete ops undo/u [depth]
A filezone with no subcommand is an implicit print; an empty line pages forward.
`
