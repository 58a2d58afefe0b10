// Package command implements the command language parser described in
// spec.md §4.3: it turns a line of input text into a typed ParsedCommand,
// applying inference rules for unspecified fields and legality checks
// against file/session state.
package command

import (
	"github.com/hexpeek/hexpeek/internal/zone"
)

// Kind identifies a parsed command.
type Kind int

const (
	KindQuit Kind = iota
	KindStop
	KindHelp
	KindFiles
	KindReset
	KindSettingsShow
	KindSettingsSave
	KindEndian
	KindHexMode
	KindBitsMode
	KindRLen
	KindSLen
	KindLine
	KindCols
	KindGroup
	KindMargin
	KindScalar
	KindPrefix
	KindAutoskip
	KindDiffskip
	KindText
	KindRuler
	KindPrint
	KindOffset
	KindSearch
	KindDiff
	KindDiffSearch
	KindReplace
	KindInsert
	KindKill
	KindOps
	KindUndo
	KindPageForward // implicit '+' on an empty interactive line
)

// ConvertedText is the realized form of a command's data argument: either a
// literal (octets+masks) buffer, or a source filezone to copy from.
type ConvertedText struct {
	Octets []byte
	Masks  []byte

	SourceZone   *zone.FileZone
	HasSourceZone bool
}

// IsNoop reports the "empty argument collapses to a no-op" invariant from
// spec.md §3.
func (c ConvertedText) IsNoop() bool {
	return len(c.Octets) == 0 && !c.HasSourceZone
}

// ParsedCommand is the fully-resolved, typed form of one input line.
type ParsedCommand struct {
	OrigCmd string // verbatim input, retained for the backup record
	Cmd     Kind
	Subtype string // e.g. "b"/"l" for endian, "u"/"l" for hex case

	TargetFZ zone.FileZone

	PreIncrement  bool
	PostIncrement bool

	PrintOffset  bool
	PrintVerbose bool

	DiffSearch bool

	ArgText      string
	ArgConverted ConvertedText

	// UndoDepth is populated for KindUndo.
	UndoDepth int

	// SettingValue carries the raw argument text for settings commands
	// (margin/scalar/group/etc.) before the caller applies type-specific
	// validation.
	SettingValue string
}
