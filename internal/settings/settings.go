// Package settings defines the process-wide configuration record described
// in spec.md §3 and its JSONC-file persistence, mirroring the precedence
// rules of the teacher's ticket.LoadConfig: defaults, then a global rcfile,
// then CLI flags.
package settings

import "github.com/hexpeek/hexpeek/internal/codec"

// MaxBackupDepth is the largest configurable backup depth; 0 disables
// backups entirely.
const MaxBackupDepth = 32

// ScalarBase selects the numeric literal grammar for filezone fields.
type ScalarBase int

const (
	ScalarHex   ScalarBase = 16
	ScalarCStyle ScalarBase = 0
)

// Settings is the process-wide configuration record. It is owned by a
// Session value (see internal/session) rather than held as package-level
// mutable state, per the re-architecture guidance in spec.md §9.
type Settings struct {
	ScalarBase ScalarBase `json:"scalar_base"`

	DisplayMode codec.DisplayMode `json:"-"`
	HexUpper    bool              `json:"hex_upper"`

	PrintLenHex int `json:"print_len_hex"`
	PrintLenBits int `json:"print_len_bits"`
	SearchLenHex int `json:"search_len_hex"`
	SearchLenBits int `json:"search_len_bits"`

	LineWidthHex  int `json:"line_width_hex"`
	LineWidthBits int `json:"line_width_bits"`
	GroupWidth    int `json:"group_width"`

	Endian codec.Endianness `json:"-"`

	MarginWidth int `json:"margin_width"` // hex digit count; 0 disables; 16 == "full"

	Autoskip  bool `json:"autoskip"`
	Diffskip  bool `json:"diffskip"`
	TextColumn bool `json:"text_column"`
	Ruler     bool `json:"ruler"`
	Prefix    bool `json:"prefix"`

	LineTerminator string `json:"line_terminator"`

	GroupPreDelim   string `json:"group_pre_delim"`
	GroupInterDelim string `json:"group_inter_delim"`
	GroupPostDelim  string `json:"group_post_delim"`

	TextEncoding codec.TextEncoding `json:"-"`

	AllowInsertKill bool `json:"allow_insert_kill"`
	Infer           bool `json:"infer"`
	TolerateEOF     bool `json:"tolerate_eof"`
	AssumeUnique    bool `json:"assume_unique_infiles"`
	AssumeTTYs      bool `json:"assume_ttys"`

	RecoverOnStart bool `json:"-"`
	AutoRecover    bool `json:"-"`

	BackupDepth int  `json:"backup_depth"` // 0..32
	BackupSync  bool `json:"backup_sync"`

	Permissive bool `json:"permissive"`
	Pedantic   bool `json:"pedantic"`
	Strict     bool `json:"-"` // -strict: fail-exit on user-level errors; default on when non-interactive

	EditableConsole bool `json:"editable_console"`

	SingleCommand string `json:"-"`
	PackMode      bool   `json:"-"`

	Editor string `json:"editor,omitempty"`

	TracePath string `json:"-"`
}

// Default returns the baseline Settings before any rcfile or CLI flags are
// applied. Line width defaults to the largest power-of-two octet count that
// fits an 80-column rendered line, matching spec.md §3.
func Default() Settings {
	s := Settings{
		ScalarBase:      ScalarHex,
		DisplayMode:     codec.ModeHex,
		HexUpper:        false,
		PrintLenHex:     256,
		PrintLenBits:    32,
		SearchLenHex:    0, // resolved to OFFSET_MAX by the command parser
		SearchLenBits:   0,
		GroupWidth:      1,
		Endian:          codec.BigEndian,
		MarginWidth:     16, // "full"
		Autoskip:        true,
		Diffskip:        true,
		TextColumn:      true,
		Ruler:           true,
		Prefix:          false,
		LineTerminator:  "\n",
		GroupPreDelim:   "",
		GroupInterDelim: " ",
		GroupPostDelim:  "",
		TextEncoding:    codec.TextASCII,
		AllowInsertKill: true,
		Infer:           true,
		TolerateEOF:     false,
		AssumeUnique:    false,
		AssumeTTYs:      false,
		BackupDepth:     8,
		BackupSync:      false,
		Permissive:      false,
		Pedantic:        false,
		EditableConsole: true,
	}

	s.LineWidthHex = defaultLineWidth(80, 2, s.GroupWidth)
	s.LineWidthBits = defaultLineWidth(80, 8, s.GroupWidth)

	return s
}

// RecomputeLineWidths re-derives the hex/bits line widths for an actual
// terminal width, overriding the 80-column assumption Default() makes.
// It overwrites both widths unconditionally, including widths loaded from
// the rcfile; cli.Run skips the call when -c or -p was given.
func (s *Settings) RecomputeLineWidths(columns int) {
	if columns <= 0 {
		return
	}

	s.LineWidthHex = defaultLineWidth(columns, 2, s.GroupWidth)
	s.LineWidthBits = defaultLineWidth(columns, 8, s.GroupWidth)
}

// defaultLineWidth returns the largest power-of-two octet count whose
// rendered line (charsPerOctet wide, plus one separator per octet) fits
// within columns.
func defaultLineWidth(columns, charsPerOctet, groupWidth int) int {
	width := 1
	for {
		next := width * 2

		rendered := next*charsPerOctet + next // + 1 separator char per octet, worst case
		if rendered > columns {
			break
		}

		width = next
	}

	if groupWidth > 0 && width < groupWidth {
		width = groupWidth
	}

	return width
}
