package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hexpeek/hexpeek/internal/codec"
	"github.com/hexpeek/hexpeek/internal/offset"
	"github.com/hexpeek/hexpeek/internal/zone"
)

// ErrMalformedCommand reports text that does not match any recognized
// command form.
var ErrMalformedCommand = errors.New("malformed command")

// ErrIllegalCommand reports a syntactically valid command that violates a
// legality rule (read-only file, non-seekable descriptor, insert/kill
// disabled, etc).
var ErrIllegalCommand = errors.New("illegal command")

// ErrAmbiguousDiff reports a bare '~'/'/~' diff form used interactively
// outside permissive mode (spec.md §4.3: diff's short form is reserved for
// batch replay unless -permissive is set, since '~' collides with nothing
// else in the grammar but is easy to fat-finger at a live prompt).
var ErrAmbiguousDiff = errors.New("ambiguous diff command")

type literalKind struct {
	kind     Kind
	long     string
	short    string
	arity    int // 0: none, 1: required numeric/text arg, 2: optional arg
}

var bareCommands = []literalKind{
	{KindQuit, "quit", "q", 0},
	{KindStop, "stop", "", 0},
	{KindHelp, "help", "h", 0},
	{KindFiles, "files", "", 0},
	{KindOps, "ops", "", 0},
}

// Parse turns one line of input text into a ParsedCommand.
func Parse(line string, ctx Context) (*ParsedCommand, error) {
	trimmed := strings.TrimSpace(line)

	if trimmed == "" {
		if ctx.Interactive {
			return &ParsedCommand{OrigCmd: line, Cmd: KindPageForward}, nil
		}

		return nil, fmt.Errorf("%w: empty command", ErrMalformedCommand)
	}

	// '+' alone pages forward from the current offset.
	if trimmed == "+" {
		return &ParsedCommand{OrigCmd: line, Cmd: KindPageForward}, nil
	}

	if pc, ok, err := parseBare(trimmed, ctx); ok || err != nil {
		if err != nil {
			return nil, err
		}

		pc.OrigCmd = line

		return pc, nil
	}

	if pc, ok, err := parseDiffForm(trimmed, ctx); ok || err != nil {
		if err != nil {
			return nil, err
		}

		pc.OrigCmd = line

		return pc, nil
	}

	pc, err := parseZoneLed(trimmed, ctx)
	if err != nil {
		return nil, err
	}

	pc.OrigCmd = line

	return pc, nil
}

// parseBare recognizes commands that never carry a leading filezone.
func parseBare(text string, ctx Context) (*ParsedCommand, bool, error) {
	word, rest := splitWord(text)

	for _, lk := range bareCommands {
		if word == lk.long || (lk.short != "" && word == lk.short) {
			if strings.TrimSpace(rest) != "" {
				return nil, true, fmt.Errorf("%w: %q takes no argument", ErrMalformedCommand, word)
			}

			return &ParsedCommand{Cmd: lk.kind}, true, nil
		}
	}

	switch word {
	case "settings":
		return parseSettings(rest)
	case "reset":
		return parseReset(rest, ctx)
	case "undo", "u":
		return parseUndo(rest)
	case "endianb", "endianl":
		return &ParsedCommand{Cmd: KindEndian, Subtype: strings.TrimPrefix(word, "endian")}, true, nil
	case "hex", "hexl", "hexu":
		sub := "l"
		if word == "hexu" {
			sub = "u"
		}

		return &ParsedCommand{Cmd: KindHexMode, Subtype: sub}, true, nil
	case "bits":
		return &ParsedCommand{Cmd: KindBitsMode}, true, nil
	case "rlen":
		return numericSetting(KindRLen, rest)
	case "slen":
		return numericSetting(KindSLen, rest)
	case "line":
		return numericSetting(KindLine, rest)
	case "cols":
		return numericSetting(KindCols, rest)
	case "group":
		return numericSetting(KindGroup, rest)
	case "margin":
		return textSetting(KindMargin, rest)
	case "scalar":
		return textSetting(KindScalar, rest)
	case "prefix", "+prefix":
		return toggleSetting(KindPrefix, word, rest)
	case "autoskip", "+autoskip":
		return toggleSetting(KindAutoskip, word, rest)
	case "diffskip", "+diffskip":
		return toggleSetting(KindDiffskip, word, rest)
	case "ruler", "+ruler":
		return toggleSetting(KindRuler, word, rest)
	case "text", "+text":
		pc, _, err := toggleSetting(KindText, word, rest)
		return pc, true, err
	}

	if strings.HasPrefix(word, "text=") {
		return &ParsedCommand{Cmd: KindText, SettingValue: strings.TrimPrefix(word, "text=")}, true, nil
	}

	return nil, false, nil
}

func numericSetting(kind Kind, rest string) (*ParsedCommand, bool, error) {
	val := strings.TrimSpace(rest)
	if val == "" {
		return nil, true, fmt.Errorf("%w: expected a number", ErrMalformedCommand)
	}

	if _, err := strconv.ParseInt(val, 0, 64); err != nil {
		return nil, true, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}

	return &ParsedCommand{Cmd: kind, SettingValue: val}, true, nil
}

func textSetting(kind Kind, rest string) (*ParsedCommand, bool, error) {
	val := strings.TrimSpace(rest)
	if val == "" {
		return nil, true, fmt.Errorf("%w: expected an argument", ErrMalformedCommand)
	}

	return &ParsedCommand{Cmd: kind, SettingValue: val}, true, nil
}

func toggleSetting(kind Kind, word, rest string) (*ParsedCommand, bool, error) {
	if strings.TrimSpace(rest) != "" {
		return nil, true, fmt.Errorf("%w: %q takes no argument", ErrMalformedCommand, word)
	}

	value := "on"
	if !strings.HasPrefix(word, "+") {
		value = "off"
	}

	return &ParsedCommand{Cmd: kind, SettingValue: value}, true, nil
}

// parseSettings handles the bare "settings" introspection dump and its
// "settings save" variant, which persists the live Settings back to the
// rcfile (SPEC_FULL.md "settings/files/ops introspection").
func parseSettings(rest string) (*ParsedCommand, bool, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParsedCommand{Cmd: KindSettingsShow}, true, nil
	}

	if rest == "save" {
		return &ParsedCommand{Cmd: KindSettingsSave}, true, nil
	}

	return nil, true, fmt.Errorf("%w: %q takes no argument or \"save\"", ErrMalformedCommand, "settings")
}

func parseReset(rest string, ctx Context) (*ParsedCommand, bool, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParsedCommand{Cmd: KindReset, TargetFZ: zone.FileZone{FileIndex: -1}}, true, nil
	}

	fz, err := zone.Parse(rest, ctx.Resolver)
	if err != nil {
		return nil, true, fmt.Errorf("reset: %w", err)
	}

	return &ParsedCommand{Cmd: KindReset, TargetFZ: fz}, true, nil
}

func parseUndo(rest string) (*ParsedCommand, bool, error) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParsedCommand{Cmd: KindUndo, UndoDepth: 1}, true, nil
	}

	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return nil, true, fmt.Errorf("%w: undo depth must be a positive integer", ErrMalformedCommand)
	}

	return &ParsedCommand{Cmd: KindUndo, UndoDepth: n}, true, nil
}

// parseDiffForm recognizes the two diff syntaxes from spec.md §4.3:
// "~fz" (diff current target against fz) and "/~fz1~fz2" (diff-search
// between two explicit zones).
func parseDiffForm(text string, ctx Context) (*ParsedCommand, bool, error) {
	switch {
	case strings.HasPrefix(text, "/~"):
		if !ctx.Interactive || ctx.Settings.Permissive {
			body := text[2:]

			parts := strings.SplitN(body, "~", 2)
			if len(parts) != 2 {
				return nil, true, fmt.Errorf("%w: diff-search needs two ~-separated filezones", ErrMalformedCommand)
			}

			fz1, err := zone.Parse(parts[0], ctx.Resolver)
			if err != nil {
				return nil, true, fmt.Errorf("diff-search: %w", err)
			}

			fz2, err := zone.Parse(parts[1], ctx.Resolver)
			if err != nil {
				return nil, true, fmt.Errorf("diff-search: %w", err)
			}

			return &ParsedCommand{
				Cmd:        KindDiffSearch,
				DiffSearch: true,
				TargetFZ:   fz1,
				ArgConverted: ConvertedText{
					SourceZone:    &fz2,
					HasSourceZone: true,
				},
			}, true, nil
		}

		return nil, true, fmt.Errorf("%w: diff-search requires -permissive when typed at the prompt", ErrAmbiguousDiff)
	case strings.Contains(text, "~") && !strings.Contains(text, "/"):
		if ctx.Interactive && !ctx.Settings.Permissive {
			return nil, true, fmt.Errorf("%w: diff requires -permissive when typed at the prompt", ErrAmbiguousDiff)
		}

		parts := strings.SplitN(text, "~", 2)

		var fz1 zone.FileZone

		var err error

		if strings.TrimSpace(parts[0]) == "" {
			fz1, err = zone.Parse("", ctx.Resolver)
		} else {
			fz1, err = zone.Parse(parts[0], ctx.Resolver)
		}

		if err != nil {
			return nil, true, fmt.Errorf("diff: %w", err)
		}

		fz2, err := zone.Parse(parts[1], ctx.Resolver)
		if err != nil {
			return nil, true, fmt.Errorf("diff: %w", err)
		}

		return &ParsedCommand{
			Cmd:      KindDiff,
			TargetFZ: fz1,
			ArgConverted: ConvertedText{
				SourceZone:    &fz2,
				HasSourceZone: true,
			},
		}, true, nil
	}

	return nil, false, nil
}

// parseZoneLed handles every command that may be preceded by a filezone:
// an optional leading '+' (pre-increment), the zone text itself (possibly
// empty), an optional trailing '+' (post-increment), and then an optional
// subcommand keyword with its argument. No subcommand means implicit print.
func parseZoneLed(text string, ctx Context) (*ParsedCommand, error) {
	pre := false
	rest := text

	if strings.HasPrefix(rest, "+") {
		pre = true
		rest = rest[1:]
	}

	zoneText, subText := splitZoneFromSubcommand(rest)

	post := false
	if strings.HasSuffix(zoneText, "+") {
		post = true
		zoneText = zoneText[:len(zoneText)-1]
	}

	fz, err := zone.Parse(zoneText, ctx.Resolver)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}

	if pre && !ctx.Resolver.Seekable(fz.FileIndex) {
		return nil, fmt.Errorf("%w: pre-increment requires a seekable file", ErrIllegalCommand)
	}

	pc := &ParsedCommand{
		TargetFZ:      fz,
		PreIncrement:  pre,
		PostIncrement: post,
	}

	subWord, arg := splitWord(strings.TrimSpace(subText))

	switch subWord {
	case "":
		pc.Cmd = KindPrint
	case "p":
		pc.Cmd = KindPrint
	case "pv":
		pc.Cmd = KindPrint
		pc.PrintVerbose = true
	case "v":
		pc.Cmd = KindPrint
		pc.PrintVerbose = true
	case "offset":
		pc.Cmd = KindOffset
	case "search", "/":
		pc.Cmd = KindSearch
		pc.ArgText = arg

		if err := convertLiteralArg(pc, ctx, true); err != nil {
			return nil, err
		}
	case "r", "replace":
		if !legalForWrite(ctx, fz.FileIndex) {
			return nil, fmt.Errorf("%w: replace needs a read-write file", ErrIllegalCommand)
		}

		pc.Cmd = KindReplace
		pc.ArgText = arg

		if err := convertDataArg(pc, ctx, fz); err != nil {
			return nil, err
		}
	case "i", "insert":
		if !legalForWrite(ctx, fz.FileIndex) {
			return nil, fmt.Errorf("%w: insert needs a read-write file", ErrIllegalCommand)
		}

		if !ctx.Settings.AllowInsertKill {
			return nil, fmt.Errorf("%w: insert is disabled (allow_insert_kill=false)", ErrIllegalCommand)
		}

		pc.Cmd = KindInsert
		pc.ArgText = arg

		if err := convertDataArg(pc, ctx, fz); err != nil {
			return nil, err
		}
	case "k", "kill", "delete":
		if !legalForWrite(ctx, fz.FileIndex) {
			return nil, fmt.Errorf("%w: kill needs a read-write file", ErrIllegalCommand)
		}

		if !ctx.Settings.AllowInsertKill {
			return nil, fmt.Errorf("%w: kill is disabled (allow_insert_kill=false)", ErrIllegalCommand)
		}

		pc.Cmd = KindKill
	default:
		return nil, fmt.Errorf("%w: unrecognized subcommand %q", ErrMalformedCommand, subWord)
	}

	applyDefaultLengths(pc, ctx)

	return pc, nil
}

func legalForWrite(ctx Context, fi int) bool {
	if ctx.ReadWrite == nil {
		return true
	}

	return ctx.ReadWrite(fi)
}

// splitZoneFromSubcommand finds the boundary between a leading filezone
// and a trailing subcommand word. The zone grammar's character set is
// '$', '@', ',', ':', '-', '+', hex digits, 'x'/'X', and the letters of
// the words "len"/"max"; the
// first whitespace run, or the first character outside that set, begins
// the subcommand.
func splitZoneFromSubcommand(s string) (zonePart, subPart string) {
	i := 0
	for i < len(s) {
		c := s[i]

		switch {
		case c == ' ' || c == '\t':
			return s[:i], s[i+1:]
		case strings.ContainsRune("$@,:-+0123456789abcdefABCDEFxXlenmax", rune(c)):
			i++
		default:
			return s[:i], s[i:]
		}
	}

	return s, ""
}

func splitWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")

	i := 0
	for i < len(s) && s[i] != ' ' && s[i] != '\t' {
		i++
	}

	return s[:i], strings.TrimLeft(s[i:], " \t")
}

// convertLiteralArg parses a search pattern, which may contain wildcards.
func convertLiteralArg(pc *ParsedCommand, ctx Context, allowWildcard bool) error {
	if pc.ArgText == "" {
		return nil
	}

	octets, masks, err := codec.ParseText(pc.ArgText, codec.ParseOptions{
		Mode:          ctx.Settings.DisplayMode,
		GroupWidth:    ctx.Settings.GroupWidth,
		Endian:        ctx.Settings.Endian,
		AllowWildcard: allowWildcard,
		Delims:        []string{ctx.Settings.GroupPreDelim, ctx.Settings.GroupInterDelim, ctx.Settings.GroupPostDelim},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}

	pc.ArgConverted = ConvertedText{Octets: octets, Masks: masks}

	return nil
}

// convertDataArg parses a replace/insert argument, which is either a
// literal octet buffer or, if it starts with a filezone sigil ('$' or
// '@'), a source zone to copy bytes from.
func convertDataArg(pc *ParsedCommand, ctx Context, target zone.FileZone) error {
	arg := strings.TrimSpace(pc.ArgText)
	if arg == "" {
		return nil
	}

	if looksLikeZone(arg) {
		fz, err := zone.Parse(arg, ctx.Resolver)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedCommand, err)
		}

		pc.ArgConverted = ConvertedText{SourceZone: &fz, HasSourceZone: true}

		return nil
	}

	return convertLiteralArg(pc, ctx, false)
}

func looksLikeZone(s string) bool {
	if s == "" {
		return false
	}

	return s[0] == '$' || s[0] == '@'
}

// applyDefaultLengths fills in a zone's length when the command implies a
// default: print/search default to the configured print/search length,
// kill defaults to 1, replace/insert with a literal argument default to
// the argument's octet count.
func applyDefaultLengths(pc *ParsedCommand, ctx Context) {
	if pc.TargetFZ.LenSpecified {
		return
	}

	switch pc.Cmd {
	case KindPrint, KindOffset:
		if ctx.Settings.DisplayMode == codec.ModeBits {
			pc.TargetFZ.Len = int64(ctx.Settings.PrintLenBits)
		} else {
			pc.TargetFZ.Len = int64(ctx.Settings.PrintLenHex)
		}

		pc.TargetFZ.LenSpecified = true
	case KindSearch:
		n := ctx.Settings.SearchLenHex
		if ctx.Settings.DisplayMode == codec.ModeBits {
			n = ctx.Settings.SearchLenBits
		}

		if n == 0 {
			pc.TargetFZ.Len = offset.Max
		} else {
			pc.TargetFZ.Len = int64(n)
		}

		pc.TargetFZ.LenSpecified = true
		pc.TargetFZ.TolerateEOF = true
	case KindKill:
		pc.TargetFZ.Len = 1
		pc.TargetFZ.LenSpecified = true
	case KindReplace, KindInsert:
		if !pc.ArgConverted.HasSourceZone {
			pc.TargetFZ.Len = int64(len(pc.ArgConverted.Octets))
			pc.TargetFZ.LenSpecified = true
		}
	}
}
