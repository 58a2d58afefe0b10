package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hexpeek/hexpeek/internal/codec"
	"github.com/hexpeek/hexpeek/internal/command"
	"github.com/hexpeek/hexpeek/internal/settings"
)

// applySetting mutates s in place for one of the display/behavior setting
// commands (spec.md §4.3's rlen/slen/line/cols/group/margin/scalar/prefix/
// autoskip/diffskip/text/ruler family).
func applySetting(s *settings.Settings, pc *command.ParsedCommand) error {
	switch pc.Cmd {
	case command.KindRLen:
		n, err := parseSettingInt(pc.SettingValue)
		if err != nil {
			return err
		}

		if s.DisplayMode == codec.ModeBits {
			s.PrintLenBits = n
		} else {
			s.PrintLenHex = n
		}

	case command.KindSLen:
		n, err := parseSettingInt(pc.SettingValue)
		if err != nil {
			return err
		}

		if s.DisplayMode == codec.ModeBits {
			s.SearchLenBits = n
		} else {
			s.SearchLenHex = n
		}

	case command.KindLine:
		n, err := parseSettingInt(pc.SettingValue)
		if err != nil {
			return err
		}

		if n <= 0 {
			return fmt.Errorf("%w: line width must be positive", command.ErrIllegalCommand)
		}

		if s.DisplayMode == codec.ModeBits {
			s.LineWidthBits = n
		} else {
			s.LineWidthHex = n
		}

	case command.KindCols:
		// "cols" is the terminal-width-driven twin of "line": it recomputes
		// the line width for the column budget given, rather than setting
		// an octet count directly.
		n, err := parseSettingInt(pc.SettingValue)
		if err != nil {
			return err
		}

		charsPerOctet := 2
		if s.DisplayMode == codec.ModeBits {
			charsPerOctet = 8
		}

		width := defaultLineWidthFor(n, charsPerOctet, s.GroupWidth)

		if s.DisplayMode == codec.ModeBits {
			s.LineWidthBits = width
		} else {
			s.LineWidthHex = width
		}

	case command.KindGroup:
		n, err := parseSettingInt(pc.SettingValue)
		if err != nil {
			return err
		}

		if n <= 0 {
			return fmt.Errorf("%w: group width must be positive", command.ErrIllegalCommand)
		}

		s.GroupWidth = n

	case command.KindMargin:
		return applyMargin(s, pc.SettingValue)

	case command.KindScalar:
		switch strings.ToLower(pc.SettingValue) {
		case "hex":
			s.ScalarBase = settings.ScalarHex
		case "c", "cstyle":
			s.ScalarBase = settings.ScalarCStyle
		default:
			return fmt.Errorf("%w: unrecognized scalar base %q", command.ErrMalformedCommand, pc.SettingValue)
		}

	case command.KindPrefix:
		s.Prefix = pc.SettingValue == "on"

	case command.KindAutoskip:
		s.Autoskip = pc.SettingValue == "on"

	case command.KindDiffskip:
		s.Diffskip = pc.SettingValue == "on"

	case command.KindRuler:
		s.Ruler = pc.SettingValue == "on"

	case command.KindText:
		return applyTextEncoding(s, pc.SettingValue)

	default:
		return fmt.Errorf("session: %v is not a setting command", pc.Cmd)
	}

	return nil
}

func parseSettingInt(raw string) (int, error) {
	n, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", command.ErrMalformedCommand, err)
	}

	return int(n), nil
}

// applyMargin accepts "0" (off), "full" (16), or a digit count 1..16.
func applyMargin(s *settings.Settings, raw string) error {
	raw = strings.ToLower(strings.TrimSpace(raw))

	if raw == "full" {
		s.MarginWidth = 16
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 16 {
		return fmt.Errorf("%w: margin must be 0, 1..16, or \"full\"", command.ErrMalformedCommand)
	}

	s.MarginWidth = n

	return nil
}

func applyTextEncoding(s *settings.Settings, raw string) error {
	switch raw {
	case "on":
		s.TextColumn = true
		return nil
	case "off":
		s.TextColumn = false
		return nil
	}

	switch strings.ToLower(raw) {
	case "ascii":
		s.TextColumn = true
		s.TextEncoding = codec.TextASCII
	case "ebcdic":
		s.TextColumn = true
		s.TextEncoding = codec.TextEBCDIC
	case "none":
		s.TextColumn = false
	default:
		return fmt.Errorf("%w: unrecognized text encoding %q", command.ErrMalformedCommand, raw)
	}

	return nil
}

// defaultLineWidthFor mirrors settings.defaultLineWidth (unexported in its
// package) for the "cols" command, which recomputes line width from a
// terminal column budget rather than setting it directly.
func defaultLineWidthFor(columns, charsPerOctet, groupWidth int) int {
	width := 1
	for {
		next := width * 2

		rendered := next*charsPerOctet + next
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
