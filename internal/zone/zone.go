// Package zone implements the filezone grammar from spec.md §4.2:
//
//	filezone := ['$' HEX_INDEX] [ ['@'] HEX_OFFSET | '@@' ] [ ',' HEX_LEN | ':' LIMIT ]
//	LIMIT    := HEX_OFFSET | "len" | "max"
package zone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hexpeek/hexpeek/internal/offset"
)

// FileZone addresses a region of a specific open file.
type FileZone struct {
	FileIndex    int
	Start        int64
	Len          int64 // valid only when LenSpecified
	LenSpecified bool
	TolerateEOF  bool
}

// Resolver supplies the session state the parser needs to turn relative and
// inferred fields into concrete values.
type Resolver interface {
	NumOpenFiles() int
	Infer() bool
	ScalarBase() int // 0 enables C-style prefixes, 16 is pure hex
	CurrentOffset(fi int) (int64, bool)
	FileSize(fi int) (int64, error)
	Seekable(fi int) bool
}

var (
	// ErrAmbiguousFile reports a missing $fi with more than one file open
	// and infer disabled.
	ErrAmbiguousFile = errors.New("ambiguous file index: specify $fi")
	// ErrNegativeOnNonSeekable reports a from-EOF offset against a
	// non-seekable descriptor.
	ErrNegativeOnNonSeekable = errors.New("negative offset on non-seekable file")
	// ErrMalformedZone reports any other grammar violation.
	ErrMalformedZone = errors.New("malformed filezone")
	// ErrLimitBeforeStart reports a ':' limit that resolves before start.
	ErrLimitBeforeStart = errors.New("limit precedes start")
)

type rawNumber struct {
	present  bool
	negative bool
	isLen    bool // literal "len" alias for "-0"
	value    int64
}

// Parse parses text as a filezone against the given resolver.
func Parse(text string, r Resolver) (FileZone, error) {
	runes := []rune(text)
	pos := 0

	fileIndex := -1

	if pos < len(runes) && runes[pos] == '$' {
		pos++

		start := pos
		for pos < len(runes) && isDigitRune(runes[pos], r.ScalarBase()) {
			pos++
		}

		if pos == start {
			return FileZone{}, fmt.Errorf("%w: expected file index after '$'", ErrMalformedZone)
		}

		n, err := parseUint(string(runes[start:pos]), r.ScalarBase())
		if err != nil {
			return FileZone{}, fmt.Errorf("%w: %w", ErrMalformedZone, err)
		}

		fileIndex = int(n)
	}

	atCurrent := false

	var rawOffset rawNumber

	if pos < len(runes) && runes[pos] == '@' {
		pos++

		if pos < len(runes) && runes[pos] == '@' {
			pos++

			atCurrent = true
		} else {
			num, np, err := parseSignedToken(runes, pos, r.ScalarBase())
			if err != nil {
				return FileZone{}, err
			}

			rawOffset = num
			pos = np
		}
	} else if pos < len(runes) && (runes[pos] == '-' || isDigitRune(runes[pos], r.ScalarBase())) {
		num, np, err := parseSignedToken(runes, pos, r.ScalarBase())
		if err != nil {
			return FileZone{}, err
		}

		rawOffset = num
		pos = np
	}

	var (
		lenSpecified bool
		maxLen       bool
		tolerateEOF  bool
		rawLen       rawNumber
		rawLimit     rawNumber
		limitForm    bool
	)

	switch {
	case pos < len(runes) && runes[pos] == ',':
		pos++
		lenSpecified = true

		num, np, err := parseSignedToken(runes, pos, r.ScalarBase())
		if err != nil {
			return FileZone{}, err
		}

		rawLen = num
		pos = np
	case pos < len(runes) && runes[pos] == ':':
		pos++
		lenSpecified = true
		limitForm = true

		rest := string(runes[pos:])
		if rest == "max" {
			maxLen = true
			tolerateEOF = true
			pos = len(runes)
		} else {
			num, np, err := parseSignedToken(runes, pos, r.ScalarBase())
			if err != nil {
				return FileZone{}, err
			}

			rawLimit = num
			pos = np
		}
	}

	if pos != len(runes) {
		return FileZone{}, fmt.Errorf("%w: trailing text %q", ErrMalformedZone, string(runes[pos:]))
	}

	fi, err := resolveFileIndex(fileIndex, r)
	if err != nil {
		return FileZone{}, err
	}

	start, err := resolveStartOffset(fi, atCurrent, rawOffset, r)
	if err != nil {
		return FileZone{}, err
	}

	fz := FileZone{FileIndex: fi, Start: start}

	if !lenSpecified {
		return fz, nil
	}

	if maxLen {
		fz.LenSpecified = true
		fz.Len = offset.Max
		fz.TolerateEOF = tolerateEOF

		return fz, nil
	}

	if limitForm {
		limit, err := resolveSigned(fi, rawLimit, r)
		if err != nil {
			return FileZone{}, err
		}

		if limit < start {
			return FileZone{}, ErrLimitBeforeStart
		}

		fz.LenSpecified = true
		fz.Len = limit - start

		return fz, nil
	}

	length, err := resolveSigned(fi, rawLen, r)
	if err != nil {
		return FileZone{}, err
	}

	if length < 0 {
		return FileZone{}, fmt.Errorf("%w: negative length", ErrMalformedZone)
	}

	fz.LenSpecified = true
	fz.Len = length

	return fz, nil
}

func resolveFileIndex(fileIndex int, r Resolver) (int, error) {
	if fileIndex >= 0 {
		return fileIndex, nil
	}

	if r.NumOpenFiles() == 1 || r.Infer() {
		return 0, nil
	}

	return 0, ErrAmbiguousFile
}

func resolveStartOffset(fi int, atCurrent bool, raw rawNumber, r Resolver) (int64, error) {
	if atCurrent || !raw.present {
		cur, ok := r.CurrentOffset(fi)
		if !ok {
			return 0, nil
		}

		return cur, nil
	}

	return resolveSigned(fi, raw, r)
}

// resolveSigned turns a parsed token (possibly negative, possibly the "len"
// alias for -0) into an absolute file position.
func resolveSigned(fi int, raw rawNumber, r Resolver) (int64, error) {
	if !raw.negative && !raw.isLen {
		return raw.value, nil
	}

	if !r.Seekable(fi) {
		return 0, fmt.Errorf("%w: $%d", ErrNegativeOnNonSeekable, fi)
	}

	size, err := r.FileSize(fi)
	if err != nil {
		return 0, fmt.Errorf("resolve from-EOF offset: %w", err)
	}

	if raw.isLen {
		return size, nil
	}

	// raw.value already carries the minus sign.
	return size + raw.value, nil
}

func parseSignedToken(runes []rune, pos int, base int) (rawNumber, int, error) {
	if matchLiteral(runes, pos, "len") {
		return rawNumber{present: true, isLen: true}, pos + 3, nil
	}

	start := pos
	neg := false

	if pos < len(runes) && runes[pos] == '-' {
		neg = true
		pos++
	}

	digStart := pos
	for pos < len(runes) && isDigitRune(runes[pos], base) {
		pos++
	}

	if pos == digStart {
		return rawNumber{}, start, fmt.Errorf("%w: expected number at position %d", ErrMalformedZone, start)
	}

	n, err := parseUint(string(runes[digStart:pos]), base)
	if err != nil {
		return rawNumber{}, start, fmt.Errorf("%w: %w", ErrMalformedZone, err)
	}

	val := int64(n)
	if neg {
		val = -val
	}

	return rawNumber{present: true, negative: neg, value: val}, pos, nil
}

func matchLiteral(runes []rune, pos int, lit string) bool {
	lr := []rune(lit)
	if pos+len(lr) > len(runes) {
		return false
	}

	return string(runes[pos:pos+len(lr)]) == lit
}

func isDigitRune(r rune, base int) bool {
	if base == 16 {
		return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	}
	// base 0 (C-style): accept any digit or x/X for 0x prefixes; strconv.ParseInt(base 0) handles the rest.
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') || r == 'x' || r == 'X'
}

func parseUint(s string, base int) (uint64, error) {
	if base == 16 {
		v, err := strconv.ParseUint(s, 16, 64)
		return v, err
	}

	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)

	return v, err
}
