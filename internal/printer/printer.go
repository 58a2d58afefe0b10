// Package printer implements the Pretty Printer from spec.md §4.7: the
// normal, large, verbose, and diff renderers, autoskip/diffskip line
// collapsing, the margin/ruler/text columns, and pack mode (the inverse
// of a normal dump).
package printer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strconv"
	"strings"

	"github.com/hexpeek/hexpeek/internal/codec"
	"github.com/hexpeek/hexpeek/internal/settings"
)

// LargeLineThreshold is the octet count above which show_large replaces
// show_normal: no autoskip, no text column, per spec.md §4.7.
const LargeLineThreshold = 64 * 1024

// ErrPackNeedsFullMargin reports a pack attempt with a margin width that
// is neither 0 nor full (16), which spec.md §4.7 requires to reject.
var ErrPackNeedsFullMargin = errors.New("pack requires margin width 0 or full")

// ErrMalformedDump reports a line that does not match the dump layout
// pack is trying to invert.
var ErrMalformedDump = errors.New("malformed dump line")

// Printer renders and parses dumps according to a Settings snapshot.
type Printer struct {
	Settings *settings.Settings
}

func (p *Printer) lineWidth() int {
	if p.Settings.DisplayMode == codec.ModeBits {
		return p.Settings.LineWidthBits
	}

	return p.Settings.LineWidthHex
}

func (p *Printer) groupWidth() int {
	if p.Settings.GroupWidth > 0 {
		return p.Settings.GroupWidth
	}

	return p.lineWidth()
}

// renderRow renders one row's data as grouped octet text, honoring
// endianness (applied within each group, per spec.md §4.1's swap
// semantics) and the group delimiter strings.
func (p *Printer) renderRow(row []byte) string {
	s := p.Settings

	data := append([]byte(nil), row...)

	gw := p.groupWidth()
	if gw <= 0 {
		gw = len(data)
	}

	if gw > 0 && s.Endian == codec.LittleEndian {
		codec.EndianSwap(data, gw)
	}

	var b strings.Builder

	for start := 0; start < len(data); start += gw {
		end := start + gw
		if end > len(data) {
			end = len(data)
		}

		if start > 0 {
			b.WriteString(s.GroupInterDelim)
		}

		b.WriteString(s.GroupPreDelim)
		b.WriteString(codec.Render(data[start:end], s.DisplayMode, s.HexUpper))
		b.WriteString(s.GroupPostDelim)
	}

	return b.String()
}

func (p *Printer) textColumn(row []byte) string {
	enc := p.Settings.TextEncoding

	glyphs := make([]byte, len(row))
	for i, v := range row {
		glyphs[i] = codec.TextGlyph(enc, v)
	}

	return string(glyphs)
}

func (p *Printer) marginPrefix(off int64) string {
	digits := p.Settings.MarginWidth
	if digits <= 0 {
		return ""
	}

	mask := int64(-1)
	if digits < 16 {
		mask = (int64(1) << (4 * digits)) - 1
	}

	return fmt.Sprintf("%0*x: ", digits, off&mask)
}

func rowsOf(data []byte, lw int) [][]byte {
	if lw <= 0 {
		lw = len(data)
		if lw == 0 {
			lw = 1
		}
	}

	var rows [][]byte

	for i := 0; i < len(data); i += lw {
		end := i + lw
		if end > len(data) {
			end = len(data)
		}

		rows = append(rows, data[i:end])
	}

	return rows
}

func (p *Printer) ruler(w io.Writer, lw int) {
	s := p.Settings

	gw := p.groupWidth()

	var b strings.Builder

	b.WriteString(strings.Repeat(" ", len(p.marginPrefix(0))))

	for start := 0; start < lw; start += gw {
		end := start + gw
		if end > lw {
			end = lw
		}

		if start > 0 {
			b.WriteString(s.GroupInterDelim)
		}

		idx := make([]byte, end-start)
		for i := range idx {
			idx[i] = byte(start + i)
		}

		b.WriteString(s.GroupPreDelim)
		b.WriteString(codec.Render(idx, s.DisplayMode, s.HexUpper))
		b.WriteString(s.GroupPostDelim)
	}

	fmt.Fprint(w, b.String())
	fmt.Fprint(w, s.LineTerminator)
}

// Dump renders data (whose first octet sits at absolute offset base)
// using show_verbose, show_large, or show_normal per spec.md §4.7's
// dispatch rule.
func (p *Printer) Dump(w io.Writer, data []byte, base int64, verbose bool) error {
	if verbose {
		return p.showVerbose(w, data, base)
	}

	if p.lineWidth() > LargeLineThreshold {
		return p.showLarge(w, data, base)
	}

	return p.showNormal(w, data, base)
}

func (p *Printer) showNormal(w io.Writer, data []byte, base int64) error {
	return p.showRows(w, data, base, p.Settings.Autoskip, p.Settings.TextColumn)
}

// showLarge is show_normal with autoskip and the text column forced off,
// regardless of Settings, per spec.md §4.7.
func (p *Printer) showLarge(w io.Writer, data []byte, base int64) error {
	return p.showRows(w, data, base, false, false)
}

func (p *Printer) showRows(w io.Writer, data []byte, base int64, autoskip, textCol bool) error {
	s := p.Settings
	lw := p.lineWidth()

	if s.Ruler {
		p.ruler(w, lw)
	}

	rows := rowsOf(data, lw)

	fullWidth := len(p.renderRow(make([]byte, lw)))

	var prevRendered string

	haveSkip := false

	for i, row := range rows {
		rendered := p.renderRow(row)
		isLast := i == len(rows)-1

		if autoskip && i > 0 && !isLast && rendered == prevRendered && len(row) == lw {
			if !haveSkip {
				if _, err := fmt.Fprintf(w, "*%s", s.LineTerminator); err != nil {
					return err
				}

				haveSkip = true
			}

			continue
		}

		haveSkip = false
		prevRendered = rendered

		line := p.marginPrefix(base + int64(i*lw))
		line += padRight(rendered, fullWidth)

		if textCol {
			line += "  " + p.textColumn(row)
		}

		if _, err := fmt.Fprintf(w, "%s%s", line, s.LineTerminator); err != nil {
			return err
		}
	}

	return nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}

	return s + strings.Repeat(" ", width-len(s))
}

// showVerbose renders one octet per line with every representation spec.md
// §4.7 lists: hex, decimal, octal, bits, high/low bit, population count,
// and the text-encoding glyph.
func (p *Printer) showVerbose(w io.Writer, data []byte, base int64) error {
	for i, v := range data {
		highBit := (v >> 7) & 1
		lowBit := v & 1
		pop := bits.OnesCount8(v)
		glyph := codec.TextGlyph(p.Settings.TextEncoding, v)

		_, err := fmt.Fprintf(w, "%s0x%02x  dec=%-3d oct=%03o bits=%08b hi=%d lo=%d pop=%d '%c'%s",
			p.marginPrefix(base+int64(i)), v, v, v, v, highBit, lowBit, pop, glyph, p.Settings.LineTerminator)
		if err != nil {
			return err
		}
	}

	return nil
}

// Diff renders a pairwise comparison of a and b (equal length, sharing
// base as their absolute offset) via show_diff, collapsing identical
// whole lines to '*' when Diffskip is set, and reports whether any
// difference was found.
func (p *Printer) Diff(w io.Writer, a, b []byte, base int64) (bool, error) {
	if len(a) != len(b) {
		return false, fmt.Errorf("printer: diff: length mismatch %d != %d", len(a), len(b))
	}

	s := p.Settings
	lw := p.lineWidth()

	rowsA := rowsOf(a, lw)
	rowsB := rowsOf(b, lw)

	fullWidth := len(p.renderRow(make([]byte, lw)))

	differs := false

	haveSkip := false

	for i := range rowsA {
		ra, rb := rowsA[i], rowsB[i]

		rendered, err := codec.RenderDiff(ra, rb, s.DisplayMode, s.HexUpper)
		if err != nil {
			return false, err
		}

		rowDiffers := string(ra) != string(rb)
		if rowDiffers {
			differs = true
		}

		isLast := i == len(rowsA)-1

		if s.Diffskip && !rowDiffers && i > 0 && !isLast {
			if !haveSkip {
				if _, err := fmt.Fprintf(w, "*%s", s.LineTerminator); err != nil {
					return differs, err
				}

				haveSkip = true
			}

			continue
		}

		haveSkip = false

		line := p.marginPrefix(base + int64(i*lw))
		line += padRight(rendered, fullWidth)

		if _, err := fmt.Fprintf(w, "%s%s", line, s.LineTerminator); err != nil {
			return differs, err
		}
	}

	return differs, nil
}

// Pack reads a dump previously produced by show_normal/show_large back
// into binary, honoring recorded margin offsets to place holes left by
// autoskip '*' lines. It is spec.md §4.7's inverse of normal print and
// rejects a margin width that is neither 0 nor full (16).
func (p *Printer) Pack(r io.Reader) ([]byte, error) {
	s := p.Settings
	if s.MarginWidth != 0 && s.MarginWidth != 16 {
		return nil, ErrPackNeedsFullMargin
	}

	lw := p.lineWidth()
	fullWidth := len(p.renderRow(make([]byte, lw)))

	type chunk struct {
		at   int64
		data []byte
	}

	var chunks []chunk

	var (
		cursor   int64
		haveBase bool
		base     int64
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		lastRow     []byte
		haveLastRow bool
		pendingStar bool
	)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if strings.TrimSpace(line) == "*" {
			pendingStar = true
			continue
		}

		body := line
		at := cursor

		if s.MarginWidth == 16 {
			idx := strings.Index(line, ":")
			if idx < 0 {
				return nil, fmt.Errorf("%w: missing margin separator", ErrMalformedDump)
			}

			v, err := strconv.ParseUint(strings.TrimSpace(line[:idx]), 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad margin offset: %w", ErrMalformedDump, err)
			}

			at = int64(v)
			body = line[idx+1:]

			if !haveBase {
				base = at
				haveBase = true
			}
		}

		body = strings.TrimLeft(body, " ")

		// The text column (if any) follows the padded hex/bits field
		// after a two-space gap; only the fixed-width data field itself
		// is meaningful to pack.
		if len(body) > fullWidth {
			body = body[:fullWidth]
		}

		octets, _, err := codec.ParseText(body, codec.ParseOptions{
			Mode:       s.DisplayMode,
			GroupWidth: p.groupWidth(),
			Endian:     s.Endian,
			Delims:     []string{s.GroupPreDelim, s.GroupInterDelim, s.GroupPostDelim},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDump, err)
		}

		if len(octets) > lw {
			octets = octets[:lw]
		}

		// A run of '*' lines stood for one or more repeats of the line
		// immediately before it; reconstruct that gap now that this real
		// line's own offset bounds it, per spec.md §4.7.
		if pendingStar {
			if !haveLastRow {
				return nil, fmt.Errorf("%w: '*' with no preceding line to repeat", ErrMalformedDump)
			}

			gap := at - cursor
			if gap < 0 {
				return nil, fmt.Errorf("%w: '*' run overruns following offset", ErrMalformedDump)
			}

			filled := make([]byte, gap)
			for i := range filled {
				filled[i] = lastRow[i%len(lastRow)]
			}

			chunks = append(chunks, chunk{at: cursor, data: filled})
			pendingStar = false
		}

		chunks = append(chunks, chunk{at: at, data: octets})
		cursor = at + int64(len(octets))
		lastRow = octets
		haveLastRow = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("printer: pack: scan: %w", err)
	}

	if len(chunks) == 0 {
		return nil, nil
	}

	if !haveBase {
		base = chunks[0].at
	}

	end := base

	for _, c := range chunks {
		if e := c.at + int64(len(c.data)); e > end {
			end = e
		}
	}

	out := make([]byte, end-base)

	for _, c := range chunks {
		copy(out[c.at-base:], c.data)
	}

	return out, nil
}
