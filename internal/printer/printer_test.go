package printer_test

import (
	"bytes"
	"testing"

	"github.com/hexpeek/hexpeek/internal/printer"
	"github.com/hexpeek/hexpeek/internal/settings"
)

func sampleData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7 % 251)
	}

	return data
}

// §8 property 4: dump -> pack round-trips byte-for-byte when margin is
// full and group/line widths match.
func TestDumpPackRoundTrip(t *testing.T) {
	s := settings.Default()
	s.Ruler = false
	p := &printer.Printer{Settings: &s}

	data := sampleData(5 * s.LineWidthHex)

	var buf bytes.Buffer
	if err := p.Dump(&buf, data, 0, false); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	got, err := p.Pack(&buf)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch:\n got  %x\n want %x", got, data)
	}
}

// Autoskip '*' lines round-trip too: a run of identical rows collapses to
// one '*' on dump and must be fully reconstructed by Pack.
func TestDumpPackRoundTripWithAutoskip(t *testing.T) {
	s := settings.Default()
	s.Ruler = false
	p := &printer.Printer{Settings: &s}

	lw := s.LineWidthHex
	data := make([]byte, lw*5)
	// Rows 1..3 (0-indexed) are identical, row 0 and row 4 differ.
	for r := 1; r <= 3; r++ {
		for i := 0; i < lw; i++ {
			data[r*lw+i] = byte(0xaa)
		}
	}

	for i := 0; i < lw; i++ {
		data[i] = byte(i)
		data[4*lw+i] = byte(0xff - i)
	}

	var buf bytes.Buffer
	if err := p.Dump(&buf, data, 0, false); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte("*\n")) {
		t.Fatalf("expected an autoskip '*' line in dump output:\n%s", buf.String())
	}

	got, err := p.Pack(&buf)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch:\n got  %x\n want %x", got, data)
	}
}

// Pack rejects a non-full, non-zero margin width per spec.md §4.7.
func TestPackRejectsPartialMargin(t *testing.T) {
	s := settings.Default()
	s.MarginWidth = 8
	p := &printer.Printer{Settings: &s}

	_, err := p.Pack(bytes.NewBufferString("00000000: aabbcc\n"))
	if err == nil {
		t.Fatal("expected ErrPackNeedsFullMargin")
	}
}

// S4-style diff: two 3-byte files differing at one offset report a
// difference and render the unchanged bytes as underscores.
func TestDiffReportsDifference(t *testing.T) {
	s := settings.Default()
	s.LineWidthHex = 3
	s.Ruler = false
	p := &printer.Printer{Settings: &s}

	a := []byte{0xaa, 0xbb, 0xcc}
	b := []byte{0xaa, 0xbd, 0xcc}

	var buf bytes.Buffer

	differs, err := p.Diff(&buf, a, b, 0)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if !differs {
		t.Fatal("expected differs=true")
	}

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("bd")) {
		t.Fatalf("expected differing byte bd rendered, got %q", out)
	}
}

// Verbose mode emits one line per octet.
func TestVerboseOneLinePerOctet(t *testing.T) {
	s := settings.Default()
	s.Ruler = false
	p := &printer.Printer{Settings: &s}

	var buf bytes.Buffer
	if err := p.Dump(&buf, []byte{0x00, 0xff}, 0, true); err != nil {
		t.Fatalf("Dump verbose: %v", err)
	}

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != 2 {
		t.Fatalf("line count = %d, want 2:\n%s", lines, buf.String())
	}
}
