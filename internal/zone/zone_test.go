package zone_test

import (
	"testing"

	"github.com/hexpeek/hexpeek/internal/zone"
)

type fakeResolver struct {
	numOpen   int
	infer     bool
	base      int
	cur       map[int]int64
	curSet    map[int]bool
	sizes     map[int]int64
	seekables map[int]bool
}

func (f fakeResolver) NumOpenFiles() int { return f.numOpen }
func (f fakeResolver) Infer() bool       { return f.infer }
func (f fakeResolver) ScalarBase() int   { return f.base }

func (f fakeResolver) CurrentOffset(fi int) (int64, bool) {
	return f.cur[fi], f.curSet[fi]
}

func (f fakeResolver) FileSize(fi int) (int64, error) {
	return f.sizes[fi], nil
}

func (f fakeResolver) Seekable(fi int) bool {
	if f.seekables == nil {
		return true
	}

	return f.seekables[fi]
}

func baseResolver() fakeResolver {
	return fakeResolver{
		numOpen: 1,
		infer:   true,
		base:    16,
		cur:     map[int]int64{0: 0},
		curSet:  map[int]bool{0: true},
		sizes:   map[int]int64{0: 8},
	}
}

func TestParseSimpleStartLen(t *testing.T) {
	fz, err := zone.Parse("0,3", baseResolver())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fz.FileIndex != 0 || fz.Start != 0 || fz.Len != 3 {
		t.Fatalf("got %+v", fz)
	}
}

func TestParseFileIndexAndOffset(t *testing.T) {
	fz, err := zone.Parse("$0@8,10", baseResolver())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fz.FileIndex != 0 || fz.Start != 8 || fz.Len != 0x10 {
		t.Fatalf("got %+v", fz)
	}
}

func TestParseAtAtCurrentOffset(t *testing.T) {
	r := baseResolver()
	r.cur[0] = 4
	r.curSet[0] = true

	fz, err := zone.Parse("@@,2", r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fz.Start != 4 {
		t.Fatalf("expected start 4, got %d", fz.Start)
	}
}

func TestParseMaxSetsToleranceAndMaxLen(t *testing.T) {
	fz, err := zone.Parse("0:max", baseResolver())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !fz.TolerateEOF {
		t.Fatalf("expected TolerateEOF")
	}
}

func TestParseNegativeOffsetFromEOF(t *testing.T) {
	fz, err := zone.Parse("-1,1", baseResolver())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fz.Start != 7 {
		t.Fatalf("expected start 7 (size 8 - 1), got %d", fz.Start)
	}
}

func TestParseNegativeOnNonSeekableRejected(t *testing.T) {
	r := baseResolver()
	r.seekables = map[int]bool{0: false}

	_, err := zone.Parse("-1,1", r)
	if err == nil {
		t.Fatalf("expected error for negative offset on non-seekable file")
	}
}

func TestParseAmbiguousFileIndex(t *testing.T) {
	r := baseResolver()
	r.numOpen = 2
	r.infer = false

	_, err := zone.Parse("0,1", r)
	if err == nil {
		t.Fatalf("expected ambiguous file index error")
	}
}

func TestParseLimitForm(t *testing.T) {
	fz, err := zone.Parse("2:6", baseResolver())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fz.Start != 2 || fz.Len != 4 {
		t.Fatalf("got %+v", fz)
	}
}

func TestParseLenAliasForMinusZero(t *testing.T) {
	fz, err := zone.Parse("0:len", baseResolver())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fz.Len != 8 {
		t.Fatalf("expected len 8 (whole file), got %d", fz.Len)
	}
}
