package codec_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hexpeek/hexpeek/internal/codec"
)

func TestParseTextHexBasic(t *testing.T) {
	octets, masks, err := codec.ParseText("aabbcc", codec.ParseOptions{Mode: codec.ModeHex})
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	want := []byte{0xaa, 0xbb, 0xcc}
	if diff := cmp.Diff(want, octets); diff != "" {
		t.Fatalf("octets mismatch (-want +got):\n%s", diff)
	}

	for _, m := range masks {
		if m != 0xFF {
			t.Fatalf("expected fully-set mask, got %#x", m)
		}
	}
}

func TestParseTextWildcard(t *testing.T) {
	octets, masks, err := codec.ParseText("aa.c", codec.ParseOptions{Mode: codec.ModeHex, AllowWildcard: true})
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	if len(octets) != 2 || len(masks) != 2 {
		t.Fatalf("expected 2 octets, got %d", len(octets))
	}

	if masks[1] != 0x0F {
		t.Fatalf("expected high nibble wildcard mask 0x0F, got %#x", masks[1])
	}
}

func TestParseTextWildcardForbidden(t *testing.T) {
	_, _, err := codec.ParseText("aa.c", codec.ParseOptions{Mode: codec.ModeHex, AllowWildcard: false})
	if err == nil {
		t.Fatalf("expected error for wildcard when not allowed")
	}
}

func TestParseTextSkipsWhitespaceAndDelims(t *testing.T) {
	octets, _, err := codec.ParseText("aa bb|cc", codec.ParseOptions{
		Mode:   codec.ModeHex,
		Delims: []string{"|"},
	})
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}

	if len(octets) != 3 {
		t.Fatalf("expected 3 octets, got %d: %x", len(octets), octets)
	}
}

func TestParseTextTrailingGarbageIsError(t *testing.T) {
	_, _, err := codec.ParseText("aaZ", codec.ParseOptions{Mode: codec.ModeHex})
	if err == nil {
		t.Fatalf("expected error for trailing garbage")
	}
}

func TestEndianSwapIsInvolution(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	orig := append([]byte(nil), data...)

	codec.EndianSwap(data, 4)
	codec.EndianSwap(data, 4)

	if diff := cmp.Diff(orig, data); diff != "" {
		t.Fatalf("double swap mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderDiff(t *testing.T) {
	a := []byte{0xaa, 0xbb, 0xcc}
	b := []byte{0xaa, 0xbd, 0xcc}

	got, err := codec.RenderDiff(a, b, codec.ModeHex, false)
	if err != nil {
		t.Fatalf("RenderDiff: %v", err)
	}

	want := "__bd__"
	if got != want {
		t.Fatalf("RenderDiff = %q, want %q", got, want)
	}
}
