package offset_test

import (
	"testing"

	"github.com/hexpeek/hexpeek/internal/offset"
)

func TestUnset(t *testing.T) {
	o := offset.Unset()

	if !o.IsUnset() {
		t.Fatalf("expected unset")
	}

	if got := o.String(); got != "unset" {
		t.Fatalf("String() = %q, want %q", got, "unset")
	}

	if got := o.Or(42); got != 42 {
		t.Fatalf("Or(42) = %d, want 42", got)
	}
}

func TestOf(t *testing.T) {
	o := offset.Of(0)

	if o.IsUnset() {
		t.Fatalf("offset.Of(0) must not be unset")
	}

	v, ok := o.Value()
	if !ok || v != 0 {
		t.Fatalf("Value() = (%d, %v), want (0, true)", v, ok)
	}

	if got := o.String(); got != "0" {
		t.Fatalf("String() = %q, want %q", got, "0")
	}
}
