// Package offset defines the signed file-position type shared across the
// command parser, filezone resolver, and mutation engine.
package offset

import (
	"math"
	"strconv"
)

// Max is the largest representable file position.
const Max int64 = math.MaxInt64

// Offset is a file position that can be unset. It replaces the C
// implementation's reserved bit-pattern sentinel with an explicit flag, so
// the zero value is never confused with offset 0.
type Offset struct {
	v     int64
	isSet bool
}

// Unset returns the "no offset" value.
func Unset() Offset {
	return Offset{}
}

// Of wraps a concrete file position.
func Of(v int64) Offset {
	return Offset{v: v, isSet: true}
}

// IsUnset reports whether the offset carries no value.
func (o Offset) IsUnset() bool {
	return !o.isSet
}

// Value returns the wrapped position and whether it was set.
func (o Offset) Value() (int64, bool) {
	return o.v, o.isSet
}

// Or returns o's value, or fallback if o is unset.
func (o Offset) Or(fallback int64) int64 {
	if o.isSet {
		return o.v
	}

	return fallback
}

// String renders "unset" for an unset offset and the decimal value otherwise,
// matching the display behavior required of the session's current-offset field.
func (o Offset) String() string {
	if !o.isSet {
		return "unset"
	}

	return strconv.FormatInt(o.v, 10)
}
