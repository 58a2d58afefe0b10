package fsio

import (
	"errors"
	"fmt"
	"io"
)

// ErrBackwardSeek reports an attempt to seek behind the shadow track of a
// non-seekable (pipe-style) descriptor.
var ErrBackwardSeek = errors.New("cannot seek backward on non-seekable file")

// Seek positions f at off (interpreted per whence) for a true seek, or
// advances the shadow track with a bounded forward discard-read when f is
// non-seekable. Backward seeks on a non-seekable descriptor fail.
func (s *Service) Seek(f *File, off int64, whence int) (int64, error) {
	if f.seekable {
		pos, err := f.File.Seek(off, whence)
		if err != nil {
			return 0, fmt.Errorf("seek: %w", err)
		}

		return pos, nil
	}

	if whence != io.SeekStart {
		return 0, fmt.Errorf("seek: whence %d unsupported on non-seekable file", whence)
	}

	if off < f.shadow {
		return 0, fmt.Errorf("%w: at %d, requested %d", ErrBackwardSeek, f.shadow, off)
	}

	discard := off - f.shadow
	if discard > 0 {
		n, err := io.CopyN(io.Discard, f.File, discard)
		f.shadow += n

		if err != nil {
			return f.shadow, fmt.Errorf("seek: forward discard-read: %w", err)
		}
	}

	return f.shadow, nil
}
