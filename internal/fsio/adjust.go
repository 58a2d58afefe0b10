package fsio

import "fmt"

// AdjustSize grows (amt > 0) or shrinks (amt < 0) f by relocating its tail,
// per spec.md §4.5. For a grow, pos is the insertion point and the tail
// from pos to EOF is moved right by amt; the resulting gap becomes a hole
// that the caller (Mutation Engine) fills by writing its payload there. For
// a shrink, pos is the point *after* which bytes are removed (the caller
// passes start+len); the hole begins at pos+amt (amt is negative) and the
// tail from pos to EOF is moved left before the file is truncated.
//
// AdjustSize performs only the mechanical move; it records no backup state
// of its own. Callers that need crash-safety around the move (the
// Mutation Engine, via the ADJ slot) must record the adjustment first.
func (s *Service) AdjustSize(f *File, pos, amt int64) error {
	if amt == 0 {
		return nil
	}

	info, err := s.Stat(f)
	if err != nil {
		return fmt.Errorf("adjust size: stat: %w", err)
	}

	size := info.Size()

	if amt > 0 {
		tailLen := size - pos
		if tailLen < 0 {
			tailLen = 0
		}

		if tailLen > 0 {
			if err := s.CopyBackward(f, pos, f, pos+amt, tailLen); err != nil {
				return fmt.Errorf("adjust size: grow move: %w", err)
			}
		}

		return nil
	}

	holeStart := pos + amt // amt is negative

	tailLen := size - pos
	if tailLen < 0 {
		tailLen = 0
	}

	if tailLen > 0 {
		if err := s.CopyForward(f, pos, f, holeStart, tailLen); err != nil {
			return fmt.Errorf("adjust size: shrink move: %w", err)
		}
	}

	newSize := size + amt
	if newSize < 0 {
		newSize = 0
	}

	if err := s.Truncate(f, newSize); err != nil {
		return fmt.Errorf("adjust size: truncate: %w", err)
	}

	return nil
}
