package fsio

import (
	"fmt"
	"time"
)

// ChunkSize bounds a single copy step. PageSize is the 4 KiB page size; the
// copy primitives below step in ChunkSize units from the start of the
// requested range and do not align chunk boundaries to PageSize.
const (
	ChunkSize = 64 * 1024
	PageSize  = 4 * 1024
)

// progressCadence bounds how often the optional progress hook repaints,
// per spec.md §5's "~10 ms cadence".
const progressCadence = 10 * time.Millisecond

// ProgressFunc is the optional hook for long copies (spec.md §5). verb
// names the operation ("search", "replace", ...); done/total are byte
// counts. Callers typically repaint a progress line only when the output
// stream is a terminal.
type ProgressFunc func(verb string, done, total int64)

func tick(hook ProgressFunc, verb string, done, total int64, last *time.Time) {
	if hook == nil {
		return
	}

	now := time.Now()
	if !last.IsZero() && now.Sub(*last) < progressCadence && done < total {
		return
	}

	*last = now

	hook(verb, done, total)
}

// CopyForward copies len bytes from src at srcAt to dst at dstAt, reading
// ahead of where it writes. Safe whenever srcAt >= dstAt in the same file
// (or when src and dst are different files).
func (s *Service) CopyForward(src *File, srcAt int64, dst *File, dstAt int64, n int64) error {
	return s.copyForwardProgress(src, srcAt, dst, dstAt, n, "", nil)
}

// CopyForwardProgress is CopyForward with an optional progress hook.
func (s *Service) CopyForwardProgress(src *File, srcAt int64, dst *File, dstAt int64, n int64, verb string, hook ProgressFunc) error {
	return s.copyForwardProgress(src, srcAt, dst, dstAt, n, verb, hook)
}

func (s *Service) copyForwardProgress(src *File, srcAt int64, dst *File, dstAt int64, n int64, verb string, hook ProgressFunc) error {
	buf := make([]byte, ChunkSize)
	total := n

	var done int64

	var last time.Time

	for n > 0 {
		step := int64(len(buf))
		if step > n {
			step = n
		}

		chunk := buf[:step]

		if _, err := s.ReadFull(src, srcAt, chunk); err != nil {
			return fmt.Errorf("copy forward: read: %w", err)
		}

		if err := s.WriteAt(dst, dstAt, chunk); err != nil {
			return fmt.Errorf("copy forward: write: %w", err)
		}

		srcAt += step
		dstAt += step
		n -= step
		done += step

		tick(hook, verb, done, total, &last)
	}

	return nil
}

// CopyBackward copies len bytes from src at srcAt to dst at dstAt, working
// from the tail toward the head. Safe whenever srcAt <= dstAt in the same
// file, where a forward copy would clobber source bytes before they are
// read.
func (s *Service) CopyBackward(src *File, srcAt int64, dst *File, dstAt int64, n int64) error {
	buf := make([]byte, ChunkSize)

	remaining := n

	for remaining > 0 {
		step := int64(len(buf))
		if step > remaining {
			step = remaining
		}

		remaining -= step
		chunk := buf[:step]

		if _, err := s.ReadFull(src, srcAt+remaining, chunk); err != nil {
			return fmt.Errorf("copy backward: read: %w", err)
		}

		if err := s.WriteAt(dst, dstAt+remaining, chunk); err != nil {
			return fmt.Errorf("copy backward: write: %w", err)
		}
	}

	return nil
}

// CopyExternal copies between two distinct files using streaming reads; no
// overlap analysis is needed since the files are independent.
func (s *Service) CopyExternal(src *File, srcAt int64, dst *File, dstAt int64, n int64) error {
	return s.CopyForward(src, srcAt, dst, dstAt, n)
}

// FileCopy dispatches to the correct primitive based on whether src and dst
// are the same file and how their ranges overlap, then repeat-fills any
// remaining destination tail by replaying the bytes just written (read from
// dst, since the source region may have been overwritten). This realizes
// spec.md §4.4's file_copy and the repeat-fill behavior used by replace's
// literal-buffer growth and insert's same-file source fixups.
func (s *Service) FileCopy(src *File, srcAt, srcLen int64, dst *File, dstAt, dstLen int64) error {
	same := SameFile(src, dst)

	copyLen := srcLen
	if dstLen < copyLen {
		copyLen = dstLen
	}

	var err error

	switch {
	case !same:
		err = s.CopyExternal(src, srcAt, dst, dstAt, copyLen)
	case srcAt >= dstAt:
		err = s.CopyForward(src, srcAt, dst, dstAt, copyLen)
	default:
		err = s.CopyBackward(src, srcAt, dst, dstAt, copyLen)
	}

	if err != nil {
		return err
	}

	if dstLen <= copyLen {
		return nil
	}

	return s.RepeatFill(dst, dstAt, copyLen, dstLen-copyLen)
}

// RepeatFill extends a just-written region of length writtenLen at dstAt by
// extra bytes, repeating the written bytes cyclically. It reads from dst
// (not the original source) because the source may already have been
// overwritten by the initial copy. The Mutation Engine uses this directly
// when a replace's literal buffer is shorter than its target region
// (spec.md §4.5).
func (s *Service) RepeatFill(dst *File, dstAt, writtenLen, extra int64) error {
	if writtenLen <= 0 {
		return fmt.Errorf("repeat fill: nothing written to repeat")
	}

	pos := dstAt + writtenLen
	remaining := extra
	cursor := dstAt

	buf := make([]byte, ChunkSize)

	for remaining > 0 {
		step := writtenLen
		if step > remaining {
			step = remaining
		}

		if step > int64(len(buf)) {
			step = int64(len(buf))
		}

		chunk := buf[:step]

		if _, err := s.ReadFull(dst, cursor, chunk); err != nil {
			return fmt.Errorf("repeat fill: read: %w", err)
		}

		if err := s.WriteAt(dst, pos, chunk); err != nil {
			return fmt.Errorf("repeat fill: write: %w", err)
		}

		pos += step
		cursor += step
		remaining -= step
	}

	return nil
}
