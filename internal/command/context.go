package command

import (
	"github.com/hexpeek/hexpeek/internal/settings"
	"github.com/hexpeek/hexpeek/internal/zone"
)

// Context supplies the session state the parser needs to resolve inference
// rules and legality checks (spec.md §4.3).
type Context struct {
	Settings settings.Settings

	// Resolver answers the filezone grammar's inference questions
	// (NumOpenFiles, Infer, ScalarBase, CurrentOffset, FileSize, Seekable).
	Resolver zone.Resolver

	// ReadWrite reports whether infile fi was opened read-write.
	ReadWrite func(fi int) bool

	// Interactive is true at the liner/bufio prompt, false when replaying
	// -x/-dump/-diff/-pack commands.
	Interactive bool
}
