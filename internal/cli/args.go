package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hexpeek/hexpeek/internal/codec"
	"github.com/hexpeek/hexpeek/internal/session"
	"github.com/hexpeek/hexpeek/internal/settings"
)

// options accumulates the result of scanning argv. The CLI grammar is
// stateful and positional (mode flags like -r/-w change how *subsequent*
// file arguments are opened, exactly as original_source/src/hexpeek.c's
// argument loop does with a plain strcmp(argv[idx], ...) chain), which
// does not fit spf13/pflag's one-shot flag-set model (used by the
// teacher's CLI, see internal/cli/create.go there; not used in this repo).
// A hand-rolled left-to-right scanner is used here instead; see
// DESIGN.md.
type options struct {
	showHelp    bool
	showVersion bool

	infiles []session.OpenSpec

	readWrite bool
	create    bool

	allowIK *bool

	singleCmds string
	dumpMode   bool
	packMode   bool
	diffMode   bool

	start *int64
	length *int64

	outPath string

	bits        bool
	cols        *int
	group       *int
	plain       bool
	noLineTerm  bool
	groupFormat string

	unique     bool
	assumeTTYs bool

	pedantic   bool
	permissive bool
	strict     *bool

	backupDepth *int
	backupMax   bool
	backupSync  bool

	recover     bool
	autoRecover bool

	tracePath string
}

func parseArgs(progName string, args []string) (*options, error) {
	o := &options{}

	switch {
	case strings.HasSuffix(progName, "view"):
		o.readWrite = false
	case strings.HasSuffix(progName, "dump"), strings.HasSuffix(progName, "list"):
		o.dumpMode = true
	case strings.HasSuffix(progName, "pack"):
		o.packMode = true
	case strings.HasSuffix(progName, "diff"):
		o.diffMode = true
	}

	endOfOpts := false

	for i := 0; i < len(args); i++ {
		a := args[i]

		if endOfOpts || !strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "+") {
			o.addFile(a, -1)
			continue
		}

		need := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s: missing argument", a)
			}
			return args[i], nil
		}

		switch a {
		case "--":
			endOfOpts = true
		case "-h", "-help":
			o.showHelp = true
		case "-v", "-version":
			o.showVersion = true
		case "-license":
			o.showVersion = true
		case "-d":
			v, err := need()
			if err != nil {
				return nil, err
			}
			fd, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("-d: %w", err)
			}
			o.addFile("", fd)
		case "-r":
			o.readWrite, o.create = false, false
		case "-w":
			o.readWrite, o.create = true, true
		case "-W":
			o.readWrite, o.create = true, false
		case "-ik":
			t := true
			o.allowIK = &t
		case "+ik":
			f := false
			o.allowIK = &f
		case "-x":
			v, err := need()
			if err != nil {
				return nil, err
			}
			o.singleCmds = v
		case "-dump", "-list":
			o.dumpMode = true
		case "-pack":
			o.packMode = true
		case "-diff":
			o.diffMode = true
		case "-s":
			v, err := need()
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("-s: %w", err)
			}
			o.start = &n
		case "-l":
			v, err := need()
			if err != nil {
				return nil, err
			}
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("-l: %w", err)
			}
			o.length = &n
		case "-o":
			v, err := need()
			if err != nil {
				return nil, err
			}
			o.outPath = v
		case "-b":
			o.bits = true
		case "-c":
			v, err := need()
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("-c: %w", err)
			}
			o.cols = &n
		case "-g":
			v, err := need()
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("-g: %w", err)
			}
			o.group = &n
		case "-p":
			o.plain = true
		case "+lineterm":
			o.noLineTerm = true
		case "-format":
			v, err := need()
			if err != nil {
				return nil, err
			}
			if !strings.Contains(v, "%_g") {
				return nil, fmt.Errorf("-format: template must contain %%_g")
			}
			o.groupFormat = v
		case "-unique":
			o.unique = true
		case "+tty":
			o.assumeTTYs = true
		case "-pedantic":
			o.pedantic = true
		case "-permissive":
			o.permissive = true
		case "-strict":
			t := true
			o.strict = &t
		case "+strict":
			f := false
			o.strict = &f
		case "-backup":
			v, err := need()
			if err != nil {
				return nil, err
			}
			switch v {
			case "max":
				o.backupMax = true
			case "sync":
				o.backupSync = true
			default:
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 || n > settings.MaxBackupDepth {
					return nil, fmt.Errorf("-backup: depth must be 0..%d, \"max\", or \"sync\"", settings.MaxBackupDepth)
				}
				o.backupDepth = &n
			}
		case "-recover":
			o.recover = true
		case "-AutoRecover":
			o.autoRecover = true
		case "-trace":
			v, err := need()
			if err != nil {
				return nil, err
			}
			o.tracePath = v
		default:
			return nil, fmt.Errorf("unrecognized option %q", a)
		}
	}

	return o, nil
}

func (o *options) addFile(path string, fd int) {
	spec := session.OpenSpec{
		Path:      path,
		FD:        fd,
		ReadWrite: o.readWrite,
		Create:    o.create,
	}

	o.infiles = append(o.infiles, spec)
}

// applyTo layers the scanned options onto base settings, mirroring the
// rcfile-then-CLI-flags precedence documented on package settings.
func (o *options) applyTo(s *settings.Settings) {
	if o.allowIK != nil {
		s.AllowInsertKill = *o.allowIK
	}

	if o.bits {
		s.DisplayMode = codec.ModeBits
	}

	if o.cols != nil {
		if s.DisplayMode == codec.ModeBits {
			s.LineWidthBits = *o.cols
		} else {
			s.LineWidthHex = *o.cols
		}
	}

	if o.group != nil {
		s.GroupWidth = *o.group
	}

	if o.plain {
		s.Autoskip, s.Diffskip, s.TextColumn, s.Ruler, s.Prefix = false, false, false, false, false
	}

	if o.noLineTerm {
		s.LineTerminator = ""
	}

	if o.groupFormat != "" {
		applyGroupFormat(s, o.groupFormat)
	}

	if o.unique {
		s.AssumeUnique = true
	}

	if o.assumeTTYs {
		s.AssumeTTYs = true
	}

	if o.pedantic {
		s.Pedantic, s.Permissive = true, false
	}

	if o.permissive {
		s.Permissive, s.Pedantic = true, false
	}

	if o.strict != nil {
		s.Strict = *o.strict
	}

	if o.backupDepth != nil {
		s.BackupDepth = *o.backupDepth
	}

	if o.backupMax {
		s.BackupDepth = settings.MaxBackupDepth
	}

	if o.backupSync {
		s.BackupSync = true
	}

	if o.recover {
		s.RecoverOnStart = true
	}

	if o.autoRecover {
		s.AutoRecover = true
	}

	if o.tracePath != "" {
		s.TracePath = o.tracePath
	}

	if o.singleCmds != "" {
		s.SingleCommand = o.singleCmds
	}

	s.PackMode = o.packMode
}

// applyGroupFormat splits a "-format" template around its mandatory "%_g"
// group-delimiter marker and optional "%_l?" start-of-line marker
// (spec.md §6).
func applyGroupFormat(s *settings.Settings, tmpl string) {
	pre, post, found := strings.Cut(tmpl, "%_g")
	if !found {
		return
	}

	if _, lrest, ok := strings.Cut(pre, "%_l?"); ok {
		s.GroupPreDelim = lrest
	} else {
		s.GroupPreDelim = pre
	}

	s.GroupInterDelim = post
}

// dumpDiffCommand builds the equivalent "-x" command string for -dump,
// -list, or -diff, honoring -s/-l overrides (spec.md §6).
func (o *options) dumpDiffCommand() string {
	start := "0"
	if o.start != nil {
		start = fmt.Sprintf("%#x", *o.start)
	}

	length := "max"
	if o.length != nil {
		length = fmt.Sprintf("%#x", *o.length)
	}

	if o.diffMode {
		return fmt.Sprintf("$0@%s:%s~$1@%s:%s", start, length, start, length)
	}

	return fmt.Sprintf("%s:%s", start, length)
}
