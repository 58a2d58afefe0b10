// Package cli implements the Session Controller's external surface from
// spec.md §6: argument scanning, program-name aliasing, the three batch
// shorthands (-dump/-diff/-pack), -recover, and the interactive prompt,
// following the thin main/fat Run split the teacher's cmd/tk uses (see
// _examples/calvinalkan-agent-task/cmd/tk/main.go and internal/cli/run.go).
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hexpeek/hexpeek/internal/backup"
	"github.com/hexpeek/hexpeek/internal/command"
	"github.com/hexpeek/hexpeek/internal/session"
	"github.com/hexpeek/hexpeek/internal/settings"

	"github.com/peterh/liner"
)

// Exit codes, spec.md §6.
const (
	ExitOK          = 0
	ExitDiffFound   = 1
	ExitStop        = 2
	ExitUnspecified = 3
	ExitUserError   = 4
	ExitCritical    = 5
)

// Run parses argv, opens infiles, and drives the session to completion,
// returning the process exit code. It never calls os.Exit itself so tests
// can invoke it directly.
func Run(stdin io.Reader, stdout, errOut io.Writer, args []string, env map[string]string) int {
	progName := programName(args)

	opts, err := parseArgs(progName, args[1:])
	if err != nil {
		fmt.Fprintln(errOut, "hexpeek:", err)
		return ExitUserError
	}

	if opts.showHelp {
		fmt.Fprint(stdout, usageText)
		return ExitOK
	}

	if opts.showVersion {
		fmt.Fprintln(stdout, "hexpeek (spec.md reimplementation)")
		return ExitOK
	}

	base, _, err := settings.LoadRCFile(settings.Default(), env)
	if err != nil {
		fmt.Fprintln(errOut, "hexpeek:", err)
		return ExitCritical
	}

	opts.applyTo(&base)

	if opts.cols == nil && !opts.plain && !base.AssumeTTYs {
		base.RecomputeLineWidths(terminalColumns(stdout))
	}

	if opts.strict == nil {
		base.Strict = opts.singleCmds != "" || opts.dumpMode || opts.diffMode || opts.packMode
	}

	if opts.outPath != "" {
		of, err := os.Create(opts.outPath)
		if err != nil {
			fmt.Fprintln(errOut, "hexpeek:", err)
			return ExitCritical
		}
		defer of.Close()
		stdout = of
	}

	sess := session.New(base, stdout, errOut)
	sess.Env = env

	if opts.tracePath != "" {
		tf, err := os.Create(opts.tracePath)
		if err != nil {
			fmt.Fprintln(errOut, "hexpeek: trace:", err)
			return ExitCritical
		}
		defer tf.Close()
		sess.Trace = tf
	}

	defer sess.CloseAll()

	for i, spec := range opts.infiles {
		if err := sess.Open(i, spec); err != nil {
			fmt.Fprintln(errOut, "hexpeek:", err)
			return ExitCritical
		}
	}

	if opts.recover || base.AutoRecover {
		if err := runRecover(sess, errOut); err != nil {
			fmt.Fprintln(errOut, "hexpeek: recover:", err)
			return ExitCritical
		}
	}

	switch {
	case opts.packMode:
		return runPack(sess, stdin, errOut)
	case opts.singleCmds != "":
		return runBatch(sess, opts.singleCmds, errOut)
	case opts.dumpMode, opts.diffMode:
		return runBatch(sess, opts.dumpDiffCommand(), errOut)
	default:
		return runInteractive(sess, stdin, stdout, errOut)
	}
}

func runRecover(sess *session.Session, errOut io.Writer) error {
	for i, inf := range sess.Files {
		bf := sess.Backups[i]
		if inf == nil || bf == nil {
			continue
		}

		actions, err := sess.Ledger.Recover(inf.File, bf)
		if err != nil {
			return err
		}

		for _, a := range actions {
			fmt.Fprintf(errOut, "recovered $%d slot=%d status=%v\n", i, a.OpIndex, a.Op.Status)
		}
	}

	return nil
}

// runBatch runs a semicolon-delimited command string and classifies the
// first failure per spec.md §7.
func runBatch(sess *session.Session, cmds string, errOut io.Writer) int {
	for _, c := range strings.Split(cmds, ";") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}

		if err := sess.Execute(c, false); err != nil {
			fmt.Fprintln(errOut, "hexpeek:", err)

			if sess.Settings.Strict {
				return classifyError(err)
			}
		}

		if sess.Stop {
			return ExitStop
		}
	}

	if sess.LastDiffFound {
		return ExitDiffFound
	}

	return ExitOK
}

// runPack reads a previously rendered dump from stdin and writes the
// reconstructed binary into infile 0 (spec.md §4.7 pack mode).
func runPack(sess *session.Session, stdin io.Reader, errOut io.Writer) int {
	data, err := sess.Printer.Pack(stdin)
	if err != nil {
		fmt.Fprintln(errOut, "hexpeek: pack:", err)
		return ExitUserError
	}

	inf := sess.Files[0]
	if inf == nil {
		fmt.Fprintln(errOut, "hexpeek: pack: no infile open")
		return ExitUserError
	}

	if err := sess.FS.Truncate(inf.File, int64(len(data))); err != nil {
		fmt.Fprintln(errOut, "hexpeek: pack:", err)
		return ExitCritical
	}

	if err := sess.FS.WriteAt(inf.File, 0, data); err != nil {
		fmt.Fprintln(errOut, "hexpeek: pack:", err)
		return ExitCritical
	}

	return ExitOK
}

// runInteractive drives the liner-backed prompt loop, matching the
// teacher's REPL shape (see sloty's Run) adapted to hexpeek's single
// implicit '+' default for an empty line (spec.md §4.3).
func runInteractive(sess *session.Session, stdin io.Reader, stdout, errOut io.Writer) int {
	exitCode := ExitOK

	// AssumeTTYs is set by +tty, which makes stdin and stdout count as
	// non-terminals.
	if sess.Settings.EditableConsole && !sess.Settings.AssumeTTYs && isTerminal(stdin) {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		histPath := historyFilePath()
		if f, err := os.Open(histPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}

		for !sess.Quit && !sess.Stop {
			text, err := line.Prompt("hexpeek> ")
			if err != nil {
				if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
					break
				}

				fmt.Fprintln(errOut, "hexpeek:", err)
				exitCode = ExitCritical

				break
			}

			if strings.TrimSpace(text) != "" {
				line.AppendHistory(text)
			}

			if err := sess.Execute(text, true); err != nil {
				fmt.Fprintln(errOut, "hexpeek:", err)
			}
		}

		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}

		return exitCode
	}

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() && !sess.Quit && !sess.Stop {
		text := scanner.Text()
		if err := sess.Execute(text, false); err != nil {
			fmt.Fprintln(errOut, "hexpeek:", err)

			if sess.Settings.Strict {
				return classifyError(err)
			}
		}
	}

	if sess.Stop {
		return ExitStop
	}

	return ExitOK
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hexpeek_history"
	}

	return filepath.Join(home, ".hexpeek_history")
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}

	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}

// classifyError maps an error returned from command execution to the
// exit-code taxonomy of spec.md §7.
func classifyError(err error) int {
	switch {
	case errors.Is(err, command.ErrMalformedCommand),
		errors.Is(err, command.ErrIllegalCommand),
		errors.Is(err, command.ErrAmbiguousDiff):
		return ExitUserError
	case errors.Is(err, backup.ErrCorruptRecord),
		errors.Is(err, backup.ErrSizeMismatch):
		return ExitCritical
	default:
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return ExitUserError
		}

		return ExitCritical
	}
}

func programName(args []string) string {
	if len(args) == 0 {
		return "hexpeek"
	}

	return filepath.Base(args[0])
}
