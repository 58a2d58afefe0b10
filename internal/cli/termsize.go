package cli

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// terminalColumns reports the terminal width behind w via TIOCGWINSZ, or
// 0 if w is not a terminal. Settings.Default() assumes 80 columns; an
// interactive session with a wider terminal gets a wider default line
// width, matching the teacher's use of golang.org/x/sys/unix for raw
// ioctl calls in pkg/fs/real.go.
func terminalColumns(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}

	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0
	}

	return int(ws.Col)
}
