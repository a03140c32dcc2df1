package report

import (
	"io"
	"os"

	"golang.org/x/term"
)

// ColorEnabled reports whether w is a terminal that should receive coloured
// output. NO_COLOR (https://no-color.org) always disables colour.
func ColorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
