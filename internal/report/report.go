// Package report routes cycler's diagnostic messages to stdout and stderr.
//
// Normal messages describe what the supervisor did (spawned, killed, exited,
// restarting) and go to stdout unless quiet is set. Verbose and debug messages
// describe internal scheduling and always go to stderr when the configured
// level allows them, regardless of quiet. A Reporter never returns write
// errors to its callers: supervision must not depend on whether a terminal or
// pipe is still accepting output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/xid"
)

// Level orders message tiers. A Verbosity with Level L shows every message
// whose level is <= L (normal messages are additionally gated by Quiet).
type Level int

const (
	LevelNormal Level = iota
	LevelVerbose
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelVerbose:
		return "verbose"
	case LevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// LevelFromCount converts the number of -v flags into a Level.
func LevelFromCount(n int) Level {
	switch {
	case n <= 0:
		return LevelNormal
	case n == 1:
		return LevelVerbose
	default:
		return LevelDebug
	}
}

// Verbosity is the immutable output configuration for one invocation.
type Verbosity struct {
	Level Level
	Quiet bool
}

// Enabled reports whether a message at level l is written at all.
func (v Verbosity) Enabled(l Level) bool {
	if l == LevelNormal {
		return !v.Quiet
	}
	return v.Level >= l
}

// Format selects how lines are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a user supplied format name. The empty string selects text.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported log format %q (want text or json)", value)
	}
}

const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
)

// Options configures a Reporter.
type Options struct {
	Verbosity Verbosity
	Format    Format
	Stdout    io.Writer
	Stderr    io.Writer

	// Color enables coloured level prefixes on stderr in text mode.
	Color bool

	// Session tags JSON records. A fresh xid is generated when empty.
	Session string
}

// Record is the JSON shape of a single reported line.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
	Session   string    `json:"session"`
	Cycle     int       `json:"cycle,omitempty"`
}

// Reporter is safe for concurrent use.
type Reporter struct {
	verbosity Verbosity
	format    Format
	stdout    io.Writer
	stderr    io.Writer
	session   string

	verbosePrefix string
	debugPrefix   string

	now func() time.Time

	mu       sync.Mutex
	cycle    int
	failures int
	firstErr error
}

// New builds a Reporter. Nil writers default to os.Stdout and os.Stderr.
func New(opts Options) *Reporter {
	r := &Reporter{
		verbosity: opts.Verbosity,
		format:    opts.Format,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		session:   opts.Session,
		now:       time.Now,
	}
	if r.format == "" {
		r.format = FormatText
	}
	if r.stdout == nil {
		r.stdout = os.Stdout
	}
	if r.stderr == nil {
		r.stderr = os.Stderr
	}
	if r.session == "" {
		r.session = xid.New().String()
	}

	verbose := color.New(color.FgCyan)
	debug := color.New(color.FgMagenta)
	if opts.Color {
		verbose.EnableColor()
		debug.EnableColor()
	} else {
		verbose.DisableColor()
		debug.DisableColor()
	}
	r.verbosePrefix = verbose.Sprint("verbose:")
	r.debugPrefix = debug.Sprint("debug:")
	return r
}

// Discard returns a Reporter that writes nothing. Useful in tests.
func Discard() *Reporter {
	return New(Options{
		Verbosity: Verbosity{Level: LevelDebug},
		Stdout:    io.Discard,
		Stderr:    io.Discard,
		Session:   "discard",
	})
}

// Verbosity returns the configuration the reporter was built with.
func (r *Reporter) Verbosity() Verbosity {
	return r.verbosity
}

// Session returns the identifier attached to JSON records.
func (r *Reporter) Session() string {
	return r.session
}

// Enabled reports whether messages at level l would be written.
func (r *Reporter) Enabled(l Level) bool {
	return r.verbosity.Enabled(l)
}

// SetCycle records the current supervision cycle number for JSON records.
func (r *Reporter) SetCycle(n int) {
	r.mu.Lock()
	r.cycle = n
	r.mu.Unlock()
}

// Emit writes msg at the given level. Messages filtered by the verbosity are
// dropped silently.
func (r *Reporter) Emit(level Level, msg string) {
	if !r.verbosity.Enabled(level) {
		return
	}
	msg = strings.TrimRight(msg, "\n")

	w, source := r.stderr, SourceStderr
	if level == LevelNormal {
		w, source = r.stdout, SourceStdout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var line string
	if r.format == FormatJSON {
		rec := Record{
			Timestamp: r.now(),
			Level:     level.String(),
			Message:   msg,
			Source:    source,
			Session:   r.session,
			Cycle:     r.cycle,
		}
		data, err := json.Marshal(&rec)
		if err != nil {
			r.recordFailure(fmt.Errorf("encode record: %w", err))
			return
		}
		line = string(data) + "\n"
	} else {
		switch level {
		case LevelVerbose:
			line = r.verbosePrefix + " " + msg + "\n"
		case LevelDebug:
			line = r.debugPrefix + " " + msg + "\n"
		default:
			line = msg + "\n"
		}
	}

	if _, err := io.WriteString(w, line); err != nil {
		r.recordFailure(fmt.Errorf("write %s: %w", source, err))
	}
}

func (r *Reporter) recordFailure(err error) {
	r.failures++
	if r.firstErr == nil {
		r.firstErr = err
	}
}

// Normalf reports an action taken by the supervisor.
func (r *Reporter) Normalf(format string, args ...any) {
	r.Emit(LevelNormal, fmt.Sprintf(format, args...))
}

// Verbosef reports scheduling detail.
func (r *Reporter) Verbosef(format string, args ...any) {
	if !r.verbosity.Enabled(LevelVerbose) {
		return
	}
	r.Emit(LevelVerbose, fmt.Sprintf(format, args...))
}

// Debugf reports low level detail such as race resolution.
func (r *Reporter) Debugf(format string, args ...any) {
	if !r.verbosity.Enabled(LevelDebug) {
		return
	}
	r.Emit(LevelDebug, fmt.Sprintf(format, args...))
}

// Err returns the first write failure, if any.
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

// Failures returns how many lines could not be written.
func (r *Reporter) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}
