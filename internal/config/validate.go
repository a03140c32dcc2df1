package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Paintersrp/cycler/internal/report"
)

// ValidationError collects every problem found in a Config. The supervisor
// is never started when one is returned.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

var (
	ErrMissingInterval = errors.New("time: required (for example --time=10s)")
	ErrMissingCommand  = errors.New("command: required")
)

// Validate checks that c describes a runnable supervision.
func (c *Config) Validate() error {
	if c == nil {
		return &ValidationError{Problems: []error{errors.New("configuration missing")}}
	}
	var problems []error

	switch {
	case c.Interval == 0:
		problems = append(problems, ErrMissingInterval)
	case c.Interval < 0:
		problems = append(problems, fmt.Errorf("time: must be positive, got %s", c.Interval))
	}

	if len(c.Command) == 0 || strings.TrimSpace(c.Command[0]) == "" {
		problems = append(problems, ErrMissingCommand)
	}

	if c.Verbose < 0 {
		problems = append(problems, fmt.Errorf("verbose: must not be negative, got %d", c.Verbose))
	}

	if _, err := report.ParseFormat(c.LogFormat); err != nil {
		problems = append(problems, fmt.Errorf("logFormat: %w", err))
	}

	if c.MetricsAddr != "" {
		if _, port, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			problems = append(problems, fmt.Errorf("metricsAddr: %w", err))
		} else if port == "" {
			problems = append(problems, fmt.Errorf("metricsAddr: missing port in %q", c.MetricsAddr))
		}
	}

	for k := range c.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			problems = append(problems, fmt.Errorf("env: invalid variable name %q", k))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
