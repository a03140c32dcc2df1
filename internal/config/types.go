package config

import (
	"time"
)

// Config is the validated input of a supervision run. It is built once at
// startup and never mutated afterwards.
type Config struct {
	// Command is the executable followed by its arguments, run verbatim.
	Command []string

	// Interval is the wall-clock lifetime granted to each child.
	Interval time.Duration

	// Restart re-launches the child when it exits before Interval elapses.
	Restart bool

	// Verbose counts -v flags: 1 enables verbose output, 2+ debug output.
	Verbose int

	// Quiet suppresses normal (stdout) messages only.
	Quiet bool

	LogFormat string

	// LeaveRunning keeps the live child alive when cycler is interrupted.
	LeaveRunning bool

	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr string

	Workdir string
	Env     map[string]string
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Command != nil {
		dup.Command = append([]string(nil), c.Command...)
	}
	if c.Env != nil {
		dup.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			dup.Env[k] = v
		}
	}
	return &dup
}

// File mirrors the optional YAML configuration document. Pointer fields
// distinguish "absent" from the zero value so that only explicit settings
// are applied.
type File struct {
	Time         Duration          `yaml:"time"`
	Restart      *bool             `yaml:"restart"`
	Verbose      *int              `yaml:"verbose"`
	Quiet        *bool             `yaml:"quiet"`
	LogFormat    string            `yaml:"logFormat"`
	LeaveRunning *bool             `yaml:"leaveRunning"`
	MetricsAddr  string            `yaml:"metricsAddr"`
	Workdir      string            `yaml:"workdir"`
	Env          map[string]string `yaml:"env"`
	EnvFromFile  string            `yaml:"envFromFile"`
	Command      []string          `yaml:"command"`
}

// Apply copies every setting present in f onto c.
func (c *Config) Apply(f *File) {
	if c == nil || f == nil {
		return
	}
	if f.Time.IsSet() {
		c.Interval = f.Time.Duration
	}
	if f.Restart != nil {
		c.Restart = *f.Restart
	}
	if f.Verbose != nil {
		c.Verbose = *f.Verbose
	}
	if f.Quiet != nil {
		c.Quiet = *f.Quiet
	}
	if f.LogFormat != "" {
		c.LogFormat = f.LogFormat
	}
	if f.LeaveRunning != nil {
		c.LeaveRunning = *f.LeaveRunning
	}
	if f.MetricsAddr != "" {
		c.MetricsAddr = f.MetricsAddr
	}
	if f.Workdir != "" {
		c.Workdir = f.Workdir
	}
	if len(f.Env) > 0 {
		if c.Env == nil {
			c.Env = make(map[string]string, len(f.Env))
		}
		for k, v := range f.Env {
			c.Env[k] = v
		}
	}
	if len(f.Command) > 0 {
		c.Command = append([]string(nil), f.Command...)
	}
}
