package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Paintersrp/cycler/internal/config"
)

const (
	envTime        = "CYCLER_TIME"
	envLogFormat   = "CYCLER_LOG_FORMAT"
	envMetricsAddr = "CYCLER_METRICS_ADDR"
)

// durationFlag accepts the human duration forms understood by
// config.ParseDuration. Zero and negative intervals are rejected at parse
// time so they are not mistaken for a missing --time.
type durationFlag struct {
	value time.Duration
}

func (f *durationFlag) String() string {
	if f.value == 0 {
		return ""
	}
	return f.value.String()
}

func (f *durationFlag) Set(s string) error {
	d, err := config.ParseInterval(s)
	if err != nil {
		return err
	}
	f.value = d
	return nil
}

func (f *durationFlag) Type() string {
	return "duration"
}

// buildConfig layers the optional YAML file, CYCLER_* environment defaults,
// explicitly set flags, and the positional command, then validates the
// result.
func (c *context) buildConfig(flags *pflag.FlagSet, args []string) (*config.Config, error) {
	cfg := &config.Config{}

	if c.configPath != "" {
		file, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg.Apply(file)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if flags.Changed("time") {
		cfg.Interval = c.interval.value
	}
	if flags.Changed("restart") {
		cfg.Restart = c.restart
	}
	if flags.Changed("verbose") {
		cfg.Verbose = c.verbose
	}
	if flags.Changed("quiet") {
		cfg.Quiet = c.quiet
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if flags.Changed("leave-running") {
		cfg.LeaveRunning = c.leaveRunning
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = c.metricsAddr
	}
	if len(args) > 0 {
		cfg.Command = append([]string(nil), args...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value := os.Getenv(envTime); value != "" {
		d, err := config.ParseInterval(value)
		if err != nil {
			return fmt.Errorf("%s: %w", envTime, err)
		}
		cfg.Interval = d
	}
	if value := os.Getenv(envLogFormat); value != "" {
		cfg.LogFormat = value
	}
	if value := os.Getenv(envMetricsAddr); value != "" {
		cfg.MetricsAddr = value
	}
	return nil
}
