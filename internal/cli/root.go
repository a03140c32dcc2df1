package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/cycler/internal/engine"
	"github.com/Paintersrp/cycler/internal/exitcode"
	"github.com/Paintersrp/cycler/internal/metrics"
	"github.com/Paintersrp/cycler/internal/report"
	"github.com/Paintersrp/cycler/internal/runtime"
	"github.com/Paintersrp/cycler/internal/runtime/process"
)

const rootLong = `cycler runs a command and force-kills it every --time interval,
launching a fresh instance after each kill. When the command exits on its
own before the interval elapses, cycler exits with the command's status
unless --restart is given, in which case the command is launched again.

Normal messages (spawns, kills, exits, restart decisions) go to stdout.
Verbose (-v) and debug (-vv) detail goes to stderr.`

const rootExample = `  cycler -t 10s -- ./server --port 8080
  cycler -t 1h20min -r -- ./worker
  cycler -c cycler.yaml -vv`

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{
		newRuntime: func() runtime.Runtime { return process.New() },
	}

	root := &cobra.Command{
		Use:     "cycler [flags] -- command [args...]",
		Short:   "Periodically kill and relaunch a command",
		Long:    rootLong,
		Example: rootExample,
		Version: version(),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, args)
		},
	}

	flags := root.Flags()
	// Everything after the command name belongs to the command.
	flags.SetInterspersed(false)
	flags.VarP(&ctx.interval, "time", "t", `Lifetime of each child before it is killed (e.g. 10, 10s, 1h20min3s, "2 days")`)
	flags.BoolVarP(&ctx.restart, "restart", "r", false, "Relaunch the command when it exits before the interval elapses")
	flags.CountVarP(&ctx.verbose, "verbose", "v", "Increase detail on stderr (-v verbose, -vv debug)")
	flags.BoolVarP(&ctx.quiet, "quiet", "q", false, "Suppress normal messages on stdout")
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Optional YAML file providing defaults for flags")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Output format for cycler's own messages: text or json (default text)")
	flags.BoolVar(&ctx.leaveRunning, "leave-running", false, "On interrupt, leave the live child running instead of killing it")
	flags.StringVar(&ctx.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitcode.InvalidConfig, err: err, usage: true}
	})
	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// version reports the module version stamped by the Go toolchain, falling
// back to "devel" with the VCS revision for local builds.
func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	v := info.Main.Version
	if v == "" || v == "(devel)" {
		v = "devel"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			rev := setting.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
			v += "+" + rev
			break
		}
	}
	return v
}

// Execute runs the CLI entrypoint and exits the process.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx stdcontext.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCodeFor(root.ExecuteContext(ctx), stderr)
}

// context carries flag values and collaborators for a single invocation.
type context struct {
	interval     durationFlag
	restart      bool
	verbose      int
	quiet        bool
	configPath   string
	logFormat    string
	leaveRunning bool
	metricsAddr  string

	newRuntime func() runtime.Runtime

	result engine.Result
}

func (c *context) run(cmd *cobra.Command, args []string) error {
	cfg, err := c.buildConfig(cmd.Flags(), args)
	if err != nil {
		return &exitError{code: exitcode.InvalidConfig, err: err, usage: true}
	}

	format, _ := report.ParseFormat(cfg.LogFormat)
	stderr := cmd.ErrOrStderr()
	rep := report.New(report.Options{
		Verbosity: report.Verbosity{Level: report.LevelFromCount(cfg.Verbose), Quiet: cfg.Quiet},
		Format:    format,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    stderr,
		Color:     format == report.FormatText && report.ColorEnabled(stderr),
	})

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = stdcontext.Background()
	}

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			return &exitError{code: exitcode.Abnormal, err: err}
		}
		metricsCtx, stopMetrics := stdcontext.WithCancel(runCtx)
		served := make(chan error, 1)
		go func() {
			served <- srv.Serve(metricsCtx)
		}()
		defer func() {
			stopMetrics()
			if err := <-served; err != nil {
				rep.Verbosef("metrics server: %v", err)
			}
		}()
		rep.Verbosef("serving metrics on http://%s/metrics", srv.Addr())
	}

	sup := engine.New(engine.Options{
		Command:      cfg.Command,
		Dir:          cfg.Workdir,
		Env:          cfg.Env,
		Interval:     cfg.Interval,
		Restart:      cfg.Restart,
		LeaveRunning: cfg.LeaveRunning,
	}, c.newRuntime(), rep)

	res, err := sup.Run(runCtx)
	c.result = res
	if rep.Failures() > 0 {
		fmt.Fprintf(stderr, "cycler: %d messages could not be written: %v\n", rep.Failures(), rep.Err())
	}

	var spawnErr *engine.SpawnError
	switch {
	case errors.As(err, &spawnErr):
		return &exitError{code: spawnErr.ExitCode(), err: err, reported: true}
	case res.Outcome == engine.OutcomeInterrupted:
		return &exitError{code: exitcode.Interrupted, err: err, reported: true}
	case err != nil:
		return &exitError{code: exitcode.Abnormal, err: err}
	}
	if code := res.ExitCode(); code != exitcode.Success {
		return &exitError{code: code, reported: true}
	}
	return nil
}

// exitError carries the process exit status out of cobra.
type exitError struct {
	code int
	err  error

	// reported marks errors the supervisor already announced.
	reported bool
	usage    bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCodeFor(err error, stderr io.Writer) int {
	if err == nil {
		return exitcode.Success
	}
	var exitErr *exitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "cycler: %v\n", err)
		return exitcode.Abnormal
	}
	if !exitErr.reported && exitErr.err != nil {
		fmt.Fprintf(stderr, "cycler: %v\n", exitErr.err)
		if exitErr.usage {
			fmt.Fprintln(stderr, "Run 'cycler --help' for usage.")
		}
	}
	return exitErr.code
}
