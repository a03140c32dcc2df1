// Package exitcode lists the process exit statuses cycler itself produces.
// When the supervised child exits early and no restart is configured, the
// child's own status is propagated instead.
package exitcode

const (
	Success          = 0
	Abnormal         = 1   // child ended without a usable exit code, or an unexpected error
	InvalidConfig    = 2   // flags, environment or config file rejected before supervision
	PermissionDenied = 126 // command found but not executable
	NotFound         = 127 // command not found
	Interrupted      = 130 // stopped by SIGINT/SIGTERM
)

// FromSignal maps a terminating signal number to the conventional shell
// status 128+n.
func FromSignal(n int) int {
	if n <= 0 {
		return Abnormal
	}
	return 128 + n
}
