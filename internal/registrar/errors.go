package registrar

import "errors"

// Process exit codes.
const (
	ExitOK              = 0
	ExitVersionNotFound = 1
	ExitFailure         = 2
)

// ErrVersionNotFound means the console lists no pageserver for the region.
var ErrVersionNotFound = errors.New("pageserver version not found for region")

// ExitCode maps the error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrVersionNotFound):
		return ExitVersionNotFound
	default:
		return ExitFailure
	}
}
