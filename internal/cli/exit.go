package cli

import (
	"errors"
	"fmt"

	"rnseaudit/internal/config"
	"rnseaudit/internal/core"
	"rnseaudit/internal/ledger"
)

const (
	ExitSuccess           = 0
	ExitVerifyFailure     = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError carries the exit code of a failed invocation.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// errMismatch marks a verification that ran but did not match.
var errMismatch = errors.New("verification failed")

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	var inv *InvocationError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &inv):
		return inv.ExitCode
	case errors.Is(err, errMismatch):
		return ExitVerifyFailure
	case errors.Is(err, ledger.ErrNotFound):
		return ExitInvalidInvocation
	case errors.Is(err, config.ErrConfig),
		errors.Is(err, core.ErrInvalidParams),
		errors.Is(err, core.ErrInvalidSeed),
		errors.Is(err, core.ErrMerkleBatchIncomplete):
		return ExitConfigError
	default:
		return ExitInternalError
	}
}
