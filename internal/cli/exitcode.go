package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgng/pkg/errors"
)

// Process exit statuses.
const (
	ExitOK          = 0
	ExitNothingToDo = 1
	ExitPartial     = 3
	ExitUsage       = 64
	ExitSoftware    = 70
	ExitIO          = 74
	ExitPermission  = 77
)

// ExitError carries the exit status a command wants along with its error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, errors.ErrNothingToDo) {
		return ExitNothingToDo
	}
	if kind, ok := errors.KindOf(err); ok {
		switch kind {
		case errors.KindIO:
			return ExitIO
		case errors.KindPermission:
			return ExitPermission
		}
	}
	return ExitSoftware
}

// usageArgs makes argument validation failures exit with ExitUsage.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
