package errors

import (
	stderrors "errors"
	"fmt"
)

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")

	// ErrNothingToDo reports a command that completed without any work to perform.
	ErrNothingToDo = fmt.Errorf("nothing to do")

	// ErrNotModified is returned by fetchers when the remote file is not newer than the watermark.
	ErrNotModified = fmt.Errorf("not modified")

	// Hook errors.
	ErrHookExecution = fmt.Errorf("error executing script")
	ErrHookScript    = fmt.Errorf("script error")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is a shorthand for the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a shorthand for the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New is a shorthand for the standard library errors.New.
func New(text string) error {
	return stderrors.New(text)
}
