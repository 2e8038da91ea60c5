package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors that can be used with errors.Is() for error type checking
var (
	// ErrConfig indicates missing or invalid credentials or tunables
	ErrConfig = errors.New("invalid configuration")

	// ErrAuthDenied indicates a command from a chat that is not the bound operator
	ErrAuthDenied = errors.New("unauthorized chat")

	// ErrStateCorrupted indicates the persisted state could not be decoded
	ErrStateCorrupted = errors.New("state file corrupted")

	// ErrCommitFailed indicates git add or git commit returned an error
	ErrCommitFailed = errors.New("commit failed")

	// ErrPushFailed indicates git push returned an error
	ErrPushFailed = errors.New("push failed")

	// ErrTransientNetwork indicates a polling or sending failure that is worth retrying
	ErrTransientNetwork = errors.New("transient network error")

	// ErrValidation indicates malformed command arguments
	ErrValidation = errors.New("invalid arguments")

	// ErrNotGitRepository indicates the working directory is not inside a git work tree
	ErrNotGitRepository = errors.New("not a git repository")

	// ErrLockTimeout indicates the state lock could not be acquired in time
	ErrLockTimeout = errors.New("timed out waiting for state lock")
)

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Errorf creates a new formatted error.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Wrap wraps an error with a message for better context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message for better context.
func Wrapf(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether target is in err's chain.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GitError represents a failed git invocation together with its output.
type GitError struct {
	Operation string
	Args      []string
	Err       error
	Output    string
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Operation)
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// NewGitError creates a new GitError with the given parameters.
func NewGitError(operation string, args []string, err error, output string) *GitError {
	return &GitError{
		Operation: operation,
		Args:      args,
		Err:       err,
		Output:    output,
	}
}

// ConfigError names the configuration parameter that failed validation.
type ConfigError struct {
	Parameter string
	Value     any
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("configuration error for %s = %v: %v", e.Parameter, e.Value, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %v", e.Parameter, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError wrapping ErrConfig when err is nil.
func NewConfigError(parameter string, value any, err error) *ConfigError {
	if err == nil {
		err = ErrConfig
	} else if !errors.Is(err, ErrConfig) {
		err = fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return &ConfigError{
		Parameter: parameter,
		Value:     value,
		Err:       err,
	}
}

// ValidationError carries the usage line to show the operator.
type ValidationError struct {
	Usage  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError.
func NewValidationError(usage, reason string) *ValidationError {
	return &ValidationError{Usage: usage, Reason: reason}
}
