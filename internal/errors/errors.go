// Package errors defines the failure taxonomy shared by the bootstrap
// orchestrator, the execution environments and the idempotency ledger.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure. Kinds are strings so they read well in logs and
// JSON output.
type Kind string

const (
	// KindInsufficientFunds indicates the caller cannot pay for the operation.
	KindInsufficientFunds Kind = "InsufficientFunds"

	// KindConstructorRejected indicates the environment rejected the call or
	// its arguments (reverts, failed allowance checks, unknown artifacts).
	KindConstructorRejected Kind = "ConstructorRejected"

	// KindEnvironmentUnavailable indicates a transport failure or a
	// confirmation timeout. The commitment state of the call is unknown.
	KindEnvironmentUnavailable Kind = "EnvironmentUnavailable"

	// KindAlreadyInitialized indicates the exchange liquidity pool was
	// initialized before.
	KindAlreadyInitialized Kind = "AlreadyInitialized"

	// KindOwnershipAlreadyTransferred indicates the issuer is no longer owned
	// by the account attempting a privileged issuer call.
	KindOwnershipAlreadyTransferred Kind = "OwnershipAlreadyTransferred"

	// KindDependencyMissing indicates a step references a component that was
	// never created successfully.
	KindDependencyMissing Kind = "DependencyMissing"

	// KindLedgerUnavailable indicates the idempotency ledger could not be read
	// or written.
	KindLedgerUnavailable Kind = "LedgerUnavailable"

	// KindInvalidConfig indicates configuration could not be loaded or is
	// inconsistent.
	KindInvalidConfig Kind = "InvalidConfig"
)

// Sentinel values usable with errors.Is. They match any *Error of the same kind.
var (
	ErrInsufficientFunds           = &Error{Kind: KindInsufficientFunds}
	ErrConstructorRejected         = &Error{Kind: KindConstructorRejected}
	ErrEnvironmentUnavailable      = &Error{Kind: KindEnvironmentUnavailable}
	ErrAlreadyInitialized          = &Error{Kind: KindAlreadyInitialized}
	ErrOwnershipAlreadyTransferred = &Error{Kind: KindOwnershipAlreadyTransferred}
	ErrDependencyMissing           = &Error{Kind: KindDependencyMissing}
	ErrLedgerUnavailable           = &Error{Kind: KindLedgerUnavailable}
	ErrInvalidConfig               = &Error{Kind: KindInvalidConfig}
)

// Error is a classified failure of a single operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a classified error for op wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error for op with a formatted cause.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first classified error in err's chain, or
// the empty kind when err carries no classification.
func KindOf(err error) Kind {
	var se *StepError
	if stderrors.As(err, &se) && se.Kind != "" {
		return se.Kind
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StepError reports which bootstrap step failed, against which component, and why.
type StepError struct {
	Step      int
	Name      string
	Component string
	Kind      Kind
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) on %s failed: %s: %v", e.Step, e.Name, e.Component, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is lets errors.Is(stepErr, ErrEnvironmentUnavailable) match on the step's kind
// even when the cause was not a classified *Error.
func (e *StepError) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return e.Kind == t.Kind
}

// As is re-exported so callers importing this package under the name errors
// keep access to the standard helpers.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// IsErr mirrors the standard library errors.Is.
func IsErr(err, target error) bool { return stderrors.Is(err, target) }
