package erp

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable is returned when the ERP server cannot be reached at
	// the transport level. Callers may retry this error.
	ErrUnreachable = errors.New("ERP server unreachable")

	// ErrAuthFailed is returned when authentication is rejected by the ERP.
	ErrAuthFailed = errors.New("ERP authentication failed")
)

// CallError wraps a failed execute_kw invocation with the model and method
// that produced it.
type CallError struct {
	Model  string
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("ERP call %s.%s failed: %v", e.Model, e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// ModuleMissingError is returned by RequireModel when an optional ERP
// module is not installed. The message is surfaced verbatim as the HTTP 503
// detail.
type ModuleMissingError struct {
	Model       string
	Module      string
	DisplayName string
}

func (e *ModuleMissingError) Error() string {
	return fmt.Sprintf("%s module (%s) is not installed in Odoo", e.DisplayName, e.Module)
}

// IsModuleMissing checks whether err is a ModuleMissingError.
func IsModuleMissing(err error) bool {
	var mm *ModuleMissingError
	return errors.As(err, &mm)
}
