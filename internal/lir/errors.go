package lir

import (
	"fmt"

	"koan/internal/diag"
	"koan/internal/source"
)

// Error is a lowering or validation failure worth a user-facing
// diagnostic. The lowering walker aborts the current function at the
// first one; the driver converts it into a diag.Diagnostic and aborts
// the unit.
type Error struct {
	Code diag.Code
	Span source.Span
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Diagnostic renders the error for the diagnostics bag.
func (e *Error) Diagnostic() diag.Diagnostic {
	return diag.Diagnostic{
		Severity: diag.SevError,
		Code:     e.Code,
		Message:  e.Msg,
		Primary:  e.Span,
	}
}

func newError(code diag.Code, span source.Span, format string, args ...any) *Error {
	return &Error{Code: code, Span: span, Msg: fmt.Sprintf(format, args...)}
}
