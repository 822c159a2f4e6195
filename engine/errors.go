package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvocation matches every *InvocationError.
var ErrInvocation = errors.New("engine invocation failed")

// InvocationError reports a failed engine call with enough context to
// diagnose it: the operation, the argument vector (never containing
// secrets), the exit status and whatever the engine wrote to stderr.
type InvocationError struct {
	Op       string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Op)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit status %d)", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	}
	return b.String()
}

func (e *InvocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvocation}
	}
	return []error{ErrInvocation, e.Err}
}
