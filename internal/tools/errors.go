// Package tools provides the tool registry, sandboxed execution, and
// chain running.
//
// This file defines the sentinel errors tool dispatch can fail with and
// their wire identifiers.
package tools

import "errors"

var (
	// ErrUnsafeCode means the code hit the safe-mode denylist and was
	// rejected before execution.
	ErrUnsafeCode = errors.New("code rejected by sandbox policy")

	// ErrTimeout means the sandbox process exceeded its deadline and
	// was killed.
	ErrTimeout = errors.New("execution timed out")

	// ErrSandbox covers process spawn failures, non-zero exits, and
	// oversized input.
	ErrSandbox = errors.New("sandbox failure")

	// ErrToolNotFound means the named tool is not in the registry or
	// its backing service is not configured. Callers should not retry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidPath means a path argument resolved outside the
	// project root.
	ErrInvalidPath = errors.New("path outside the project root")

	// ErrDisabled means the tool subsystem is switched off in config.
	ErrDisabled = errors.New("tools are disabled")
)

// Kind maps a dispatch error to its wire identifier. Unrecognized
// errors report as sandbox_error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsafeCode):
		return "unsafe_code"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, ErrDisabled):
		return "tools_disabled"
	default:
		return "sandbox_error"
	}
}
