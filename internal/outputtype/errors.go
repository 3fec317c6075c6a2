package outputtype

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRegistry = errors.New("invalid output type registry")
	ErrCycle           = errors.New("dependency cycle")
	ErrUnknownType     = errors.New("unknown output type")
)

// RegistryError wraps deterministic registry validation failures.
type RegistryError struct {
	Kind error
	Msg  string
}

func (e *RegistryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *RegistryError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &RegistryError{Kind: ErrInvalidRegistry, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &RegistryError{Kind: ErrCycle, Msg: msg}
}
