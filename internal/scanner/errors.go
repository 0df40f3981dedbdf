package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked marks an attempt the source rejected.
	ErrBlocked = errors.New("source blocked the request")
	// ErrCoolingDown is returned while a connector sits out its cool-down window.
	ErrCoolingDown = errors.New("connector is cooling down")
	// ErrNoIdentity is returned when every identity was retired during a cycle.
	ErrNoIdentity = errors.New("no usable identity left")
)

// ExhaustedError reports a fetch that used its whole attempt budget.
type ExhaustedError struct {
	Source   string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Source, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s: gave up after %d attempts", e.Source, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// PanicError wraps a recovered connector panic.
type PanicError struct {
	Connector string
	Value     any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("connector %s panicked: %v", e.Connector, e.Value)
}

// Permanent marks panics as not worth retrying on the same identity.
func (e *PanicError) Permanent() bool { return true }
