package probe

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned on platforms without the kernel probe
// interface.
var ErrNotSupported = errors.New("probe: only supported on linux")

// ErrNotAttached is returned by operations that require a loaded probe.
var ErrNotAttached = errors.New("probe: not attached")

// LoadError reports a failure to load or attach the scheduler probe, e.g.
// missing privileges or an unsupported kernel. No fallback probe exists;
// callers must abort the run.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("probe: %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
