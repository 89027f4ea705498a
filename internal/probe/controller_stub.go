//go:build !linux
// +build !linux

package probe

import (
	"github.com/rs/zerolog"
)

// Controller is a stub for platforms without the kernel probe interface.
type Controller struct {
	log zerolog.Logger
}

// NewController creates a stub controller.
func NewController(logger zerolog.Logger) *Controller {
	return &Controller{log: logger}
}

// Attach always fails off-linux.
func (c *Controller) Attach() error {
	return &LoadError{Stage: "attach", Err: ErrNotSupported}
}

// SetTargets always fails off-linux.
func (c *Controller) SetTargets(tids []uint32) error {
	return ErrNotSupported
}

// ReadCounts always fails off-linux.
func (c *Controller) ReadCounts() ([]Count, error) {
	return nil, ErrNotSupported
}

// Detach is a no-op off-linux.
func (c *Controller) Detach() {}
