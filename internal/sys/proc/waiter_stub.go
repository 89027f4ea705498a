//go:build !linux
// +build !linux

package proc

import (
	"context"
	"errors"
)

// ErrNotSupported is returned on platforms without pidfd support.
var ErrNotSupported = errors.New("proc: exit wait only supported on linux")

// Gone always reports false off-linux.
func Gone(err error) bool { return false }

// ExitWaiter is a stub for non-linux platforms.
type ExitWaiter struct{}

// NewExitWaiter always fails off-linux.
func NewExitWaiter(pid int) (*ExitWaiter, error) {
	return nil, ErrNotSupported
}

// Wait always fails off-linux.
func (w *ExitWaiter) Wait(ctx context.Context) error {
	return ErrNotSupported
}

// Close is a no-op off-linux.
func (w *ExitWaiter) Close() error { return nil }
