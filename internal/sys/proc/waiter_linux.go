//go:build linux
// +build linux

package proc

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Gone reports whether err from NewExitWaiter means the process existed but
// is no longer present (ESRCH), as opposed to an invalid pid or a
// permission failure.
func Gone(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

// ExitWaiter waits for a non-child process to terminate using a pidfd, so
// no polling of /proc is involved: the fd becomes readable exactly once,
// when the process exits.
type ExitWaiter struct {
	pidfd int
}

// NewExitWaiter opens a pidfd for the target process. Fails (ESRCH) if the
// process is already gone.
func NewExitWaiter(pid int) (*ExitWaiter, error) {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, fmt.Errorf("pidfd_open %d: %w", pid, err)
	}
	return &ExitWaiter{pidfd: fd}, nil
}

// Wait blocks until the process exits or ctx is cancelled. Cancellation is
// delivered through a pipe polled alongside the pidfd, so the poll itself
// stays a single one-shot primitive.
func (w *ExitWaiter) Wait(ctx context.Context) error {
	var pipeFDs [2]int
	if err := unix.Pipe(pipeFDs[:]); err != nil {
		return fmt.Errorf("create cancel pipe: %w", err)
	}
	defer unix.Close(pipeFDs[0]) //nolint:errcheck
	defer unix.Close(pipeFDs[1]) //nolint:errcheck

	waitDone := make(chan struct{})
	defer close(waitDone)
	go func() {
		select {
		case <-ctx.Done():
			_, _ = unix.Write(pipeFDs[1], []byte{0})
		case <-waitDone:
		}
	}()

	fds := []unix.PollFd{
		{Fd: int32(w.pidfd), Events: unix.POLLIN},
		{Fd: int32(pipeFDs[0]), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll pidfd: %w", err)
		}
		if fds[0].Revents != 0 {
			return nil
		}
		if fds[1].Revents != 0 {
			return ctx.Err()
		}
	}
}

// Close releases the pidfd.
func (w *ExitWaiter) Close() error {
	return unix.Close(w.pidfd)
}
