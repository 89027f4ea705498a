package qmp

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a disconnected client.
var ErrClosed = errors.New("qmp: client closed")

// ConnectionError reports a failure to establish or keep a control session.
type ConnectionError struct {
	SocketPath string
	Op         string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("qmp: %s %s: %v", e.Op, e.SocketPath, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError is the error payload QEMU returns for a rejected command.
type CommandError struct {
	Class   string `json:"class"`
	Desc    string `json:"desc"`
	Command string `json:"-"`
}

func (e *CommandError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("qmp: command %q failed: %s: %s", e.Command, e.Class, e.Desc)
	}
	return fmt.Sprintf("qmp: %s: %s", e.Class, e.Desc)
}
