package qmp

import "encoding/json"

// greeting is the server banner QEMU sends on connect, before the client may
// issue commands.
type greeting struct {
	Version struct {
		QEMU struct {
			Major int `json:"major"`
			Minor int `json:"minor"`
			Micro int `json:"micro"`
		} `json:"version"`
		Package string `json:"package"`
	} `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// Timestamp is the event timestamp QEMU attaches to asynchronous events.
type Timestamp struct {
	Seconds      int64 `json:"seconds"`
	Microseconds int64 `json:"microseconds"`
}

// Event is an asynchronous QMP event.
type Event struct {
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
}

// command is the wire form of a QMP request.
type command struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
	ID        uint64 `json:"id"`
}

// message is the union of everything the server can send. Exactly one of the
// greeting, event, or response shapes is populated per line.
type message struct {
	QMP       *greeting       `json:"QMP,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *Timestamp      `json:"timestamp,omitempty"`
	Return    json.RawMessage `json:"return,omitempty"`
	Error     *CommandError   `json:"error,omitempty"`
	ID        *uint64         `json:"id,omitempty"`
}

// isResponse reports whether the message answers a command. QEMU responses
// carry either a return payload or an error object.
func (m *message) isResponse() bool {
	return len(m.Return) > 0 || m.Error != nil
}
