// Package window bounds the measurement interval to a guest-defined
// milestone, pausing and resuming guest execution around it.
package window

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// State is the synchronizer's position in its lifecycle.
type State int32

const (
	// Idle is the initial state; the guest has not been resumed yet.
	Idle State = iota
	// Resumed means the guest is executing toward the milestone.
	Resumed
	// AwaitingMilestone means the milestone subscription is armed and the
	// run is suspended on it.
	AwaitingMilestone
	// Stopped means the guest was paused after the milestone fired.
	Stopped
	// Complete means the guest was resumed again and the control session
	// released; the rest of the run depends only on process lifecycle.
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resumed:
		return "resumed"
	case AwaitingMilestone:
		return "awaiting-milestone"
	case Stopped:
		return "stopped"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// EventWaiter is a single-shot milestone subscription.
type EventWaiter interface {
	WaitEvent(ctx context.Context) error
}

// Session is the slice of the control client the synchronizer drives.
type Session interface {
	Execute(ctx context.Context, cmd string, args any) (json.RawMessage, error)
	SubscribeEvent(event string) EventWaiter
	Disconnect() error
}

// Synchronizer drives the guest through the trace window. Probe targets must
// be set before Run, so every scheduling event after the initial resume is
// attributable.
type Synchronizer struct {
	log       zerolog.Logger
	sess      Session
	milestone string
	state     atomic.Int32
}

// New creates a synchronizer in the Idle state.
func New(sess Session, milestone string, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		log:       logger.With().Str("component", "window").Logger(),
		sess:      sess,
		milestone: milestone,
	}
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	return State(s.state.Load())
}

func (s *Synchronizer) transition(to State) {
	s.state.Store(int32(to))
	s.log.Debug().Stringer("state", to).Msg("window state")
}

// Run resumes the guest, suspends until the milestone event fires, pauses
// the guest to bound the window, then resumes it for good and releases the
// control session.
//
// If the milestone never fires, Run suspends indefinitely; there is no
// internal timeout. Callers needing a bound must cancel ctx.
func (s *Synchronizer) Run(ctx context.Context) error {
	// Subscribe before resuming so the event cannot fire into a gap.
	milestone := s.sess.SubscribeEvent(s.milestone)

	if _, err := s.sess.Execute(ctx, "cont", nil); err != nil {
		return fmt.Errorf("resume guest: %w", err)
	}
	s.transition(Resumed)

	s.transition(AwaitingMilestone)
	s.log.Info().Str("event", s.milestone).Msg("waiting for guest milestone")
	if err := milestone.WaitEvent(ctx); err != nil {
		return fmt.Errorf("await milestone %s: %w", s.milestone, err)
	}

	if _, err := s.sess.Execute(ctx, "stop", nil); err != nil {
		return fmt.Errorf("pause guest at milestone: %w", err)
	}
	s.transition(Stopped)

	if _, err := s.sess.Execute(ctx, "cont", nil); err != nil {
		return fmt.Errorf("resume guest after milestone: %w", err)
	}

	// The window is bounded; nothing else needs the control session, so
	// release it now and depend only on OS process lifecycle.
	if err := s.sess.Disconnect(); err != nil {
		return fmt.Errorf("release control session: %w", err)
	}
	s.transition(Complete)

	return nil
}
