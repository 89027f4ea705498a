package window

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedscope/schedscope/internal/testutil"
)

type fakeWaiter struct {
	fire chan struct{}
}

func (w *fakeWaiter) WaitEvent(ctx context.Context) error {
	select {
	case <-w.fire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeSession struct {
	mu         sync.Mutex
	calls      []string
	execErr    map[string]error
	waiter     *fakeWaiter
	subscribed chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		execErr:    map[string]error{},
		waiter:     &fakeWaiter{fire: make(chan struct{})},
		subscribed: make(chan struct{}, 1),
	}
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) Execute(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	s.record(cmd)
	return json.RawMessage(`{}`), s.execErr[cmd]
}

func (s *fakeSession) SubscribeEvent(event string) EventWaiter {
	s.record("subscribe:" + event)
	s.subscribed <- struct{}{}
	return s.waiter
}

func (s *fakeSession) Disconnect() error {
	s.record("disconnect")
	return nil
}

func TestRun_DrivesFullWindow(t *testing.T) {
	sess := newFakeSession()
	sync := New(sess, "ACPI_DEVICE_OST", testutil.NewTestLogger(t))

	require.Equal(t, Idle, sync.State())

	done := make(chan error, 1)
	go func() { done <- sync.Run(context.Background()) }()

	<-sess.subscribed
	close(sess.waiter.fire)

	require.NoError(t, <-done)
	assert.Equal(t, Complete, sync.State())
	assert.Equal(t, []string{
		"subscribe:ACPI_DEVICE_OST",
		"cont",
		"stop",
		"cont",
		"disconnect",
	}, sess.Calls(), "subscription must be registered before the first resume")
}

func TestRun_MilestoneNeverFires(t *testing.T) {
	sess := newFakeSession()
	sync := New(sess, "ACPI_DEVICE_OST", testutil.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sync.Run(ctx) }()

	<-sess.subscribed

	// The run must stay suspended at the milestone wait.
	select {
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, AwaitingMilestone, sync.State())

	cancel()
	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "await milestone ACPI_DEVICE_OST")
	assert.NotContains(t, sess.Calls(), "stop", "guest must not be paused without the milestone")
}

func TestRun_ResumeFails(t *testing.T) {
	sess := newFakeSession()
	sess.execErr["cont"] = errors.New("guest gone")
	sync := New(sess, "ACPI_DEVICE_OST", testutil.NewTestLogger(t))

	err := sync.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume guest")
	assert.Equal(t, Idle, sync.State())
}

func TestRun_PauseFails(t *testing.T) {
	sess := newFakeSession()
	sess.execErr["stop"] = errors.New("rejected")
	sync := New(sess, "ACPI_DEVICE_OST", testutil.NewTestLogger(t))

	close(sess.waiter.fire)

	err := sync.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pause guest at milestone")
	assert.Equal(t, AwaitingMilestone, sync.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "state(99)", State(99).String())
}
