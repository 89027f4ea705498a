//go:build linux
// +build linux

package probe

import (
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/rs/zerolog"
)

// Controller owns the scheduler probe and its kernel-resident maps for the
// lifetime of a run.
type Controller struct {
	log zerolog.Logger

	mu   sync.Mutex
	coll *ebpf.Collection
	tp   link.Link
}

// NewController creates a detached controller.
func NewController(logger zerolog.Logger) *Controller {
	return &Controller{
		log: logger.With().Str("component", "probe").Logger(),
	}
}

// Attach loads the sched_switch program and attaches it to the scheduler
// tracepoint. Resources acquired before a failure are released; callers
// should still defer Detach so teardown runs on every exit path.
func (c *Controller) Attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coll != nil {
		return &LoadError{Stage: "attach", Err: fmt.Errorf("already attached")}
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return &LoadError{Stage: "remove memlock limit", Err: err}
	}

	offset, size, err := eventFieldOffset("sched", "sched_switch", "next_pid")
	if err != nil {
		return &LoadError{Stage: "locate next_pid in tracepoint format", Err: err}
	}
	if size != 4 {
		return &LoadError{Stage: "locate next_pid in tracepoint format",
			Err: fmt.Errorf("unexpected field size %d", size)}
	}

	spec, err := collectionSpec(offset)
	if err != nil {
		return &LoadError{Stage: "assemble program", Err: err}
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return &LoadError{Stage: "load program", Err: err}
	}

	tp, err := link.Tracepoint("sched", "sched_switch", coll.Programs[progName], nil)
	if err != nil {
		coll.Close()
		return &LoadError{Stage: "attach tracepoint", Err: err}
	}

	c.coll = coll
	c.tp = tp
	c.log.Info().Int("next_pid_offset", offset).Msg("scheduler probe attached")
	return nil
}

// SetTargets writes the full thread filter set. Writes after attachment are
// immediately visible to the running probe; there is no separate activation
// step. Call before resuming the guest so no event of interest precedes the
// filter.
func (c *Controller) SetTargets(tids []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coll == nil {
		return ErrNotAttached
	}

	m := c.coll.Maps[targetMapName]
	for _, tid := range tids {
		if err := m.Put(tid, uint8(1)); err != nil {
			return fmt.Errorf("probe: set target thread %d: %w", tid, err)
		}
	}

	c.log.Info().Int("targets", len(tids)).Msg("thread filter seeded")
	return nil
}

// ReadCounts enumerates the aggregation map without mutating it. The probe
// keeps writing while attached, so a read before the traced process exits is
// a per-key snapshot with no cross-key consistency.
func (c *Controller) ReadCounts() ([]Count, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coll == nil {
		return nil, ErrNotAttached
	}

	var (
		counts []Count
		key    uint64
		value  uint64
	)
	iter := c.coll.Maps[countsMapName].Iterate()
	for iter.Next(&key, &value) {
		counts = append(counts, Count{Key: key, Value: value})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("probe: enumerate counts: %w", err)
	}

	return counts, nil
}

// Detach releases the tracepoint link and kernel maps. Idempotent; safe
// after a failed Attach.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tp != nil {
		if err := c.tp.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close tracepoint link")
		}
		c.tp = nil
	}
	if c.coll != nil {
		c.coll.Close()
		c.coll = nil
		c.log.Debug().Msg("scheduler probe detached")
	}
}
