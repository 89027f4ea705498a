// Package artifact reshapes drained probe counts into the per-run report
// and serializes it for the downstream visualization tooling.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schedscope/schedscope/internal/probe"
	"github.com/schedscope/schedscope/internal/safe"
	"github.com/schedscope/schedscope/internal/sys/proc"
	"github.com/schedscope/schedscope/internal/vcpu"
)

// FilePrefix is the artifact filename prefix the downstream tooling globs
// for.
const FilePrefix = "trace_vcpu_sched-"

// ThreadReport is one host thread's share of the run: its vCPU core index
// and its per-host-CPU scheduling counts. Threads that received no events
// keep an empty (not nil) Scheds map.
type ThreadReport struct {
	VCPU   int               `json:"vcpu"`
	Scheds map[string]uint64 `json:"scheds"`
}

// Run is the run artifact: host thread ID (stringified) to report. Written
// once at the end of a run, immutable thereafter.
type Run map[string]*ThreadReport

// ProcessLookupError reports that the traced process was gone before the
// exit wait could be established.
type ProcessLookupError struct {
	PID int
	Err error
}

func (e *ProcessLookupError) Error() string {
	return fmt.Sprintf("process %d: %v", e.PID, e.Err)
}

func (e *ProcessLookupError) Unwrap() error { return e.Err }

// UnknownThreadError reports a drained key whose thread ID was never
// registered as a target. The kernel-side filter should make this
// impossible; seeing it means a filter or correlation bug, so it is
// surfaced rather than dropped.
type UnknownThreadError struct {
	TID uint32
}

func (e *UnknownThreadError) Error() string {
	return fmt.Sprintf("drained counts for unregistered thread %d", e.TID)
}

// AwaitExit blocks until the process terminates or ctx is cancelled. A
// process that existed but exited before the call counts as terminated; a
// pid that never named a process is a lookup failure.
func AwaitExit(ctx context.Context, pid int) error {
	if pid <= 0 {
		return &ProcessLookupError{PID: pid, Err: fmt.Errorf("pid must be positive")}
	}

	w, err := proc.NewExitWaiter(pid)
	if err != nil {
		// ESRCH is the exit race between the trace window and this
		// call; anything else means the pid was never valid here.
		if proc.Gone(err) && !proc.Alive(pid) {
			return nil
		}
		return &ProcessLookupError{PID: pid, Err: err}
	}
	defer w.Close() //nolint:errcheck

	return w.Wait(ctx)
}

// Drain attributes every drained count to its owning thread report. The
// result contains exactly one entry per target, including threads with zero
// events.
func Drain(counts []probe.Count, targets []vcpu.TargetThread) (Run, error) {
	byTID := make(map[uint32]*ThreadReport, len(targets))
	run := make(Run, len(targets))

	for _, tgt := range targets {
		report := &ThreadReport{
			VCPU:   tgt.Core,
			Scheds: make(map[string]uint64),
		}
		byTID[tgt.TID] = report
		run[strconv.FormatUint(uint64(tgt.TID), 10)] = report
	}

	for _, c := range counts {
		tid, cpu := probe.UnpackKey(c.Key)
		report, ok := byTID[tid]
		if !ok {
			return nil, &UnknownThreadError{TID: tid}
		}
		report.Scheds[strconv.FormatUint(uint64(cpu), 10)] = c.Value
	}

	return run, nil
}

// Path builds the collision-free artifact path for a run: the traced pid and
// the generation time keep concurrent runs against different guests apart.
func Path(dir string, pid int, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d-%d.json", FilePrefix, pid, now.Unix()))
}

// Write serializes the run artifact as indented JSON and writes it
// atomically. Map keys are emitted in sorted order, so output is
// deterministic for a given run.
func Write(run Run, path string) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run artifact: %w", err)
	}

	if err := safe.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write run artifact: %w", err)
	}

	return nil
}
