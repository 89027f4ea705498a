// Package tracer composes the full measurement pipeline: control session,
// thread correlation, probe, trace window, and the final drain.
package tracer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/schedscope/schedscope/internal/artifact"
	"github.com/schedscope/schedscope/internal/config"
	"github.com/schedscope/schedscope/internal/errors"
	"github.com/schedscope/schedscope/internal/probe"
	"github.com/schedscope/schedscope/internal/qmp"
	"github.com/schedscope/schedscope/internal/safe"
	"github.com/schedscope/schedscope/internal/vcpu"
	"github.com/schedscope/schedscope/internal/window"
)

// Runner executes one trace run against one guest.
type Runner struct {
	cfg config.Config
	log zerolog.Logger
}

// New creates a runner.
func New(cfg config.Config, logger zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, log: logger}
}

// Run traces the guest with the given pid and returns the artifact path.
// Every stage failure aborts the run; the error names the stage and
// identifiers involved. The probe is detached on all exit paths.
func (r *Runner) Run(ctx context.Context, pid int) (string, error) {
	runID := uuid.NewString()[:8]
	log := r.log.With().Int("pid", pid).Str("run", runID).Logger()

	pid32, clamped := safe.IntToInt32(pid)
	if clamped {
		return "", fmt.Errorf("look up guest: %w",
			&artifact.ProcessLookupError{PID: pid, Err: fmt.Errorf("pid out of range")})
	}

	// Guest identity up front; also catches mistyped pids before the
	// socket wait can hang on a guest that will never appear.
	if p, err := process.NewProcessWithContext(ctx, pid32); err == nil {
		if name, err := p.NameWithContext(ctx); err == nil {
			log.Info().Str("process", name).Msg("tracing guest")
		}
	} else {
		return "", fmt.Errorf("look up guest: %w", &artifact.ProcessLookupError{PID: pid, Err: err})
	}

	client := qmp.NewClient(qmp.Config{
		Logger:       log,
		PollInterval: r.cfg.PollInterval.Std(),
	})
	// The synchronizer disconnects on success; this covers error paths.
	defer errors.DeferCleanup(log, client.Disconnect, "close control session")

	if err := client.Connect(ctx, r.cfg.SocketPath(pid)); err != nil {
		return "", fmt.Errorf("connect control socket: %w", err)
	}

	targets, err := vcpu.ResolveThreads(ctx, client)
	if err != nil {
		return "", fmt.Errorf("resolve vCPU threads: %w", err)
	}
	if len(targets) == 0 {
		return "", fmt.Errorf("resolve vCPU threads: guest %d reports no vCPUs", pid)
	}
	for _, tgt := range targets {
		log.Info().Uint32("tid", tgt.TID).Int("vcpu", tgt.Core).Msg("resolved vCPU thread")
	}

	ctrl := probe.NewController(log)
	if err := ctrl.Attach(); err != nil {
		return "", fmt.Errorf("attach scheduler probe: %w", err)
	}
	defer ctrl.Detach()

	if err := ctrl.SetTargets(vcpu.TIDs(targets)); err != nil {
		return "", fmt.Errorf("seed thread filter: %w", err)
	}

	sync := window.New(&controlSession{client: client}, r.cfg.MilestoneEvent, log)
	if err := sync.Run(ctx); err != nil {
		return "", fmt.Errorf("trace window: %w", err)
	}

	log.Info().Msg("waiting for guest process exit")
	if err := artifact.AwaitExit(ctx, pid); err != nil {
		return "", fmt.Errorf("await guest exit: %w", err)
	}

	counts, err := ctrl.ReadCounts()
	if err != nil {
		return "", fmt.Errorf("read schedule counts: %w", err)
	}

	run, err := artifact.Drain(counts, targets)
	if err != nil {
		return "", fmt.Errorf("drain schedule counts: %w", err)
	}

	path := artifact.Path(r.cfg.OutputDir, pid, time.Now())
	if err := artifact.Write(run, path); err != nil {
		return "", fmt.Errorf("serialize run artifact: %w", err)
	}

	log.Info().Str("artifact", path).Int("threads", len(targets)).Msg("run complete")
	return path, nil
}

// controlSession adapts the QMP client to the synchronizer's session
// interface.
type controlSession struct {
	client *qmp.Client
}

func (s *controlSession) Execute(ctx context.Context, cmd string, args any) (json.RawMessage, error) {
	return s.client.Execute(ctx, cmd, args)
}

func (s *controlSession) SubscribeEvent(event string) window.EventWaiter {
	return listenerWaiter{listener: s.client.SubscribeOnce(event)}
}

func (s *controlSession) Disconnect() error {
	return s.client.Disconnect()
}

type listenerWaiter struct {
	listener *qmp.Listener
}

func (w listenerWaiter) WaitEvent(ctx context.Context) error {
	_, err := w.listener.Wait(ctx)
	return err
}
