// Package vcpu correlates guest vCPUs with the host threads implementing
// them, using the VM's control protocol.
package vcpu

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/schedscope/schedscope/internal/safe"
)

// TargetThread pairs one guest vCPU with its host thread. The set is
// immutable for a run; host thread IDs are unique within it.
type TargetThread struct {
	// TID is the host thread implementing the vCPU.
	TID uint32
	// Core is the vCPU's core index as reported by the guest topology.
	Core int
}

// MappingError reports incomplete vCPU metadata from the control protocol,
// which usually means a guest or protocol version mismatch.
type MappingError struct {
	Index int
	Field string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("vcpu: entry %d is missing %q; guest/protocol version mismatch?", e.Index, e.Field)
}

// executor is the slice of the control client this package needs.
type executor interface {
	Execute(ctx context.Context, cmd string, args any) (json.RawMessage, error)
}

// cpuInfo is one entry of the query-cpus-fast return value. Pointer fields
// distinguish absent from zero.
type cpuInfo struct {
	CPUIndex int  `json:"cpu-index"`
	ThreadID *int `json:"thread-id"`
	Props    struct {
		CoreID *int `json:"core-id"`
	} `json:"props"`
}

// ResolveThreads queries the VM for its active vCPUs and returns one
// TargetThread per entry, in protocol order. The caller must ensure the
// guest is not mutating vCPU topology while this runs.
func ResolveThreads(ctx context.Context, client executor) ([]TargetThread, error) {
	ret, err := client.Execute(ctx, "query-cpus-fast", nil)
	if err != nil {
		return nil, fmt.Errorf("query active vCPUs: %w", err)
	}

	var infos []cpuInfo
	if err := json.Unmarshal(ret, &infos); err != nil {
		return nil, fmt.Errorf("decode vCPU info: %w", err)
	}

	targets := make([]TargetThread, 0, len(infos))
	seen := make(map[uint32]struct{}, len(infos))

	for i, info := range infos {
		if info.ThreadID == nil {
			return nil, &MappingError{Index: i, Field: "thread-id"}
		}
		if info.Props.CoreID == nil {
			return nil, &MappingError{Index: i, Field: "props.core-id"}
		}

		tid, clamped := safe.IntToUint32(*info.ThreadID)
		if clamped {
			return nil, fmt.Errorf("vcpu: entry %d has thread-id %d outside the host TID range", i, *info.ThreadID)
		}

		if _, dup := seen[tid]; dup {
			return nil, fmt.Errorf("vcpu: duplicate host thread %d in vCPU list", tid)
		}
		seen[tid] = struct{}{}

		targets = append(targets, TargetThread{TID: tid, Core: *info.Props.CoreID})
	}

	return targets, nil
}

// TIDs returns the host thread IDs of targets, preserving order.
func TIDs(targets []TargetThread) []uint32 {
	tids := make([]uint32, len(targets))
	for i, tgt := range targets {
		tids[i] = tgt.TID
	}
	return tids
}
