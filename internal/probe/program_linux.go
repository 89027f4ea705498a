//go:build linux
// +build linux

package probe

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
)

const (
	targetMapName = "target_tids"
	countsMapName = "sched_counts"
	progName      = "sched_switch_count"

	// maxTargets bounds the thread filter; one entry per guest vCPU.
	maxTargets = 1024
	// maxScheduleKeys bounds the aggregation map, one entry per observed
	// (thread, CPU) pair.
	maxScheduleKeys = 65536
)

// collectionSpec assembles the sched_switch counting program and its maps.
//
// The program is the kernel half of the pipeline: on every sched_switch it
// loads next_pid from the tracepoint context (at the offset discovered from
// tracefs), drops the event unless next_pid is in target_tids, and bumps
// sched_counts[tid<<32|cpu] with an atomic add. The lookup/insert/re-lookup
// dance below is the map-or-init idiom; the fresh entry is inserted at zero
// and then bumped through the same atomic path.
func collectionSpec(nextPIDOffset int) (*ebpf.CollectionSpec, error) {
	if nextPIDOffset < 0 || nextPIDOffset > 0x7fff {
		return nil, fmt.Errorf("implausible next_pid offset %d", nextPIDOffset)
	}

	insns := asm.Instructions{
		// r6 = next_pid (callee-saved across helper calls)
		asm.LoadMem(asm.R6, asm.R1, int16(nextPIDOffset), asm.Word),

		// target_tids lookup wants a pointer to the u32 key.
		asm.StoreMem(asm.RFP, -8, asm.R6, asm.Word),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -8),
		asm.LoadMapPtr(asm.R1, 0).WithReference(targetMapName),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),

		// key = tid<<32 | smp_processor_id
		asm.FnGetSmpProcessorId.Call(),
		asm.Mov.Reg32(asm.R7, asm.R0),
		asm.LSh.Imm(asm.R6, 32),
		asm.Or.Reg(asm.R6, asm.R7),
		asm.StoreMem(asm.RFP, -16, asm.R6, asm.DWord),

		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -16),
		asm.LoadMapPtr(asm.R1, 0).WithReference(countsMapName),
		asm.FnMapLookupElem.Call(),
		asm.JNE.Imm(asm.R0, 0, "bump"),

		// First event for this key: insert zero, then re-lookup.
		asm.StoreImm(asm.RFP, -24, 0, asm.DWord),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -16),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -24),
		asm.Mov.Imm(asm.R4, 0),
		asm.LoadMapPtr(asm.R1, 0).WithReference(countsMapName),
		asm.FnMapUpdateElem.Call(),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -16),
		asm.LoadMapPtr(asm.R1, 0).WithReference(countsMapName),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "exit"),

		asm.Mov.Imm(asm.R1, 1).WithSymbol("bump"),
		asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("exit"),
		asm.Return(),
	}

	return &ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			targetMapName: {
				Name:       targetMapName,
				Type:       ebpf.Hash,
				KeySize:    4,
				ValueSize:  1,
				MaxEntries: maxTargets,
			},
			countsMapName: {
				Name:       countsMapName,
				Type:       ebpf.Hash,
				KeySize:    8,
				ValueSize:  8,
				MaxEntries: maxScheduleKeys,
			},
		},
		Programs: map[string]*ebpf.ProgramSpec{
			progName: {
				Name:         progName,
				Type:         ebpf.TracePoint,
				Instructions: insns,
				License:      "GPL",
			},
		},
	}, nil
}
