// Package probe loads the sched_switch scheduler probe and owns its
// in-kernel aggregation maps.
//
// The probe counts, per (host thread, host CPU) pair, how often the kernel
// scheduled one of the target threads in. Filtering happens in the probe
// itself: events for untracked threads never leave the kernel.
package probe

// Count is one (ScheduleKey, counter) pair read back from the aggregation
// map. Key packs the host thread ID into the high 32 bits and the host CPU
// ID into the low 32 bits; the counter is monotonic within a run.
type Count struct {
	Key   uint64
	Value uint64
}

// PackKey builds the aggregation map key for a (thread, CPU) pair. The
// layout matches what the kernel-side program computes; UnpackKey is its
// exact inverse.
func PackKey(tid, cpu uint32) uint64 {
	return uint64(tid)<<32 | uint64(cpu)
}

// UnpackKey splits an aggregation map key back into its (thread, CPU) pair.
func UnpackKey(key uint64) (tid, cpu uint32) {
	return uint32(key >> 32), uint32(key)
}
