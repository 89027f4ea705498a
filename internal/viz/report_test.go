package viz

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedscope/schedscope/internal/artifact"
)

func writeRun(t *testing.T, dir string, pid int, ts time.Time, run artifact.Run) string {
	t.Helper()
	path := artifact.Path(dir, pid, ts)
	require.NoError(t, artifact.Write(run, path))
	return path
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 4242, time.Unix(1700000000, 0), artifact.Run{
		"1001": {VCPU: 0, Scheds: map[string]uint64{"0": 5000, "1": 5000}},
		"1002": {VCPU: 1, Scheds: map[string]uint64{"0": 3000, "2": 7000}},
	})

	stats, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "4242", stats[0].Instance)
	assert.Equal(t, "1001", stats[0].Thread)
	assert.Equal(t, 0, stats[0].VCPU)
	assert.Equal(t, uint64(10000), stats[0].Total)

	assert.Equal(t, "1002", stats[1].Thread)
	assert.Equal(t, uint64(10000), stats[1].Total)
}

func TestLoadDir_ThreadsSortedNumerically(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 1, time.Unix(1700000000, 0), artifact.Run{
		"900":  {VCPU: 0, Scheds: map[string]uint64{}},
		"1002": {VCPU: 2, Scheds: map[string]uint64{}},
		"1001": {VCPU: 1, Scheds: map[string]uint64{}},
	})

	stats, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, "900", stats[0].Thread)
	assert.Equal(t, "1001", stats[1].Thread)
	assert.Equal(t, "1002", stats[2].Thread)
}

func TestLoadDir_MultipleInstances(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, 100, time.Unix(1700000000, 0), artifact.Run{
		"10": {VCPU: 0, Scheds: map[string]uint64{"0": 1}},
	})
	writeRun(t, dir, 200, time.Unix(1700000100, 0), artifact.Run{
		"20": {VCPU: 0, Scheds: map[string]uint64{"0": 2}},
	})

	stats, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "100", stats[0].Instance)
	assert.Equal(t, "200", stats[1].Instance)
}

func TestLoadDir_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))

	stats, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestWriteBreakdown(t *testing.T) {
	stats := []ThreadStat{
		{
			Instance: "4242",
			Thread:   "1001",
			VCPU:     0,
			Total:    10000,
			Scheds:   map[string]uint64{"0": 5000, "1": 5000},
		},
	}

	var sb strings.Builder
	require.NoError(t, WriteBreakdown(&sb, stats))

	out := sb.String()
	assert.Contains(t, out, "Instance-4242 Thread-1001 (vcpu0): 10000 events")
	assert.Contains(t, out, "cpu 0: 5000 (50.0%)")
	assert.Contains(t, out, "cpu 1: 5000 (50.0%)")
}

func TestWriteBreakdown_ZeroEvents(t *testing.T) {
	stats := []ThreadStat{
		{
			Instance: "1",
			Thread:   "7",
			VCPU:     3,
			Total:    0,
			Scheds:   map[string]uint64{"0": 0},
		},
	}

	var sb strings.Builder
	require.NoError(t, WriteBreakdown(&sb, stats))
	assert.Contains(t, sb.String(), "cpu 0: 0 (0.0%)")
}

func TestRenderHTML(t *testing.T) {
	stats := []ThreadStat{
		{Instance: "1", Thread: "1001", VCPU: 0, Total: 10000},
		{Instance: "1", Thread: "1002", VCPU: 1, Total: 10000},
	}

	path := filepath.Join(t.TempDir(), "distribution.html")
	require.NoError(t, RenderHTML(stats, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Instance-1 Thread-1001 (vcpu0)")
	assert.Contains(t, string(data), "Guest vCPU scheduling distribution")
}

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "4242", instanceID("trace_vcpu_sched-4242-1700000000.json"))
	assert.Equal(t, "7", instanceID("trace_vcpu_sched-7-1.json"))
}
