// Package viz renders collected run artifacts: a proportion chart over all
// observed threads plus a textual per-CPU breakdown.
package viz

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/schedscope/schedscope/internal/artifact"
	"github.com/schedscope/schedscope/internal/safe"
)

// ThreadStat is one {instance, thread} entity across the collected
// artifacts. Total is the sum of the thread's per-CPU counts; a thread that
// was never scheduled in has Total zero.
type ThreadStat struct {
	Instance string
	Thread   string
	VCPU     int
	Total    uint64
	Scheds   map[string]uint64
}

// Label is the display name used in charts and the breakdown.
func (s ThreadStat) Label() string {
	return fmt.Sprintf("Instance-%s Thread-%s (vcpu%d)", s.Instance, s.Thread, s.VCPU)
}

// LoadDir reads every run artifact in dir. Each artifact contributes one
// entity per thread; the instance identifier is the traced pid encoded in
// the filename.
func LoadDir(dir string) ([]ThreadStat, error) {
	paths, err := filepath.Glob(filepath.Join(dir, artifact.FilePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob artifacts in %s: %w", dir, err)
	}
	sort.Strings(paths)

	var stats []ThreadStat
	for _, path := range paths {
		data, err := safe.ReadFile(path, 0)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", path, err)
		}

		var run artifact.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("parse artifact %s: %w", path, err)
		}

		instance := instanceID(filepath.Base(path))

		tids := make([]string, 0, len(run))
		for tid := range run {
			tids = append(tids, tid)
		}
		sortNumeric(tids)

		for _, tid := range tids {
			report := run[tid]
			stats = append(stats, ThreadStat{
				Instance: instance,
				Thread:   tid,
				VCPU:     report.VCPU,
				Total:    sumCounts(report.Scheds),
				Scheds:   report.Scheds,
			})
		}
	}

	return stats, nil
}

// instanceID extracts the traced pid from an artifact filename
// (trace_vcpu_sched-<pid>-<timestamp>.json).
func instanceID(filename string) string {
	rest := strings.TrimPrefix(filename, artifact.FilePrefix)
	if idx := strings.IndexByte(rest, '-'); idx > 0 {
		return rest[:idx]
	}
	return strings.TrimSuffix(rest, ".json")
}

// sumCounts aggregates a thread's events across all CPUs. The per-thread
// total is defined as this sum, not any single CPU's cell.
func sumCounts(scheds map[string]uint64) uint64 {
	var total uint64
	for _, count := range scheds {
		total += count
	}
	return total
}

// sortNumeric orders stringified integers by value, falling back to
// lexicographic order for anything non-numeric.
func sortNumeric(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseUint(keys[i], 10, 64)
		b, errB := strconv.ParseUint(keys[j], 10, 64)
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
}

// WriteBreakdown prints the per-thread, per-CPU distribution. Threads with
// zero events render as 0% rather than failing the percentage calculation.
func WriteBreakdown(w io.Writer, stats []ThreadStat) error {
	for _, stat := range stats {
		if _, err := fmt.Fprintf(w, "%s: %d events\n", stat.Label(), stat.Total); err != nil {
			return err
		}

		cpus := make([]string, 0, len(stat.Scheds))
		for cpu := range stat.Scheds {
			cpus = append(cpus, cpu)
		}
		sortNumeric(cpus)

		for _, cpu := range cpus {
			count := stat.Scheds[cpu]
			var pct float64
			if stat.Total > 0 {
				pct = float64(count) / float64(stat.Total) * 100
			}
			if _, err := fmt.Fprintf(w, "  cpu %s: %d (%.1f%%)\n", cpu, count, pct); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderHTML writes a pie chart of each thread's share of the total
// scheduling events.
func RenderHTML(stats []ThreadStat, path string) error {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Guest vCPU scheduling distribution",
			Subtitle: "scheduling events per {instance, thread}",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: "700px"}),
	)

	items := make([]opts.PieData, 0, len(stats))
	for _, stat := range stats {
		items = append(items, opts.PieData{Name: stat.Label(), Value: stat.Total})
	}

	pie.AddSeries("scheduling events", items,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {d}%"}),
	)

	f, err := os.Create(path) //nolint:gosec // G304: user-chosen output path.
	if err != nil {
		return fmt.Errorf("create chart %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	if err := pie.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
