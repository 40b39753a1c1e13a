// Reduce a job's Sample Store across nodes (and GPUs) into per-node rows and job-wide totals.
//
// Totals are always sums of the per-node values, never means of per-node ratios.  The one exception
// is GPU utilization, which is the unweighted mean over devices.

package aggregate

import (
	"errors"

	"jobstats/sample"
)

// Synthetic GPU utilization for nodes that report no per-device utilization (fractional GPUs).
// This is an approximation that the notes' thresholds depend on, not a measurement.
const (
	SyntheticGPUUtilization = 50
	syntheticDevice         = "0"
)

var ErrNoSamples = errors.New("No samples")

// CPURow is one node's CPU time or CPU memory.  For CPU time, Used is CPU seconds and Alloc is
// runtime x cores.  For memory, Used is the peak RSS and Alloc the cgroup limit, both in bytes.

type CPURow struct {
	Node  string
	Used  float64
	Alloc float64
	Cores float64
}

type GPUUtilRow struct {
	Node   string
	Util   float64
	Device string

	// Fabricated row for a node without utilization data.
	Synthetic bool
}

type GPUMemRow struct {
	Node   string
	Used   float64
	Total  float64
	Device string
}

type Totals struct {
	Used  float64
	Alloc float64
	Cores float64
}

type Result struct {
	CPUTime      []CPURow
	CPUTimeTotal Totals
	CPUMem       []CPURow
	CPUMemTotal  Totals

	// Only for GPU jobs.
	HasGPUs bool

	GPUUtil []GPUUtilRow

	// Sum and count of the per-device utilizations.  When Exact is false some node had no
	// utilization data and the pair is the synthetic (50, 1).
	GPUUtilSum   float64
	GPUUtilCount int
	Exact        bool

	GPUMem      []GPUMemRow
	GPUMemUsed  float64
	GPUMemTotal float64
}

// Aggregate reduces the store.  Nodes are listed in nodeOrder order first (the scheduler's node
// list), the rest by name.  Missing metrics count as zero.  An empty store yields ErrNoSamples;
// the caller decides whether that is fatal.

func Aggregate(store sample.Store, nodeOrder []string, runtime int64, gpus int) (*Result, error) {
	if len(store) == 0 {
		return nil, ErrNoSamples
	}
	nodes := store.SortedNodes(nodeOrder)
	r := &Result{
		CPUTime: make([]CPURow, 0, len(nodes)),
		CPUMem:  make([]CPURow, 0, len(nodes)),
	}

	for _, name := range nodes {
		n := store[name]
		cores := n.Scalar(sample.CPUs)
		used := n.Scalar(sample.TotalTime)
		alloc := float64(runtime) * cores
		r.CPUTime = append(r.CPUTime, CPURow{Node: name, Used: used, Alloc: alloc, Cores: cores})
		r.CPUTimeTotal.add(used, alloc, cores)

		used = n.Scalar(sample.UsedMemory)
		alloc = n.Scalar(sample.TotalMemory)
		r.CPUMem = append(r.CPUMem, CPURow{Node: name, Used: used, Alloc: alloc, Cores: cores})
		r.CPUMemTotal.add(used, alloc, cores)
	}

	if gpus > 0 {
		r.HasGPUs = true
		r.aggregateGPUs(store, nodes)
	}
	return r, nil
}

func (t *Totals) add(used, alloc, cores float64) {
	t.Used += used
	t.Alloc += alloc
	t.Cores += cores
}

func (r *Result) aggregateGPUs(store sample.Store, nodes []string) {
	r.GPUUtil = make([]GPUUtilRow, 0)
	r.GPUMem = make([]GPUMemRow, 0)
	r.Exact = true
	for _, name := range nodes {
		n := store[name]
		if util, found := n.Devices(sample.GPUUtilization); found {
			for _, d := range deviceKeys(util) {
				r.GPUUtil = append(r.GPUUtil, GPUUtilRow{Node: name, Util: util[d], Device: d})
				r.GPUUtilSum += util[d]
				r.GPUUtilCount++
			}
		} else {
			r.Exact = false
			r.GPUUtil = append(r.GPUUtil, GPUUtilRow{
				Node:      name,
				Util:      SyntheticGPUUtilization,
				Device:    syntheticDevice,
				Synthetic: true,
			})
		}

		total, _ := n.Devices(sample.GPUTotalMemory)
		used, _ := n.Devices(sample.GPUUsedMemory)
		for _, d := range deviceKeys(total) {
			r.GPUMem = append(r.GPUMem, GPUMemRow{Node: name, Used: used[d], Total: total[d], Device: d})
			r.GPUMemUsed += used[d]
			r.GPUMemTotal += total[d]
		}
	}
	if !r.Exact {
		r.GPUUtilSum = SyntheticGPUUtilization
		r.GPUUtilCount = 1
	}
}

func deviceKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sample.SortDevices(keys)
	return keys
}

// UnusedCPUNodes counts the nodes that used no CPU time at all.

func (r *Result) UnusedCPUNodes() int {
	return countIf(r.CPUTime, func(row CPURow) bool { return row.Used == 0 })
}

// UnusedGPUs counts the devices with zero utilization.  Synthetic rows are never zero.

func (r *Result) UnusedGPUs() int {
	return countIf(r.GPUUtil, func(row GPUUtilRow) bool { return row.Util == 0 })
}

func countIf[T any](xs []T, p func(T) bool) int {
	n := 0
	for _, x := range xs {
		if p(x) {
			n++
		}
	}
	return n
}

// Nodes returns the node names in row order.

func (r *Result) Nodes() []string {
	names := make([]string, 0, len(r.CPUTime))
	for _, row := range r.CPUTime {
		names = append(names, row.Node)
	}
	return names
}
