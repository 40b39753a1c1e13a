// Percentage efficiencies and memory figures derived from the aggregated job statistics.  Every
// percentage is rounded and clamped to [0, 100], and every division is guarded.

package efficiency

import (
	"math"

	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/slurm"
)

const bytesPerGiB = 1 << 30

type Efficiency struct {
	// Percent of allocated CPU time used.
	CPU int

	// Percent of the memory limit used at peak.
	CPUMemory int

	// Mean GPU utilization over devices, and rounded.  For fractional GPUs without utilization
	// data this is the synthetic value and GPUExact is false.
	GPU        float64
	GPURounded int
	GPUExact   bool

	// Percent of total GPU memory used at peak.
	GPUMemory int

	// CPU memory figures for advice, GiB.
	MemUsedGiB     float64
	GBPerCoreUsed  float64
	GBPerNodeUsed  float64
	GBPerCoreAlloc float64

	// Allocated CPU memory, bytes.
	CPUMemTotalBytes float64

	CoresPerNode  float64
	GPUsPerNode   float64
	GPUMemUsedGiB float64

	// Percent of the time limit used, for completed jobs with a time limit.  TimeViolation is set
	// when the job asked for far too much time, TimeViolationRed when it is bad enough to shout.
	TimeLimitKnown   bool
	TimeEfficiency   int
	TimeViolation    bool
	TimeViolationRed bool
}

// Compute derives the efficiencies for a job from its aggregate.  The thresholds decide whether
// the job's time limit was badly overestimated.

func Compute(job *slurm.Job, agg *aggregate.Result, t config.Thresholds) *Efficiency {
	e := &Efficiency{
		CPU:              Percent(agg.CPUTimeTotal.Used, agg.CPUTimeTotal.Alloc),
		CPUMemory:        Percent(agg.CPUMemTotal.Used, agg.CPUMemTotal.Alloc),
		MemUsedGiB:       agg.CPUMemTotal.Used / bytesPerGiB,
		GBPerCoreUsed:    ratio(agg.CPUMemTotal.Used, agg.CPUMemTotal.Cores) / bytesPerGiB,
		GBPerNodeUsed:    ratio(agg.CPUMemTotal.Used, float64(job.Nodes)) / bytesPerGiB,
		GBPerCoreAlloc:   ratio(agg.CPUMemTotal.Alloc, agg.CPUMemTotal.Cores) / bytesPerGiB,
		CoresPerNode:     ratio(float64(job.Cores), float64(job.Nodes)),
		CPUMemTotalBytes: agg.CPUMemTotal.Alloc,
		GPUsPerNode:      ratio(float64(job.GPUs), float64(job.Nodes)),
	}
	if agg.HasGPUs {
		e.GPU = clamp(ratio(agg.GPUUtilSum, float64(agg.GPUUtilCount)))
		e.GPURounded = int(math.Round(e.GPU))
		e.GPUExact = agg.Exact
		e.GPUMemory = Percent(agg.GPUMemUsed, agg.GPUMemTotal)
		e.GPUMemUsedGiB = agg.GPUMemUsed / bytesPerGiB
	}
	e.timeEfficiency(job, t)
	return e
}

// Only completed jobs with a time limit are judged, and only when they ran long enough for the
// judgement to matter.

func (e *Efficiency) timeEfficiency(job *slurm.Job, t config.Thresholds) {
	limit := job.TimeLimitSeconds()
	if job.State != slurm.StateCompleted || limit <= 0 {
		return
	}
	e.TimeLimitKnown = true
	e.TimeEfficiency = Percent(float64(job.Runtime()), float64(limit))
	if e.TimeEfficiency < t.TimeEfficiencyBlack && job.Runtime() > 3*t.MinRuntimeSeconds {
		e.TimeViolation = true
		e.TimeViolationRed = e.TimeEfficiency < t.TimeEfficiencyRed
	}
}

// Percent is round(100 * used / total), 0 when total is 0, clamped to [0, 100].

func Percent(used, total float64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(clamp(100 * used / total)))
}

func ratio(x, y float64) float64 {
	if y == 0 {
		return 0
	}
	return x / y
}

func clamp(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// RoundedMemoryWithSafety suggests a memory request in GB for a job that used `used` GB: 20% more,
// rounded up to a human-friendly value.  Ties round to even, then values that rounded down are
// nudged up by the bucket's increment (a half increment below 100).

func RoundedMemoryWithSafety(used float64) int {
	withSafety := math.Ceil(1.2 * used)
	var increment, nudge float64
	switch {
	case withSafety > 1000:
		increment, nudge = 100, 100
	case withSafety > 100:
		increment, nudge = 10, 10
	case withSafety > 30:
		increment, nudge = 10, 5
	default:
		return int(max(1, withSafety))
	}
	suggested := math.RoundToEven(withSafety/increment) * increment
	if suggested < withSafety {
		suggested += nudge
	}
	return int(suggested)
}
