// Render job reports: the compact per-node listing and the full report with its header, meters,
// per-node listing and notes.  Rendering has no logic beyond formatting; the same input always
// produces the same text.

package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/efficiency"
	"jobstats/format"
	"jobstats/notes"
	"jobstats/slurm"
)

const (
	rule        = "================================================================================"
	titleIndent = "                              "
	notesIndent = "                                     "
	gutter      = "  "
	meterWidth  = 50

	unknownGPUMeter = "     GPU utilization is unknown for MIG jobs      "
	unknownGPURow   = "GPU utilization is unknown for MIG jobs"
)

// Report is everything known about one job.

type Report struct {
	Job   *slurm.Job
	Agg   *aggregate.Result
	Eff   *efficiency.Efficiency
	Notes []notes.Note
}

type Renderer struct {
	Style      Style
	Thresholds config.Thresholds

	// Partition whose GPU utilization is unknown.
	FractionalGPUPartition string

	// For the start time; nil means local time.
	Location *time.Location
}

func NewRenderer(cfg *config.Config, st Style) *Renderer {
	return &Renderer{
		Style:                  st,
		Thresholds:             cfg.Thresholds,
		FractionalGPUPartition: cfg.FractionalGPUPartition,
	}
}

// Enhanced renders the full report.

func (r *Renderer) Enhanced(rep *Report) string {
	st := r.Style
	job, eff := rep.Job, rep.Eff
	var b strings.Builder
	line := func(layout string, args ...any) {
		fmt.Fprintf(&b, layout, args...)
		b.WriteByte('\n')
	}

	line("")
	line(rule)
	line(titleIndent + "Slurm Job Statistics")
	line(rule)
	line("         Job ID: %s", st.Bold(job.JobID))
	line("  NetID/Account: %s/%s", job.User, job.Account)
	line("       Job Name: %s", job.Name)
	if job.State == slurm.StateOutOfMemory || job.State == slurm.StateTimeout {
		line("          State: %s", st.BoldRed(job.State))
	} else {
		line("          State: %s", job.State)
	}
	line("          Nodes: %d", job.Nodes)
	line("      CPU Cores: %d", job.Cores)
	total, perCore := format.RequestedMemory(job.ReqMem, job.Cores)
	if job.Cores == 1 || perCore == "" {
		line("     CPU Memory: %s", total)
	} else {
		line("     CPU Memory: %s (%s per CPU-core)", total, perCore)
	}
	if job.GPUs > 0 {
		line("           GPUs: %d", job.GPUs)
	}
	line("  QOS/Partition: %s/%s", job.QOS, job.Partition)
	line("        Cluster: %s", job.Cluster)
	line("     Start Time: %s", format.DateTime(job.Start, r.Location))
	if job.State == slurm.StateRunning {
		line("       Run Time: %s (in progress)", format.Seconds(job.Runtime()))
	} else {
		line("       Run Time: %s", format.Seconds(job.Runtime()))
	}
	line("     Time Limit: %s", r.timeLimit(job, eff))
	line("")

	line("%s%s", titleIndent, st.Bold("Overall Utilization"))
	line(rule)
	line("  CPU utilization  %s", r.meter(eff.CPU, job.GPUs == 0 && eff.CPU < r.Thresholds.CPUUtilizationRed))
	line("  CPU memory usage %s", r.meter(eff.CPUMemory, false))
	if job.GPUs > 0 {
		if r.gpuUtilizationUnknown(job, eff) {
			line("  GPU utilization  %s%s%s", st.Bold("["), unknownGPUMeter, st.Bold("]"))
		} else {
			line("  GPU utilization  %s", r.meter(eff.GPURounded, eff.GPURounded < r.Thresholds.GPUUtilizationRed))
		}
		line("  GPU memory usage %s", r.meter(eff.GPUMemory, false))
	}
	line("")

	line("%s%s", titleIndent, st.Bold("Detailed Utilization"))
	line(rule)
	r.simple(&b, rep)
	line("")

	if len(rep.Notes) > 0 {
		line("%s%s", notesIndent, st.Bold("Notes"))
		line(rule)
		line("%s", FormatNotes(rep.Notes, st))
	}
	return b.String()
}

func (r *Renderer) timeLimit(job *slurm.Job, eff *efficiency.Efficiency) string {
	if job.TimeLimit == nil {
		return "UNLIMITED"
	}
	limit := format.Seconds(job.TimeLimitSeconds())
	if eff.TimeViolationRed {
		return r.Style.BoldRed(limit)
	}
	return limit
}

func (r *Renderer) gpuUtilizationUnknown(job *slurm.Job, eff *efficiency.Efficiency) bool {
	return !eff.GPUExact || (r.FractionalGPUPartition != "" && job.Partition == r.FractionalGPUPartition)
}

// meter draws a 50-column bar with the percentage at its right end.

func (r *Renderer) meter(x int, red bool) string {
	st := r.Style
	text := strconv.Itoa(x) + "%"
	bars := min(max(x/2, 0), meterWidth)
	spaces := meterWidth - bars - len(text)
	if bars+len(text) > meterWidth {
		bars = meterWidth - len(text)
		spaces = 0
	}
	bar := strings.Repeat("|", bars) + strings.Repeat(" ", spaces)
	if red {
		return st.Bold("[") + st.Red(bar) + st.BoldRed(text) + st.Bold("]")
	}
	return st.Bold("[") + bar + text + st.Bold("]")
}

// Simple renders the per-node listing only.

func (r *Renderer) Simple(rep *Report) string {
	var b strings.Builder
	r.simple(&b, rep)
	return b.String()
}

func (r *Renderer) simple(b *strings.Builder, rep *Report) {
	st := r.Style
	job, agg := rep.Job, rep.Agg
	line := func(layout string, args ...any) {
		fmt.Fprintf(b, layout, args...)
		b.WriteByte('\n')
	}

	line(gutter + "CPU utilization per node (CPU time used/run time)")
	for _, row := range agg.CPUTime {
		msg := ""
		if row.Used == 0 {
			msg = " " + st.BoldRed("<--- CPU node was not used")
		}
		line(
			"%s    %s: %s/%s (efficiency=%s)%s",
			gutter, row.Node, seconds(row.Used), seconds(row.Alloc), format.Ratio(row.Used, row.Alloc), msg,
		)
	}
	t := agg.CPUTimeTotal
	if job.Nodes != 1 {
		line(
			"%sTotal used/runtime: %s/%s, efficiency=%s",
			gutter, seconds(t.Used), seconds(t.Alloc), format.Ratio(t.Used, t.Alloc),
		)
	}

	line("\n%sCPU memory usage per node - used/allocated", gutter)
	for _, row := range agg.CPUMem {
		line("%s    %s: %s", gutter, row.Node, memoryPerCore(row.Used, row.Alloc, row.Cores))
	}
	t = agg.CPUMemTotal
	if job.Nodes != 1 {
		line("%sTotal used/allocated: %s", gutter, memoryPerCore(t.Used, t.Alloc, t.Cores))
	}

	if job.GPUs == 0 || !agg.HasGPUs {
		return
	}
	fractional := r.FractionalGPUPartition != "" && job.Partition == r.FractionalGPUPartition
	line("\n%sGPU utilization per node", gutter)
	for _, row := range agg.GPUUtil {
		if fractional || row.Synthetic {
			line("%s    %s (GPU): %s", gutter, row.Node, unknownGPURow)
			continue
		}
		msg := ""
		if row.Util == 0 {
			msg = " " + st.BoldRed("<--- GPU was not used")
		}
		line("%s    %s (GPU %s): %s%%%s", gutter, row.Node, row.Device, number(row.Util), msg)
	}

	line("\n%sGPU memory usage per node - maximum used/total", gutter)
	for _, row := range agg.GPUMem {
		line(
			"%s    %s (GPU %s): %s/%s (%s)",
			gutter, row.Node, row.Device, format.Bytes(row.Used), format.Bytes(row.Total),
			format.Ratio(row.Used, row.Total),
		)
	}
}

func memoryPerCore(used, alloc, cores float64) string {
	var usedPerCore, allocPerCore float64
	if cores > 0 {
		usedPerCore, allocPerCore = used/cores, alloc/cores
	}
	return fmt.Sprintf(
		"%s/%s (%s/%s per core of %s)",
		format.Bytes(used), format.Bytes(alloc), format.Bytes(usedPerCore), format.Bytes(allocPerCore),
		number(cores),
	)
}

func seconds(s float64) string {
	return format.Seconds(int64(s))
}

func number(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
