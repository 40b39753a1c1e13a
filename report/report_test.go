package report

import (
	"strings"
	"testing"
	"time"

	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/efficiency"
	"jobstats/notes"
	"jobstats/sample"
	"jobstats/slurm"
)

func makeReport(t *testing.T, job *slurm.Job, s sample.Store) *Report {
	t.Helper()
	cfg := config.Default()
	agg, err := aggregate.Aggregate(s, job.NodeList, job.Runtime(), job.GPUs)
	if err != nil {
		t.Fatal(err)
	}
	eff := efficiency.Compute(job, agg, cfg.Thresholds)
	return &Report{Job: job, Agg: agg, Eff: eff, Notes: notes.NewEngine(cfg).Evaluate(job, agg, eff)}
}

func plainRenderer() *Renderer {
	r := NewRenderer(config.Default(), NewStyle(false))
	r.Location = time.UTC
	return r
}

func twoNodeJob(t *testing.T) *Report {
	limit := int64(60)
	job := &slurm.Job{
		JobID:     "2",
		User:      "alice",
		Account:   "chem",
		Cluster:   "della",
		State:     slurm.StateCompleted,
		QOS:       "short",
		Partition: "cpu",
		Nodes:     2,
		Cores:     2,
		ReqMem:    "8G",
		Name:      "sim",
		TimeLimit: &limit,
		Start:     0,
		End:       1800,
		NodeList:  []string{"a", "b"},
	}
	s := make(sample.Store)
	s.Set("a", sample.CPUs, 1)
	s.Set("a", sample.TotalTime, 0)
	s.Set("a", sample.UsedMemory, 1<<30)
	s.Set("a", sample.TotalMemory, 4<<30)
	s.Set("b", sample.CPUs, 1)
	s.Set("b", sample.TotalTime, 1700)
	s.Set("b", sample.UsedMemory, 512<<20)
	s.Set("b", sample.TotalMemory, 4<<30)
	return makeReport(t, job, s)
}

func TestSimple(t *testing.T) {
	got := plainRenderer().Simple(twoNodeJob(t))
	want := `  CPU utilization per node (CPU time used/run time)
      a: 00:00:00/00:30:00 (efficiency=0.0%) <--- CPU node was not used
      b: 00:28:20/00:30:00 (efficiency=94.4%)
  Total used/runtime: 00:28:20/01:00:00, efficiency=47.2%

  CPU memory usage per node - used/allocated
      a: 1.0GB/4.0GB (1.0GB/4.0GB per core of 1)
      b: 512.0MB/4.0GB (512.0MB/4.0GB per core of 1)
  Total used/allocated: 1.5GB/8.0GB (768.0MB/4.0GB per core of 2)
`
	if got != want {
		t.Fatalf("Simple output:\n%s\nwant:\n%s", got, want)
	}
}

func TestEnhanced(t *testing.T) {
	rep := twoNodeJob(t)
	r := plainRenderer()
	got := r.Enhanced(rep)
	for _, want := range []string{
		"\n" + rule + "\n                              Slurm Job Statistics\n" + rule + "\n",
		"         Job ID: 2\n",
		"  NetID/Account: alice/chem\n",
		"     CPU Memory: 8GB (4GB per CPU-core)\n",
		"     Start Time: Thu Jan 1, 1970 at 12:00 AM\n",
		"       Run Time: 00:30:00\n",
		"     Time Limit: 01:00:00\n",
		"  CPU utilization  [" + strings.Repeat("|", 23) + strings.Repeat(" ", 24) + "47%]\n",
		"  CPU memory usage [" + strings.Repeat("|", 9) + strings.Repeat(" ", 38) + "19%]\n",
		"                                     Notes\n",
		"  * This job did not use 1 of the 2 allocated nodes.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Missing %q in\n%s", want, got)
		}
	}
	if strings.Contains(got, "GPU") {
		t.Errorf("GPU lines for CPU job")
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("Escape codes in plain output")
	}

	// Rendering is a pure function of its input
	if again := r.Enhanced(rep); again != got {
		t.Fatalf("Rendering is not idempotent")
	}
}

func TestEnhancedColor(t *testing.T) {
	r := plainRenderer()
	r.Style = NewStyle(true)
	got := r.Enhanced(twoNodeJob(t))
	if !strings.Contains(got, "\x1b[") {
		t.Fatalf("No escape codes in coloured output")
	}
}

func TestFractionalGPU(t *testing.T) {
	job := &slurm.Job{
		JobID:     "4",
		Cluster:   "della",
		State:     slurm.StateRunning,
		Partition: "mig",
		Nodes:     1,
		Cores:     1,
		GPUs:      1,
		ReqMem:    "16G",
		Start:     0,
		End:       3600,
	}
	s := make(sample.Store)
	s.Set("g", sample.CPUs, 1)
	s.Set("g", sample.TotalTime, 3000)
	s.Set("g", sample.UsedMemory, 1<<30)
	s.Set("g", sample.TotalMemory, 16<<30)
	s.SetDevice("g", sample.GPUTotalMemory, "0", 10<<30)
	s.SetDevice("g", sample.GPUUsedMemory, "0", 1<<30)
	got := plainRenderer().Enhanced(makeReport(t, job, s))
	for _, want := range []string{
		"       Run Time: 01:00:00 (in progress)\n",
		"     Time Limit: UNLIMITED\n",
		"     CPU Memory: 16GB\n",
		"  GPU utilization  [     GPU utilization is unknown for MIG jobs      ]\n",
		"      g (GPU): GPU utilization is unknown for MIG jobs\n",
		"      g (GPU 0): 1.0GB/10.0GB (10.0%)\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Missing %q in\n%s", want, got)
		}
	}
	// The synthetic utilization is never shown
	if strings.Contains(got, "50%") {
		t.Errorf("Synthetic utilization shown:\n%s", got)
	}
}

func TestMeter(t *testing.T) {
	r := plainRenderer()
	for _, x := range []int{0, 13, 47, 99, 100} {
		m := r.meter(x, false)
		if len(m) != 52 || m[0] != '[' || m[51] != ']' {
			t.Errorf("Meter for %d: %q", x, m)
		}
	}
	if r.meter(100, false) != "["+strings.Repeat("|", 46)+"100%]" {
		t.Errorf("Full meter: %q", r.meter(100, false))
	}
}

func TestFormatNote(t *testing.T) {
	n := notes.Note{
		Severity: notes.Normal,
		Items: []string{
			"For additional job metrics including metrics plotted against time:",
			"https://stats.rc.princeton.edu  (VPN required off-campus)",
		},
	}
	want := "  * For additional job metrics including metrics plotted against time:\n" +
		"      https://stats.rc.princeton.edu  (VPN required off-campus)\n\n"
	if got := FormatNote(n, NewStyle(false)); got != want {
		t.Fatalf("Note:\n%q\nwant\n%q", got, want)
	}

	long := notes.Note{Severity: notes.BoldRed, Items: []string{strings.Repeat("wasted resources ", 20)}}
	got := FormatNote(long, NewStyle(false))
	if !strings.HasSuffix(got, "\n\n") || !strings.HasPrefix(got, "  * wasted") {
		t.Fatalf("Note: %q", got)
	}
	for i, l := range strings.Split(strings.TrimRight(got, "\n"), "\n") {
		if len(l) > noteWidth {
			t.Errorf("Line too long: %q", l)
		}
		if i > 0 && !strings.HasPrefix(l, noteIndent) {
			t.Errorf("Line not indented: %q", l)
		}
	}
}

func TestSimpleOverAllocation(t *testing.T) {
	job := &slurm.Job{
		JobID:    "5",
		Cluster:  "della",
		State:    slurm.StateCompleted,
		Nodes:    1,
		Cores:    1,
		ReqMem:   "4G",
		Start:    0,
		End:      3600,
		NodeList: []string{"n1"},
	}
	s := make(sample.Store)
	s.Set("n1", sample.CPUs, 1)
	s.Set("n1", sample.TotalTime, 3700)
	s.Set("n1", sample.UsedMemory, 1<<30)
	s.Set("n1", sample.TotalMemory, 4<<30)
	got := plainRenderer().Simple(makeReport(t, job, s))
	if !strings.Contains(got, "      n1: 01:01:40/01:00:00 (efficiency=100.0%)\n") {
		t.Fatalf("Efficiency not clamped:\n%s", got)
	}
}
