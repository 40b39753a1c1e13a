package notes

import (
	"strings"
	"testing"

	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/efficiency"
	"jobstats/sample"
	"jobstats/slurm"
)

func evaluate(t *testing.T, job *slurm.Job, s sample.Store) []Note {
	t.Helper()
	cfg := config.Default()
	agg, err := aggregate.Aggregate(s, job.NodeList, job.Runtime(), job.GPUs)
	if err != nil {
		t.Fatal(err)
	}
	eff := efficiency.Compute(job, agg, cfg.Thresholds)
	return NewEngine(cfg).Evaluate(job, agg, eff)
}

func cpuNode(s sample.Store, node string, cpus, time, used, total float64) {
	s.Set(node, sample.CPUs, cpus)
	s.Set(node, sample.TotalTime, time)
	s.Set(node, sample.UsedMemory, used)
	s.Set(node, sample.TotalMemory, total)
}

func find(notes []Note, text string) []Note {
	found := make([]Note, 0)
	for _, n := range notes {
		if strings.Contains(n.Items[0], text) {
			found = append(found, n)
		}
	}
	return found
}

func TestScenarioA(t *testing.T) {
	job := &slurm.Job{
		JobID:     "1",
		Cluster:   "della",
		State:     slurm.StateCompleted,
		QOS:       "short",
		Partition: "cpu",
		Nodes:     1,
		Cores:     1,
		ReqMem:    "8G",
		Start:     0,
		End:       3600,
	}
	s := make(sample.Store)
	cpuNode(s, "della-r1c1", 1, 3600, 1<<30, 8<<30)
	notes := evaluate(t, job, s)
	if len(notes) != 2 {
		t.Fatalf("Expected 2 notes, got %v", notes)
	}
	over := notes[0]
	if over.Severity != Normal || !strings.HasPrefix(over.Items[0], "This job only used 13% of the 8GB of total") {
		t.Fatalf("Over-allocation note: %v", over)
	}
	if !strings.Contains(over.Items[0], "--mem-per-cpu=2G or --mem=2G") {
		t.Fatalf("Suggestion: %s", over.Items[0])
	}
	if notes[1].Items[1] != "https://mydella.princeton.edu/pun/sys/jobstats  (VPN required off-campus)" {
		t.Fatalf("Dashboard note: %v", notes[1])
	}
	if len(find(notes, "did not use")) != 0 {
		t.Fatalf("Zero-utilization note for a busy job")
	}
}

func TestScenarioB(t *testing.T) {
	job := &slurm.Job{
		JobID:     "2",
		Cluster:   "della",
		State:     slurm.StateCompleted,
		Partition: "cpu",
		Nodes:     2,
		Cores:     2,
		Start:     0,
		End:       1800,
		NodeList:  []string{"a", "b"},
	}
	s := make(sample.Store)
	cpuNode(s, "a", 1, 0, 1<<30, 4<<30)
	cpuNode(s, "b", 1, 1700, 1<<30, 4<<30)
	notes := evaluate(t, job, s)
	zero := find(notes, "did not use")
	if len(zero) != 1 || zero[0].Severity != BoldRed {
		t.Fatalf("Zero CPU notes: %v", zero)
	}
	if !strings.HasPrefix(zero[0].Items[0], "This job did not use 1 of the 2 allocated nodes.") {
		t.Fatalf("Zero CPU note: %s", zero[0].Items[0])
	}
	if len(find(notes, "CPU utilization of this job")) != 0 {
		t.Fatalf("Low CPU note fired along with zero CPU note")
	}
	if len(find(notes, "of total allocated CPU memory")) != 0 {
		t.Fatalf("Over-allocation note fired along with zero CPU note")
	}
	// Two nodes with one core each is still too thinly spread
	if len(find(notes, "CPU-cores from 2 compute nodes")) != 1 {
		t.Fatalf("Too many nodes note missing: %v", notes)
	}
}

func TestScenarioC(t *testing.T) {
	limit := int64(60)
	job := &slurm.Job{
		JobID:     "3",
		Cluster:   "traverse",
		State:     slurm.StateTimeout,
		Partition: "all",
		Nodes:     1,
		Cores:     32,
		TimeLimit: &limit,
		Start:     0,
		End:       3610,
	}
	s := make(sample.Store)
	cpuNode(s, "traverse-k01g1", 32, 32*3600, 100<<30, 250<<30)
	notes := evaluate(t, job, s)
	if len(notes) != 2 {
		t.Fatalf("Expected timeout and dashboard notes, got %v", notes)
	}
	if notes[0].Severity != BoldRed || !strings.HasPrefix(notes[0].Items[0], "This job failed because it exceeded") {
		t.Fatalf("Timeout note: %v", notes[0])
	}
	if !strings.HasPrefix(notes[1].Items[1], "https://stats.rc.princeton.edu") {
		t.Fatalf("Dashboard note: %v", notes[1])
	}
}

// The fractional GPU partition has no utilization data and the aggregate uses a synthetic 50%.
// This is an approximation: it must neither read as an unused GPU nor as low utilization.

func TestScenarioD(t *testing.T) {
	job := &slurm.Job{
		JobID:     "4",
		Cluster:   "della",
		State:     slurm.StateCompleted,
		Partition: "mig",
		Nodes:     1,
		Cores:     1,
		GPUs:      1,
		ReqMem:    "16G",
		Start:     0,
		End:       3600,
	}
	s := make(sample.Store)
	cpuNode(s, "della-l01g1", 1, 3500, 1<<30, 16<<30)
	s.SetDevice("della-l01g1", sample.GPUTotalMemory, "0", 10<<30)
	s.SetDevice("della-l01g1", sample.GPUUsedMemory, "0", 1<<30)
	notes := evaluate(t, job, s)
	if len(find(notes, "GPU")) != 1 || len(find(notes, "\"mig\" partition")) != 1 {
		t.Fatalf("Only the MIG information note should mention GPUs: %v", notes)
	}
	if len(find(notes, "of total allocated CPU memory")) != 0 {
		t.Fatalf("Over-allocation note on the MIG partition")
	}
}

func TestZeroGPUSuppressesGPUAdvice(t *testing.T) {
	job := &slurm.Job{
		JobID:     "5",
		Cluster:   "della",
		State:     slurm.StateCompleted,
		Partition: "gpu",
		Nodes:     1,
		Cores:     1,
		GPUs:      1,
		Start:     0,
		End:       3600,
	}
	s := make(sample.Store)
	cpuNode(s, "della-l01g2", 1, 3500, 1<<30, 16<<30)
	s.SetDevice("della-l01g2", sample.GPUUtilization, "0", 0)
	s.SetDevice("della-l01g2", sample.GPUTotalMemory, "0", 80<<30)
	s.SetDevice("della-l01g2", sample.GPUUsedMemory, "0", 0)
	notes := evaluate(t, job, s)
	if len(notes) == 0 || notes[0].Severity != BoldRed || !strings.HasPrefix(notes[0].Items[0], "This job did not use the GPU.") {
		t.Fatalf("Zero GPU note: %v", notes)
	}
	if len(find(notes, "MIG GPU instead")) != 0 || len(find(notes, "GPU utilization of this job")) != 0 {
		t.Fatalf("GPU advice along with zero GPU note: %v", notes)
	}
}

func TestFractionalGPUSuggestion(t *testing.T) {
	job := &slurm.Job{
		JobID:     "6",
		Cluster:   "della",
		State:     slurm.StateCompleted,
		Partition: "gpu",
		Nodes:     1,
		Cores:     1,
		GPUs:      1,
		Name:      "interactive",
		Start:     0,
		End:       3600,
	}
	s := make(sample.Store)
	cpuNode(s, "della-l01g3", 1, 3500, 1<<30, 16<<30)
	s.SetDevice("della-l01g3", sample.GPUUtilization, "0", 5)
	s.SetDevice("della-l01g3", sample.GPUTotalMemory, "0", 80<<30)
	s.SetDevice("della-l01g3", sample.GPUUsedMemory, "0", 2<<30)
	notes := evaluate(t, job, s)
	mig := find(notes, "MIG GPU instead")
	if len(mig) != 1 || mig[0].Items[1] != "$ salloc --nodes=1 --ntasks=1 --time=60:00 --gres=gpu:1 --partition=mig" {
		t.Fatalf("MIG suggestion: %v", mig)
	}
	low := find(notes, "GPU utilization of this job is only 5%")
	if len(low) != 1 || !strings.Contains(low[0].Items[0], "investigate the reason(s)") {
		t.Fatalf("Low GPU note: %v", low)
	}

	job.Name = "sys/dashboard/sys/jupyter-notebook"
	job.End = 13 * 3600
	notes = evaluate(t, job, s)
	mig = find(notes, "MIG GPU instead")
	if len(mig) != 1 || !strings.Contains(mig[0].Items[0], "OnDemand Jupyter") {
		t.Fatalf("Jupyter MIG suggestion: %v", mig)
	}
	if len(find(notes, "for more than 12 hours")) != 1 {
		t.Fatalf("Long session note missing: %v", notes)
	}
}

func TestLowCPU(t *testing.T) {
	job := &slurm.Job{
		JobID:   "7",
		Cluster: "adroit",
		State:   slurm.StateCompleted,
		Nodes:   1,
		Cores:   4,
		Start:   0,
		End:     1000,
	}
	s := make(sample.Store)
	cpuNode(s, "adroit-08", 4, 3000, 1<<30, 4<<30)
	notes := evaluate(t, job, s)
	low := find(notes, "overall CPU utilization")
	if len(low) != 1 || low[0].Severity != Normal || !strings.Contains(low[0].Items[0], "is 75%. This value is somewhat low") {
		t.Fatalf("Somewhat low CPU note: %v", low)
	}

	// One core at 70% is not worth a note, at 10% it is
	job.Cores = 1
	cpuNode(s, "adroit-08", 1, 700, 1<<30, 4<<30)
	if len(find(evaluate(t, job, s), "CPU utilization of this job")) != 0 {
		t.Fatalf("Low CPU note for a single-core job above the red threshold")
	}
	cpuNode(s, "adroit-08", 1, 100, 1<<30, 4<<30)
	low = find(evaluate(t, job, s), "The CPU utilization of this job is 10%")
	if len(low) != 1 || low[0].Severity != BoldRed {
		t.Fatalf("Single-core low CPU note: %v", low)
	}
}

func TestSerialCode(t *testing.T) {
	job := &slurm.Job{
		JobID:   "8",
		Cluster: "stellar",
		State:   slurm.StateCompleted,
		QOS:     "stellar-debug",
		Nodes:   1,
		Cores:   4,
		Start:   0,
		End:     1000,
	}
	s := make(sample.Store)
	cpuNode(s, "stellar-m01", 4, 1000, 1<<30, 4<<30)
	notes := evaluate(t, job, s)
	serial := find(notes, "equal to 1 divided by")
	if len(serial) != 1 || !strings.Contains(serial[0].Items[0], "(25%) is equal to 1 divided by the number of allocated CPU-cores (1/4=25%)") {
		t.Fatalf("Serial code note: %v", serial)
	}
	// Exempt QOS, no serial partition note, but a test queue note
	if len(find(notes, "intended for jobs that require multiple nodes")) != 0 {
		t.Fatalf("Serial partition note in exempt QOS")
	}
	if len(find(notes, "ran in the stellar-debug QOS")) != 1 {
		t.Fatalf("Test QOS note missing")
	}

	job.QOS = "stellar-long"
	serial = find(evaluate(t, job, s), "intended for jobs that require multiple nodes")
	if len(serial) != 1 || !strings.Contains(serial[0].Items[0], "if it requires 1 node and less than 48 CPU-cores.") {
		t.Fatalf("Serial partition note: %v", serial)
	}
}

func TestTooManyGPUNodes(t *testing.T) {
	job := &slurm.Job{
		JobID:   "9",
		Cluster: "della",
		State:   slurm.StateCompleted,
		Nodes:   2,
		Cores:   2,
		GPUs:    2,
		Start:   0,
		End:     3600,
	}
	s := make(sample.Store)
	for _, n := range []string{"g1", "g2"} {
		cpuNode(s, n, 1, 3500, 1<<30, 4<<30)
		s.SetDevice(n, sample.GPUUtilization, "0", 90)
		s.SetDevice(n, sample.GPUTotalMemory, "0", 80<<30)
		s.SetDevice(n, sample.GPUUsedMemory, "0", 40<<30)
	}
	spread := find(evaluate(t, job, s), "GPUs from 2 compute nodes")
	if len(spread) != 1 || !strings.Contains(spread[0].Items[0], "Della have either 2 or 4 GPUs per node") {
		t.Fatalf("GPU spread note: %v", spread)
	}

	job.Cluster = "adroit"
	spread = find(evaluate(t, job, s), "GPUs from 2 compute nodes")
	if len(spread) != 1 || !strings.Contains(spread[0].Items[0], "Adroit have 4 GPUs per node") {
		t.Fatalf("GPU spread note: %v", spread)
	}
}

func TestUnknownClusterIsSilent(t *testing.T) {
	job := &slurm.Job{
		JobID:     "10",
		Cluster:   "elsewhere",
		State:     slurm.StateCompleted,
		Partition: "normal",
		Nodes:     1,
		Cores:     1,
		ReqMem:    "64G",
		Start:     0,
		End:       3600,
	}
	s := make(sample.Store)
	cpuNode(s, "x1", 1, 3600, 1<<30, 64<<30)
	if notes := evaluate(t, job, s); len(notes) != 0 {
		t.Fatalf("Cluster-specific notes for unknown cluster: %v", notes)
	}
}

func TestIsReference(t *testing.T) {
	for _, s := range []string{"https://x", "$ salloc", "#SBATCH --mem=1G", "ftp://y"} {
		if !IsReference(s) {
			t.Errorf("Not a reference: %s", s)
		}
	}
	if IsReference("For more info:") {
		t.Errorf("Text as reference")
	}
}

func TestRuleNotes(t *testing.T) {
	minutes := func(m int64) *int64 {
		return &m
	}
	for _, c := range []struct {
		name     string
		job      slurm.Job
		cores    float64
		cpuTime  float64
		used     float64
		total    float64
		text     string
		severity Severity
		absent   string
	}{
		{
			name:     "out of memory",
			job:      slurm.Job{Cluster: "della", State: slurm.StateOutOfMemory, Partition: "cpu", ReqMem: "8G"},
			cores:    1,
			cpuTime:  3600,
			used:     8 << 30,
			total:    8 << 30,
			text:     "This job failed because it needed more CPU memory than the amount that was requested.",
			severity: BoldRed,
			absent:   "of total allocated CPU memory",
		},
		{
			name:     "time limit far too long",
			job:      slurm.Job{Cluster: "della", State: slurm.StateCompleted, Partition: "cpu", TimeLimit: minutes(600)},
			cores:    1,
			cpuTime:  3600,
			used:     7 << 30,
			total:    8 << 30,
			text:     "This job only needed 10% of the requested time which was 10:00:00.",
			severity: BoldRed,
		},
		{
			name:     "time limit somewhat too long",
			job:      slurm.Job{Cluster: "della", State: slurm.StateCompleted, Partition: "cpu", TimeLimit: minutes(90)},
			cores:    1,
			cpuTime:  3600,
			used:     7 << 30,
			total:    8 << 30,
			text:     "This job only needed 67% of the requested time which was 01:30:00.",
			severity: Normal,
		},
		{
			name:    "time limit about right",
			job:     slurm.Job{Cluster: "della", State: slurm.StateCompleted, Partition: "cpu", TimeLimit: minutes(60)},
			cores:   1,
			cpuTime: 3600,
			used:    7 << 30,
			total:   8 << 30,
			absent:  "of the requested time",
		},
		{
			name:     "large memory node",
			job:      slurm.Job{Cluster: "della", State: slurm.StateCompleted, Partition: "datascience", Account: "chem"},
			cores:    4,
			cpuTime:  4 * 3600,
			used:     20 << 30,
			total:    200 << 30,
			text:     "it only used 20 GB of CPU memory. The large-memory nodes should only be used for jobs that require more than 190 GB. Please allocate less memory by using a Slurm directive such as --mem-per-cpu=6G or --mem=24G.",
			severity: Normal,
		},
		{
			name:     "large memory node physics ceiling",
			job:      slurm.Job{Cluster: "della", State: slurm.StateCompleted, Partition: "datascience", Account: "physics"},
			cores:    4,
			cpuTime:  4 * 3600,
			used:     200 << 30,
			total:    250 << 30,
			text:     "it only used 200 GB of CPU memory. The large-memory nodes should only be used for jobs that require more than 380 GB. Please allocate less memory by using a Slurm directive such as --mem-per-cpu=60G or --mem=240G.",
			severity: Normal,
		},
		{
			name:    "large memory node well used",
			job:     slurm.Job{Cluster: "della", State: slurm.StateCompleted, Partition: "datascience", Account: "chem"},
			cores:   4,
			cpuTime: 4 * 3600,
			used:    200 << 30,
			total:   250 << 30,
			absent:  "large-memory",
		},
		{
			name:     "multi-core low CPU",
			job:      slurm.Job{Cluster: "adroit", State: slurm.StateCompleted},
			cores:    4,
			cpuTime:  0.3 * 4 * 3600,
			used:     3 << 30,
			total:    4 << 30,
			text:     "The overall CPU utilization of this job is 30%. This value is low compared to the target range",
			severity: BoldRed,
		},
	} {
		job := c.job
		job.JobID = "11"
		job.Nodes = 1
		job.Cores = int(c.cores)
		job.Start = 0
		job.End = 3600
		s := make(sample.Store)
		cpuNode(s, "n1", c.cores, c.cpuTime, c.used, c.total)
		notes := evaluate(t, &job, s)
		if c.text != "" {
			found := find(notes, c.text)
			if len(found) != 1 || found[0].Severity != c.severity {
				t.Errorf("%s: want %s note %q, got %v", c.name, c.severity, c.text, notes)
			}
		}
		if c.absent != "" && len(find(notes, c.absent)) != 0 {
			t.Errorf("%s: unexpected note %q in %v", c.name, c.absent, notes)
		}
	}
}
