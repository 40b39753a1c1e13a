package efficiency

import (
	"testing"

	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/sample"
	"jobstats/slurm"
)

func TestPercent(t *testing.T) {
	for _, c := range []struct {
		used, total float64
		want        int
	}{
		{1, 8, 13},
		{0, 0, 0},
		{5, 0, 0},
		{3, 2, 100},
		{-1, 2, 0},
		{1, 3, 33},
		{2, 3, 67},
	} {
		if got := Percent(c.used, c.total); got != c.want {
			t.Errorf("Percent(%v, %v) = %d, want %d", c.used, c.total, got, c.want)
		}
	}
}

func TestRoundedMemoryWithSafety(t *testing.T) {
	for _, c := range []struct {
		used float64
		want int
	}{
		{0, 1},
		{0.1, 1},
		{10, 12},
		{50, 60},
		{37.5, 45},
		{100, 120},
		{200, 240},
		{834, 1100},
		{1000, 1200},
	} {
		if got := RoundedMemoryWithSafety(c.used); got != c.want {
			t.Errorf("RoundedMemoryWithSafety(%v) = %d, want %d", c.used, got, c.want)
		}
	}
	prev := 0
	for x := 0.0; x < 3000; x += 0.7 {
		got := RoundedMemoryWithSafety(x)
		if got < prev {
			t.Fatalf("Not monotonic at %v: %d < %d", x, got, prev)
		}
		if float64(got) < x {
			t.Fatalf("Suggestion %d below usage %v", got, x)
		}
		prev = got
	}
}

func aggregateOf(t *testing.T, s sample.Store, job *slurm.Job) *aggregate.Result {
	r, err := aggregate.Aggregate(s, job.NodeList, job.Runtime(), job.GPUs)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestComputeScenarioA(t *testing.T) {
	job := &slurm.Job{Nodes: 1, Cores: 1, Start: 0, End: 3600, State: slurm.StateCompleted}
	s := make(sample.Store)
	s.Set("n1", sample.CPUs, 1)
	s.Set("n1", sample.TotalTime, 3600)
	s.Set("n1", sample.UsedMemory, 1<<30)
	s.Set("n1", sample.TotalMemory, 8<<30)
	e := Compute(job, aggregateOf(t, s, job), config.DefaultThresholds(30))
	if e.CPU != 100 || e.CPUMemory != 13 {
		t.Fatalf("Efficiency: %+v", e)
	}
	if e.GBPerCoreUsed != 1 || e.GBPerNodeUsed != 1 || e.GBPerCoreAlloc != 8 {
		t.Fatalf("Memory figures: %+v", e)
	}
	if e.TimeLimitKnown || e.TimeViolation {
		t.Fatalf("Time efficiency without a limit: %+v", e)
	}
}

func TestComputeGPU(t *testing.T) {
	job := &slurm.Job{Nodes: 1, Cores: 4, GPUs: 2, Start: 0, End: 1000}
	s := make(sample.Store)
	s.Set("g", sample.CPUs, 4)
	s.SetDevice("g", sample.GPUUtilization, "0", 20.5)
	s.SetDevice("g", sample.GPUUtilization, "1", 30)
	s.SetDevice("g", sample.GPUTotalMemory, "0", 10)
	s.SetDevice("g", sample.GPUTotalMemory, "1", 10)
	s.SetDevice("g", sample.GPUUsedMemory, "0", 1)
	s.SetDevice("g", sample.GPUUsedMemory, "1", 9)
	e := Compute(job, aggregateOf(t, s, job), config.DefaultThresholds(30))
	if e.GPU != 25.25 || e.GPURounded != 25 || !e.GPUExact {
		t.Fatalf("GPU utilization: %+v", e)
	}
	// Sum over sums, not the mean of 10% and 90%
	if e.GPUMemory != 50 {
		t.Fatalf("GPU memory: %d", e.GPUMemory)
	}
	if e.CPU != 0 || e.CPUMemory != 0 {
		t.Fatalf("Missing metrics: %+v", e)
	}
}

func TestTimeEfficiency(t *testing.T) {
	limit := int64(600)
	th := config.DefaultThresholds(30)
	job := &slurm.Job{Nodes: 1, Cores: 1, Start: 0, End: 7200, State: slurm.StateCompleted, TimeLimit: &limit}
	s := make(sample.Store)
	s.Set("n", sample.CPUs, 1)
	e := Compute(job, aggregateOf(t, s, job), th)
	if !e.TimeLimitKnown || e.TimeEfficiency != 20 || !e.TimeViolation || !e.TimeViolationRed {
		t.Fatalf("Time efficiency: %+v", e)
	}

	job.End = 1800 * 10
	e = Compute(job, aggregateOf(t, s, job), th)
	if e.TimeEfficiency != 50 || !e.TimeViolation || e.TimeViolationRed {
		t.Fatalf("Time efficiency: %+v", e)
	}

	// Too short to judge
	job.End = 800
	e = Compute(job, aggregateOf(t, s, job), th)
	if e.TimeViolation {
		t.Fatalf("Short job judged: %+v", e)
	}

	// Overran its limit
	job.End = 40000
	job.State = slurm.StateTimeout
	e = Compute(job, aggregateOf(t, s, job), th)
	if e.TimeLimitKnown || e.TimeViolation {
		t.Fatalf("Only completed jobs are judged: %+v", e)
	}
}
