package notes

import (
	"fmt"
	"math"
	"strings"

	"jobstats/efficiency"
	"jobstats/format"
	"jobstats/slurm"
)

const secondsPerHour = 3600

// The order matters, see the package comment.  Alerts come first, then plain advice, then
// information.
var rules = []func(*evaluation){
	zeroGPURule,
	fractionalGPURule,
	zeroCPURule,
	lowGPURule,
	lowCPURule,
	tooManyNodesCPURule,
	tooManyNodesGPURule,
	outOfMemoryRule,
	timeoutRule,
	timeEfficiencyRule,
	largeMemoryRule,
	serialCodeRule,
	memoryOverallocationRule,
	serialPartitionRule,
	somewhatLowGPURule,
	testQOSRule,
	fractionalGPUInfoRule,
	dashboardRule,
}

func (ev *evaluation) ranLongEnough() bool {
	return ev.runtime > ev.t.MinRuntimeSeconds
}

func (ev *evaluation) isFractionalGPUPartition() bool {
	return ev.cfg.FractionalGPUPartition != "" && ev.job.Partition == ev.cfg.FractionalGPUPartition
}

func (ev *evaluation) isSession() bool {
	return dashboardSession.Match(ev.job.Name) || ev.job.Name == interactiveName
}

func zeroGPURule(ev *evaluation) {
	job := ev.job
	if job.GPUs == 0 || !ev.ranLongEnough() {
		return
	}
	unused := ev.agg.UnusedGPUs()
	if unused == 0 {
		return
	}
	if job.GPUs == 1 {
		ev.add(
			BoldRed,
			"This job did not use the GPU. Please resolve this before running additional jobs. "+
				"Wasting resources prevents other users from getting their work done and it causes "+
				"your subsequent jobs to have a lower priority. Is the code GPU-enabled? Please consult "+
				"the documentation for the software. For more info:",
			ev.links.GPUComputing,
		)
	} else {
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"This job did not use %d of the %d allocated GPUs. Please resolve this before running "+
					"additional jobs. Wasting resources prevents other users from getting their work "+
					"done and it causes your subsequent jobs to have a lower priority. Is the code "+
					"capable of using multiple GPUs? Please consult the documentation for the software. "+
					"For more info:",
				unused,
				job.GPUs,
			),
			ev.links.GPUComputing,
		)
	}
	ev.zeroGPU = true
}

// Single-GPU jobs with little load on a full GPU should use a GPU fraction instead.

func fractionalGPURule(ev *evaluation) {
	job, eff := ev.job, ev.eff
	if ev.zeroGPU || job.GPUs != 1 || ev.cluster.FullGPUPartition == "" ||
		job.Partition != ev.cluster.FullGPUPartition || ev.cfg.FractionalGPUPartition == "" ||
		!ev.ranLongEnough() || eff.GPU >= float64(ev.t.GPUUtilizationRed) || job.Cores != 1 ||
		eff.MemUsedGiB >= 32 || eff.GPUMemUsedGiB >= 10 {
		return
	}
	const opening = "This job should probably use a MIG GPU instead of a full A100 GPU. MIG is ideal " +
		"for jobs with a low GPU utilization that only require a single CPU-core, less than 32 GB " +
		"of CPU memory and less than 10 GB of GPU memory."
	partition := ev.cfg.FractionalGPUPartition
	switch {
	case jupyterSession.Match(job.Name):
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"%s To use MIG with OnDemand Jupyter, choose \"%s\" as the \"Custom partition\" when "+
					"creating the session. For more info:",
				opening,
				partition,
			),
			ev.links.JupyterMIG,
		)
	case job.Name == interactiveName:
		ev.add(
			BoldRed,
			opening+" To use MIG with salloc:",
			"$ salloc --nodes=1 --ntasks=1 --time=60:00 --gres=gpu:1 --partition="+partition,
			"For more info:",
			ev.links.FractionalGPU,
		)
	default:
		ev.add(
			BoldRed,
			opening+" For future jobs, please add the following line to your Slurm script:",
			"#SBATCH --partition="+partition,
			"For more info:",
			ev.links.FractionalGPU,
		)
	}
}

func zeroCPURule(ev *evaluation) {
	job := ev.job
	if !ev.ranLongEnough() {
		return
	}
	unused := ev.agg.UnusedCPUNodes()
	if unused == 0 {
		return
	}
	if job.Nodes == 1 {
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"This job did not use the CPU. This suggests that something went wrong at the very "+
					"beginning of the job. Check your Slurm and application scripts for errors and "+
					"look for useful information in the file slurm-%s.out if it exists.",
				job.JobID,
			),
		)
	} else {
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"This job did not use %d of the %d allocated nodes. Please resolve this before "+
					"running additional jobs. Is the code capable of using multiple nodes? Please "+
					"consult the documentation for the software. For more info:",
				unused,
				job.Nodes,
			),
			ev.links.ParallelCode,
		)
	}
	ev.zeroCPU = true
}

func lowGPURule(ev *evaluation) {
	if ev.zeroGPU || ev.job.GPUs == 0 || ev.eff.GPU > float64(ev.t.GPUUtilizationRed) {
		return
	}
	opening := fmt.Sprintf(
		"The overall GPU utilization of this job is only %d%%. This value is low compared to the "+
			"cluster mean value of 50%%.",
		ev.eff.GPURounded,
	)
	if ev.isSession() && ev.runtime > 12*secondsPerHour {
		ev.add(
			BoldRed,
			opening+" Please do not create \"salloc\" or OnDemand sessions for more than 12 hours "+
				"unless you plan to work intensively during the entire period. For more info:",
			ev.links.GPUUtilization,
		)
	} else {
		ev.add(
			BoldRed,
			opening+" Please investigate the reason(s) for the low utilization. For more info:",
			ev.links.GPUUtilization,
		)
	}
}

// Single-core jobs are only told off when they are really bad.

func lowCPURule(ev *evaluation) {
	cpu := ev.eff.CPU
	if ev.zeroCPU || ev.job.GPUs > 0 || cpu >= ev.t.CPUUtilizationBlack {
		return
	}
	red := cpu < ev.t.CPUUtilizationRed
	severity, somewhat := Normal, " somewhat "
	if red {
		severity, somewhat = BoldRed, " "
	}
	ceff := "less than 1"
	if cpu > 0 {
		ceff = fmt.Sprint(cpu)
	}
	if ev.job.Cores > 1 {
		ev.add(
			severity,
			fmt.Sprintf(
				"The overall CPU utilization of this job is %s%%. This value is%slow compared to the "+
					"target range of 90%% and above. Please investigate the reason(s) for the low "+
					"efficiency. For instance, have you conducted a scaling analysis? For more info:",
				ceff,
				somewhat,
			),
			ev.links.CPUUtilization,
		)
	} else if red {
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"The CPU utilization of this job is %s%%. This value is low compared to the target "+
					"range of 90%% and above. Please investigate the reason(s) for the low efficiency. "+
					"For more info:",
				ceff,
			),
			ev.links.CPUUtilization,
		)
	}
}

func tooManyNodesCPURule(ev *evaluation) {
	job, eff := ev.job, ev.eff
	if job.Nodes <= 1 || eff.CoresPerNode >= 16 || eff.GBPerNodeUsed >= 128 || job.GPUs > 0 {
		return
	}
	ev.add(
		BoldRed,
		fmt.Sprintf(
			"This job used %d CPU-cores from %d compute nodes. Please try to use as few nodes as "+
				"possible by decreasing the value of the --nodes Slurm directive and increasing the "+
				"value of --ntasks-per-node. Run the \"snodes\" command to see the number of available "+
				"CPU-cores per node (see CPUS column). For more info:",
			job.Cores,
			job.Nodes,
		),
		ev.links.Slurm,
	)
}

// The GPU node layout decides what "too thinly spread" means.

func tooManyNodesGPURule(ev *evaluation) {
	job, layout := ev.job, ev.cluster.GPUNodes
	if job.Nodes <= 1 || job.GPUs == 0 {
		return
	}
	if layout.OnePerNode && job.Nodes == job.GPUs {
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"This job used %d GPUs from %d compute nodes. The GPU nodes on %s have %s GPUs per "+
					"node. Please try to use as few nodes as possible by lowering the value of the "+
					"--nodes Slurm directive and increasing the value of --gres=gpu:N. For more info:",
				job.GPUs,
				job.Nodes,
				ev.cluster.Title,
				layout.Description,
			),
			ev.links.SlurmGPUs,
		)
	}
	if layout.PerNode > 0 && job.GPUs < layout.PerNode*job.Nodes {
		ev.add(
			BoldRed,
			fmt.Sprintf(
				"This job used %d GPUs from %d compute nodes. Please try to use as few nodes as "+
					"possible by allocating more GPUs per node. The GPU nodes on %s have %s GPUs per "+
					"node. For more info:",
				job.GPUs,
				job.Nodes,
				ev.cluster.Title,
				layout.Description,
			),
			ev.links.SlurmGPUs,
		)
	}
}

func outOfMemoryRule(ev *evaluation) {
	if ev.job.State != slurm.StateOutOfMemory {
		return
	}
	ev.add(
		BoldRed,
		"This job failed because it needed more CPU memory than the amount that was requested. "+
			"The solution is to resubmit the job while requesting more CPU memory by modifying the "+
			"--mem-per-cpu or --mem Slurm directive. For more info:",
		ev.links.Memory,
	)
}

func timeoutRule(ev *evaluation) {
	if ev.job.State != slurm.StateTimeout {
		return
	}
	ev.add(
		BoldRed,
		"This job failed because it exceeded the time limit. If there are no other problems then "+
			"the solution is to increase the value of the --time Slurm directive and resubmit the "+
			"job. For more info:",
		ev.links.Slurm,
	)
}

func timeEfficiencyRule(ev *evaluation) {
	eff := ev.eff
	if !eff.TimeViolation {
		return
	}
	severity := Normal
	if eff.TimeViolationRed {
		severity = BoldRed
	}
	ev.add(
		severity,
		fmt.Sprintf(
			"This job only needed %d%% of the requested time which was %s. For future jobs, please "+
				"request less time by modifying the --time Slurm directive. This will lower your "+
				"queue times and allow the Slurm job scheduler to work more effectively for all users. "+
				"For more info:",
			eff.TimeEfficiency,
			format.Seconds(ev.job.TimeLimitSeconds()),
		),
		ev.links.Slurm,
	)
}

// Complain only if the job used less than 80% of the memory the large-memory nodes exist for.

func largeMemoryRule(ev *evaluation) {
	lm, eff := ev.cluster.LargeMemory, ev.eff
	if lm.Partition == "" || ev.job.Partition != lm.Partition {
		return
	}
	maxMem := lm.MaxFor(ev.job.Account)
	if eff.MemUsedGiB >= 0.8*float64(maxMem) {
		return
	}
	ev.add(
		Normal,
		fmt.Sprintf(
			"This job ran on a large-memory (%s) node but it only used %d GB of CPU memory. The "+
				"large-memory nodes should only be used for jobs that require more than %d GB. Please "+
				"allocate less memory by using a Slurm directive such as --mem-per-cpu=%dG or "+
				"--mem=%dG. For more info:",
			lm.Partition,
			int(math.Round(eff.MemUsedGiB)),
			maxMem,
			efficiency.RoundedMemoryWithSafety(eff.GBPerCoreUsed),
			efficiency.RoundedMemoryWithSafety(eff.GBPerNodeUsed),
		),
		ev.links.Memory,
	)
}

// A multi-core job whose utilization is about 1/cores is probably running serial code.

func serialCodeRule(ev *evaluation) {
	job, cpu := ev.job, ev.eff.CPU
	if job.Nodes != 1 || job.Cores <= 1 || job.GPUs > 0 {
		return
	}
	ifSerial := 100 / float64(job.Cores)
	ratio := float64(cpu) / ifSerial
	if ratio <= 0.85 || ratio >= 1.1 {
		return
	}
	approx := " "
	if cpu != int(math.Round(ifSerial)) {
		approx = " approximately "
	}
	ev.add(
		Normal,
		fmt.Sprintf(
			"The CPU utilization of this job (%d%%) is%sequal to 1 divided by the number of allocated "+
				"CPU-cores (1/%d=%d%%). This suggests that you may be running a code that can only use "+
				"1 CPU-core. If this is true then allocating more than 1 CPU-core is wasteful. Please "+
				"consult the documentation for the software to see if it is parallelized. For more info:",
			cpu,
			approx,
			job.Cores,
			int(math.Round(ifSerial)),
		),
		ev.links.ParallelCode,
	)
}

// Over-allocation is judged against the cluster's default memory per core, and only for jobs that
// do not fill their nodes.  Unknown clusters have no cores per node and never get this note.

func memoryOverallocationRule(ev *evaluation) {
	job, eff, cl := ev.job, ev.eff, ev.cluster
	total := eff.CPUMemTotalBytes
	gpuShow := job.GPUs == 0 || (total >= 50e9*float64(job.GPUs) && eff.GPUsPerNode != 4)
	if ev.zeroGPU || ev.zeroCPU || eff.CPUMemory >= ev.t.MinMemoryUsage ||
		eff.GBPerCoreAlloc <= cl.DefaultMemPerCoreGiB()-2 || total <= cl.DefaultMemPerCore ||
		!gpuShow || (cl.LargeMemory.Partition != "" && job.Partition == cl.LargeMemory.Partition) ||
		ev.isFractionalGPUPartition() || job.State == slurm.StateOutOfMemory ||
		eff.CoresPerNode >= float64(cl.CoresPerNode) || !ev.ranLongEnough() {
		return
	}
	opening := "used less than 1%"
	if eff.CPUMemory >= 1 {
		opening = fmt.Sprintf("only used %d%%", eff.CPUMemory)
	}
	requested, _ := format.RequestedMemory(job.ReqMem, job.Cores)
	ev.add(
		Normal,
		fmt.Sprintf(
			"This job %s of the %s of total allocated CPU memory. For future jobs, please allocate "+
				"less memory by using a Slurm directive such as --mem-per-cpu=%dG or --mem=%dG. This "+
				"will reduce your queue times and make the resources available to other users. For "+
				"more info:",
			opening,
			requested,
			efficiency.RoundedMemoryWithSafety(eff.GBPerCoreUsed),
			efficiency.RoundedMemoryWithSafety(eff.GBPerNodeUsed),
		),
		ev.links.Memory,
	)
}

// Clusters for multi-node work run single-node jobs in a low-priority partition.

func serialPartitionRule(ev *evaluation) {
	job, serial := ev.job, ev.cluster.Serial
	if !serial.Enabled || job.Nodes != 1 || job.GPUs > 0 || job.QOS == serial.ExemptQOS {
		return
	}
	condition := "if it only requires 1 node"
	if serial.MaxCores > 0 {
		if job.Cores >= serial.MaxCores {
			return
		}
		condition = fmt.Sprintf("if it requires 1 node and less than %d CPU-cores", serial.MaxCores)
	}
	title := ev.cluster.Title
	ev.add(
		Normal,
		fmt.Sprintf(
			"The %s cluster is intended for jobs that require multiple nodes. This job ran in the "+
				"\"serial\" partition where jobs are assigned the lowest priority. On %s, a job will "+
				"run in the \"serial\" partition %s. Consider carrying out this work elsewhere.",
			title,
			title,
			condition,
		),
	)
}

func somewhatLowGPURule(ev *evaluation) {
	gpu := ev.eff.GPU
	if ev.zeroGPU || ev.job.GPUs == 0 || gpu >= float64(ev.t.GPUUtilizationBlack) ||
		gpu <= float64(ev.t.GPUUtilizationRed) || !ev.ranLongEnough() {
		return
	}
	ev.add(
		Normal,
		fmt.Sprintf(
			"The overall GPU utilization of this job is %d%%. This value is somewhat low compared to "+
				"the cluster mean value of 50%%. For more info:",
			ev.eff.GPURounded,
		),
		ev.links.GPUUtilization,
	)
}

func testQOSRule(ev *evaluation) {
	qos := ev.job.QOS
	if !strings.Contains(qos, "test") && !strings.Contains(qos, "debug") {
		return
	}
	ev.add(
		Normal,
		fmt.Sprintf(
			"This job ran in the %s QOS. Each user can only run a small number of jobs "+
				"simultaneously in this QOS. For more info:",
			qos,
		),
		ev.links.TestQueue,
	)
}

func fractionalGPUInfoRule(ev *evaluation) {
	if !ev.isFractionalGPUPartition() {
		return
	}
	ev.add(
		Normal,
		fmt.Sprintf(
			"This job ran on the \"%s\" partition where each job is limited to 1 MIG GPU, 1 CPU-core, "+
				"10 GB of GPU memory and 32 GB of CPU memory. A MIG GPU is about 1/7th as powerful as "+
				"an A100 GPU. Please continue using the \"%s\" partition when possible. For more info:",
			ev.job.Partition,
			ev.job.Partition,
		),
		ev.links.FractionalGPU,
	)
}

func dashboardRule(ev *evaluation) {
	if ev.cluster.Dashboard == "" {
		return
	}
	link := ev.cluster.Dashboard
	if ev.links.DashboardHint != "" {
		link += "  " + ev.links.DashboardHint
	}
	ev.add(Normal, "For additional job metrics including metrics plotted against time:", link)
}
