package config

// The clusters for which the table below must have an entry, see Validate.
var SupportedClusters = []string{"adroit", "della", "stellar", "tiger", "traverse"}

type Cluster struct {
	Name string

	// Capitalized name for advisory text.
	Title string

	// Cores per CPU node and the default memory per core in bytes.  Jobs that use fewer cores per
	// node than this and more memory per core than the default are candidates for the
	// over-allocation note.
	CoresPerNode      int
	DefaultMemPerCore float64

	// Single-GPU jobs on this partition with little load should use the fractional GPU partition.
	FullGPUPartition string

	LargeMemory LargeMemory
	GPUNodes    GPUNodeLayout
	Serial      SerialPartition

	// Per-job metrics dashboard; empty for none.
	Dashboard string
}

// LargeMemory describes a partition of large-memory nodes that should only be used by jobs that
// need most of a node's memory.

type LargeMemory struct {
	Partition string

	// Memory per node in GB, with per-account exceptions.
	MaxMemGB      int
	AccountMaxMem map[string]int
}

func (lm LargeMemory) MaxFor(account string) int {
	if probe, found := lm.AccountMaxMem[account]; found {
		return probe
	}
	return lm.MaxMemGB
}

// GPUNodeLayout is used to flag multi-node GPU jobs that spread their GPUs too thinly.  OnePerNode
// flags jobs with exactly one GPU per node, PerNode > 0 flags jobs with fewer than PerNode GPUs per
// node.  Description is the GPU count per node as it reads in advice.

type GPUNodeLayout struct {
	OnePerNode  bool
	PerNode     int
	Description string
}

// SerialPartition describes clusters that penalize single-node jobs.  MaxCores > 0 restricts it to
// jobs with fewer cores than that.

type SerialPartition struct {
	Enabled   bool
	MaxCores  int
	ExemptQOS string
}

func defaultClusters() []Cluster {
	return []Cluster{
		{
			Name:              "adroit",
			Title:             "Adroit",
			CoresPerNode:      32,
			DefaultMemPerCore: 3355443200,
			GPUNodes:          GPUNodeLayout{PerNode: 4, Description: "4"},
			Dashboard:         "https://myadroit.princeton.edu/pun/sys/jobstats",
		},
		{
			Name:              "della",
			Title:             "Della",
			CoresPerNode:      28,
			DefaultMemPerCore: 4194304000,
			FullGPUPartition:  "gpu",
			LargeMemory: LargeMemory{
				Partition:     "datascience",
				MaxMemGB:      190,
				AccountMaxMem: map[string]int{"physics": 380},
			},
			GPUNodes:  GPUNodeLayout{OnePerNode: true, Description: "either 2 or 4"},
			Dashboard: "https://mydella.princeton.edu/pun/sys/jobstats",
		},
		{
			Name:              "stellar",
			Title:             "Stellar",
			CoresPerNode:      96,
			DefaultMemPerCore: 7864320000,
			Serial:            SerialPartition{Enabled: true, MaxCores: 48, ExemptQOS: "stellar-debug"},
			Dashboard:         "https://mystellar.princeton.edu/pun/sys/jobstats",
		},
		{
			Name:              "tiger",
			Title:             "Tiger",
			CoresPerNode:      40,
			DefaultMemPerCore: 4294967296,
			Serial:            SerialPartition{Enabled: true, ExemptQOS: "tiger-test"},
			Dashboard:         "https://stats.rc.princeton.edu",
		},
		{
			Name:              "traverse",
			Title:             "Traverse",
			CoresPerNode:      32,
			DefaultMemPerCore: 7812500000,
			GPUNodes:          GPUNodeLayout{PerNode: 4, Description: "4"},
			Dashboard:         "https://stats.rc.princeton.edu",
		},
	}
}

// Links are the knowledge-base pages that notes point to.

type Links struct {
	GPUComputing   string
	GPUUtilization string
	JupyterMIG     string
	FractionalGPU  string
	ParallelCode   string
	CPUUtilization string
	Slurm          string
	SlurmGPUs      string
	Memory         string
	TestQueue      string

	// Appended to dashboard links.
	DashboardHint string
}

func DefaultLinks() Links {
	const kb = "https://researchcomputing.princeton.edu/support/knowledge-base/"
	return Links{
		GPUComputing:   kb + "gpu-computing",
		GPUUtilization: kb + "gpu-computing#util",
		JupyterMIG:     kb + "jupyter#environments",
		FractionalGPU:  "https://researchcomputing.princeton.edu/systems/della#gpus",
		ParallelCode:   kb + "parallel-code",
		CPUUtilization: "https://researchcomputing.princeton.edu/get-started/cpu-utilization",
		Slurm:          kb + "slurm",
		SlurmGPUs:      kb + "slurm#gpus",
		Memory:         kb + "memory",
		TestQueue:      kb + "job-priority#test-queue",
		DashboardHint:  "(VPN required off-campus)",
	}
}
