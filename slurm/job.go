// Job metadata from the batch scheduler.  A Job is produced by a Provider (sacct, or a file of
// sonar job records) and is read-only afterwards.

package slurm

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	StateRunning     = "RUNNING"
	StateCompleted   = "COMPLETED"
	StateCancelled   = "CANCELLED"
	StateTimeout     = "TIMEOUT"
	StateOutOfMemory = "OUT_OF_MEMORY"
	StatePending     = "PENDING"
)

const maxJobNameLength = 64

type Job struct {
	// The id the user asked for (possibly an array job id like 123_4) and the canonical id.
	JobID    string
	JobIDRaw string

	// The cluster name users know, not the scheduler's name for it.
	Cluster string

	User      string
	Account   string
	State     string
	QOS       string
	Partition string

	Nodes int
	Cores int
	GPUs  int

	// ReqMem as Slurm prints it, "8G", "4000M".
	ReqMem string

	// Requested wall time in minutes; nil when the job has no limit or the limit is unknown.
	TimeLimit *int64

	// Unix seconds.  End is "now" for running jobs.
	Start int64
	End   int64

	// Expanded node list, in scheduler order.  May be empty.
	NodeList []string

	Name string

	// Cached statistics from the scheduler ("JS1:..."), "" if none or if ignored.
	Payload string
}

// Runtime is the job's elapsed time in seconds, never negative.

func (j *Job) Runtime() int64 {
	if j.End < j.Start {
		return 0
	}
	return j.End - j.Start
}

// TimeLimitSeconds is 0 when there is no limit.

func (j *Job) TimeLimitSeconds() int64 {
	if j.TimeLimit == nil {
		return 0
	}
	return 60 * *j.TimeLimit
}

// Provider looks up job metadata.  cluster may be "" for the local cluster.

type Provider interface {
	Lookup(ctx context.Context, jobid, cluster string) (*Job, error)
}

// NormalizeState folds the "CANCELLED by 1234" family into CANCELLED.

func NormalizeState(state string) string {
	if strings.Contains(state, "CANCEL") {
		return StateCancelled
	}
	return state
}

// TruncateName shortens long job names to 64 characters plus an ellipsis.

func TruncateName(name string) string {
	if utf8.RuneCountInString(name) <= maxJobNameLength {
		return name
	}
	return string([]rune(name)[:maxJobNameLength]) + "..."
}

// GPUsFromTRES returns the GPU count in a TRES string such as
// "billing=8,cpu=8,gres/gpu=2,mem=32G,node=1".  Model-qualified entries (gres/gpu:a100=2) repeat the
// plain count and are ignored.

func GPUsFromTRES(tres string) int {
	if !strings.Contains(tres, "gres/gpu=") || strings.Contains(tres, "gres/gpu=0,") {
		return 0
	}
	gpus := 0
	for _, part := range strings.Split(tres, ",") {
		if value, found := strings.CutPrefix(part, "gres/gpu="); found {
			n, err := parseCount(value)
			if err == nil {
				gpus = n
			}
		}
	}
	return gpus
}

// MemFromTRES returns the value of the mem= entry of a TRES string, "" if there is none.

func MemFromTRES(tres string) string {
	for _, part := range strings.Split(tres, ",") {
		if value, found := strings.CutPrefix(part, "mem="); found {
			return value
		}
	}
	return ""
}
