package slurm

import (
	"context"

	"jobstats/process"
)

// A SummaryTool produces a point-in-time summary of a job from the scheduler's own accounting.
// It is the fallback for jobs too short to have metric samples.

type SummaryTool interface {
	Summary(ctx context.Context, jobid string) (string, error)
}

type Seff struct {
	Program string
}

func NewSeff() *Seff {
	return &Seff{Program: "seff"}
}

func (s *Seff) Summary(ctx context.Context, jobid string) (string, error) {
	stdout, _, err := process.RunSubprocess(ctx, s.Program, []string{jobid}, nil)
	if err != nil {
		return "", err
	}
	return stdout, nil
}
