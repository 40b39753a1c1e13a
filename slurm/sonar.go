package slurm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NordicHPC/sonar/util/formats/newfmt"

	. "jobstats/common"
	"jobstats/hostglob"
)

// SonarJobs looks up jobs in a file of sonar job envelopes, as written by `sonar slurm`.  This is
// for hosts that have no sacct but receive the scheduler's records through sonar.

type SonarJobs struct {
	Path string

	// For running jobs
	Now func() time.Time
}

func (s *SonarJobs) Lookup(ctx context.Context, jobid, cluster string) (*Job, error) {
	input, err := os.Open(s.Path)
	if err != nil {
		return nil, NewFailure(LookupFailure, fmt.Sprintf("Failed to lookup jobid %s", jobid), err)
	}
	defer input.Close()
	jobs, err := ReadSonarJobs(input, s.now())
	if err != nil {
		return nil, NewFailure(LookupFailure, fmt.Sprintf("Failed to lookup jobid %s", jobid), err)
	}
	var found *Job
	for _, j := range jobs {
		if (j.JobID == jobid || j.JobIDRaw == jobid) && (cluster == "" || j.Cluster == cluster) {
			found = j
		}
	}
	if found == nil {
		if cluster != "" {
			return nil, NewFailure(
				LookupFailure,
				fmt.Sprintf(
					"Failed to lookup jobid %s on %s. Make sure you specified the correct cluster.",
					jobid,
					cluster,
				),
				nil,
			)
		}
		return nil, NewFailure(LookupFailure, fmt.Sprintf("Failed to lookup jobid %s.", jobid), nil)
	}
	if found.Start == 0 {
		if found.State == StatePending {
			return nil, NewFailure(
				LookupFailure,
				fmt.Sprintf("Failed to get details for job %s since it is a PENDING job.", jobid),
				nil,
			)
		}
		return nil, NewFailure(LookupFailure, fmt.Sprintf("Failed to get details for job %s.", jobid), nil)
	}
	found.JobID = jobid
	return found, nil
}

func (s *SonarJobs) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ReadSonarJobs returns the job allocations (not the steps) in a stream of job envelopes.
// Envelopes carrying errors are skipped.

func ReadSonarJobs(input io.Reader, now time.Time) ([]*Job, error) {
	jobs := make([]*Job, 0)
	err := newfmt.ConsumeJSONJobs(input, false, func(r *newfmt.JobsEnvelope) {
		jobs = append(jobs, JobsFromEnvelope(r, now)...)
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func JobsFromEnvelope(r *newfmt.JobsEnvelope, now time.Time) []*Job {
	if r.Data == nil || len(r.Errors) > 0 {
		return nil
	}
	cluster := string(r.Data.Attributes.Cluster)
	jobs := make([]*Job, 0)
	for i := range r.Data.Attributes.SlurmJobs {
		sj := &r.Data.Attributes.SlurmJobs[i]
		if sj.JobStep != "" {
			continue
		}
		jobs = append(jobs, jobFromSonar(cluster, sj, now))
	}
	return jobs
}

func jobFromSonar(cluster string, sj *newfmt.SlurmJob, now time.Time) *Job {
	raw := strconv.FormatUint(uint64(sj.JobID), 10)
	id := raw
	if sj.ArrayJobID != 0 {
		id = fmt.Sprintf("%d_%d", uint64(sj.ArrayJobID), uint64(sj.ArrayTaskID))
	}
	job := &Job{
		JobID:     id,
		JobIDRaw:  raw,
		Cluster:   cluster,
		User:      sj.UserName,
		Account:   sj.Account,
		State:     NormalizeState(string(sj.JobState)),
		Partition: sj.Partition,
		Nodes:     int(sj.ReqNodes),
		Cores:     int(sj.ReqCPUS),
		Name:      TruncateName(sj.JobName),
		NodeList:  []string{},
	}
	if sj.Sacct != nil {
		job.GPUs = GPUsFromTRES(sj.Sacct.AllocTRES)
		job.ReqMem = MemFromTRES(sj.Sacct.AllocTRES)
	}
	if limit, err := sj.Timelimit.ToUint(); err == nil && limit > 0 {
		l := int64(limit)
		job.TimeLimit = &l
	}
	for _, pattern := range sj.NodeList {
		hosts, err := hostglob.ExpandNodeList(string(pattern))
		if err != nil {
			Log.Debugf("Ignoring node list %s: %v", pattern, err)
			continue
		}
		job.NodeList = append(job.NodeList, hosts...)
	}
	if t, err := time.Parse(time.RFC3339, string(sj.Start)); err == nil {
		job.Start = t.Unix()
	}
	if t, err := time.Parse(time.RFC3339, string(sj.End)); err == nil {
		job.End = t.Unix()
	} else if job.Start != 0 {
		job.End = now.Unix()
	}
	if job.Nodes == 0 {
		job.Nodes = len(job.NodeList)
	}
	return job
}

// Finished is true for jobs that are no longer pending or running.

func (j *Job) Finished() bool {
	return j.Start != 0 && j.State != StateRunning && j.State != StatePending &&
		!strings.HasPrefix(j.State, "REQUEUE") && j.State != "SUSPENDED"
}
