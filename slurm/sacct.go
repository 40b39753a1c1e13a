package slurm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	. "jobstats/common"
	"jobstats/hostglob"
	"jobstats/process"
)

// The order of the fields is the order of the columns in the output.  jobname must be the last
// field since job names can contain the separator "|".
var sacctFields = []string{
	"jobidraw",
	"start",
	"end",
	"cluster",
	"reqtres",
	"admincomment",
	"user",
	"account",
	"state",
	"nnodes",
	"ncpus",
	"reqmem",
	"qos",
	"partition",
	"timelimitraw",
	"nodelist",
	"jobname",
}

const (
	fJobIDRaw = iota
	fStart
	fEnd
	fCluster
	fReqTRES
	fAdminComment
	fUser
	fAccount
	fState
	fNNodes
	fNCPUS
	fReqMem
	fQOS
	fPartition
	fTimelimitRaw
	fNodeList
	fJobName
	numFields
)

// Sacct looks up jobs with `sacct`.  SchedulerName and UserName translate between the cluster names
// users know and the names the scheduler uses; either may be nil.

type Sacct struct {
	Program string

	// Ignore cached statistics in AdminComment.
	IgnorePayload bool

	SchedulerName func(string) string
	UserName      func(string) string

	// For testing
	Now func() time.Time
}

func NewSacct() *Sacct {
	return &Sacct{
		Program: "sacct",
		Now:     time.Now,
	}
}

func (s *Sacct) Lookup(ctx context.Context, jobid, cluster string) (*Job, error) {
	schedCluster := cluster
	if cluster != "" && s.SchedulerName != nil {
		schedCluster = s.SchedulerName(cluster)
	}
	args := []string{"-P", "-X", "-o", strings.Join(sacctFields, ","), "-j", jobid}
	if schedCluster != "" {
		args = append(args, "-M", schedCluster)
	}
	Log.Debugf("%s %s", s.Program, strings.Join(args, " "))
	stdout, _, err := process.RunSubprocess(ctx, s.Program, args, []string{"SLURM_TIME_FORMAT=%s"})
	if err != nil {
		return nil, NewFailure(LookupFailure, fmt.Sprintf("Failed to lookup jobid %s", jobid), err)
	}
	return s.parse(jobid, cluster, stdout)
}

// parse interprets `sacct -P` output: a header line and a line per job.  With -X there is only one
// job line, but should there be more then the last one wins.

func (s *Sacct) parse(jobid, cluster, output string) (*Job, error) {
	var fields []string
	for i, line := range strings.Split(output, "\n") {
		if i == 0 || line == "" {
			continue
		}
		xs := strings.SplitN(line, "|", numFields)
		if len(xs) != numFields {
			Log.Debugf("Dropping sacct line with %d fields: %s", len(xs), line)
			continue
		}
		fields = xs
	}
	if fields == nil || fields[fJobIDRaw] == "" {
		if cluster != "" {
			return nil, NewFailure(
				LookupFailure,
				fmt.Sprintf(
					"Failed to lookup jobid %s on %s. Make sure you specified the correct cluster.",
					jobid,
					s.userName(cluster),
				),
				nil,
			)
		}
		return nil, NewFailure(LookupFailure, fmt.Sprintf("Failed to lookup jobid %s.", jobid), nil)
	}
	Log.Debugf("sacct fields: %s", strings.Join(fields, "|"))

	job := &Job{
		JobID:     jobid,
		JobIDRaw:  fields[fJobIDRaw],
		Cluster:   s.userName(fields[fCluster]),
		User:      fields[fUser],
		Account:   fields[fAccount],
		State:     NormalizeState(fields[fState]),
		QOS:       fields[fQOS],
		Partition: fields[fPartition],
		ReqMem:    fields[fReqMem],
		GPUs:      GPUsFromTRES(fields[fReqTRES]),
		Name:      TruncateName(fields[fJobName]),
	}
	if !s.IgnorePayload {
		job.Payload = fields[fAdminComment]
	}
	job.Nodes, _ = parseCount(fields[fNNodes])
	job.Cores, _ = parseCount(fields[fNCPUS])
	if limit, err := strconv.ParseInt(fields[fTimelimitRaw], 10, 64); err == nil {
		job.TimeLimit = &limit
	}
	if nodes, err := hostglob.ExpandNodeList(fields[fNodeList]); err == nil {
		job.NodeList = nodes
	} else {
		Log.Debugf("Ignoring node list: %v", err)
	}

	failedDetails := func() error {
		if job.State == StatePending {
			return NewFailure(
				LookupFailure,
				fmt.Sprintf("Failed to get details for job %s since it is a PENDING job.", jobid),
				nil,
			)
		}
		return NewFailure(LookupFailure, fmt.Sprintf("Failed to get details for job %s.", jobid), nil)
	}

	// Running jobs have End=Unknown.
	if fields[fEnd] == "Unknown" {
		job.End = s.now().Unix()
	} else if end, err := strconv.ParseInt(fields[fEnd], 10, 64); err == nil {
		job.End = end
	} else {
		return nil, failedDetails()
	}
	start, err := strconv.ParseInt(fields[fStart], 10, 64)
	if err != nil {
		return nil, failedDetails()
	}
	job.Start = start
	return job, nil
}

func (s *Sacct) userName(cluster string) string {
	if s.UserName != nil {
		return s.UserName(cluster)
	}
	return cluster
}

func (s *Sacct) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func parseCount(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
