// The per-job pipeline: look up the job, find its statistics (the scheduler's cached payload, the
// archive, or the metrics store), and produce the requested output.
//
// Nothing here exits or prints to the terminal on its own.  Every fatal condition is returned as a
// *common.Failure and no partial output is written for a job that fails.

package jobreport

import (
	"context"
	"fmt"
	"io"
	"time"

	. "jobstats/common"
	"jobstats/aggregate"
	"jobstats/config"
	"jobstats/efficiency"
	"jobstats/notes"
	"jobstats/prom"
	"jobstats/report"
	"jobstats/sample"
	"jobstats/slurm"
)

// StatsSource produces live statistics for a job, see prom.Client.

type StatsSource interface {
	Fetch(ctx context.Context, r prom.Request) (sample.Store, error)
}

// Archive is an optional store of payloads, see db.Archive.

type Archive interface {
	Lookup(ctx context.Context, cluster, jobid string) (string, bool, error)
	Store(ctx context.Context, cluster, jobid, payload string) error
}

type Format int

const (
	FormatEnhanced Format = iota
	FormatSimple
	FormatJSON
	FormatBase64
)

// Where the statistics came from.
const (
	SourceNone     = "none"
	SourceCache    = "cache"
	SourceArchive  = "archive"
	SourceMetrics  = "metrics"
	shortRunPrefix = "\nRun time is very short so only providing seff output:\n\n"
)

type Reporter struct {
	Config  *config.Config
	Jobs    slurm.Provider
	Stats   StatsSource
	Summary slurm.SummaryTool

	// May be nil.
	Archive Archive

	// Ignore cached and archived payloads.
	Force bool

	engine *notes.Engine
}

func New(cfg *config.Config, jobs slurm.Provider, stats StatsSource, summary slurm.SummaryTool) *Reporter {
	return &Reporter{
		Config:  cfg,
		Jobs:    jobs,
		Stats:   stats,
		Summary: summary,
		engine:  notes.NewEngine(cfg),
	}
}

// Stats is a job and its samples.  Store is empty if no statistics were found.

type Stats struct {
	Job    *slurm.Job
	Store  sample.Store
	Source string
}

// Collect looks up the job and its statistics.  An undecodable payload is not fatal: it is logged
// and the statistics are recomputed.

func (r *Reporter) Collect(ctx context.Context, jobid, cluster string) (*Stats, error) {
	job, err := r.Jobs.Lookup(ctx, jobid, cluster)
	if err != nil {
		return nil, err
	}
	runtime := job.Runtime()
	Log.Debugf(
		"jobid=%s, jobidraw=%s, start=%d, end=%d, gpus=%d, diff=%d, cluster=%s, data=%s, timelimitraw=%v",
		job.JobID, job.JobIDRaw, job.Start, job.End, job.GPUs, runtime, job.Cluster, job.Payload,
		formatLimit(job.TimeLimit),
	)
	stats := &Stats{Job: job, Store: make(sample.Store), Source: SourceNone}

	if !r.Force && sample.IsPayload(job.Payload) {
		r.decodeInto(stats, job.Payload, SourceCache)
	}
	if len(stats.Store) == 0 && !r.Force && r.Archive != nil {
		payload, found, err := r.Archive.Lookup(ctx, job.Cluster, job.JobIDRaw)
		if err != nil {
			Log.Warningf("Archive lookup failed: %v", err)
		} else if found {
			r.decodeInto(stats, payload, SourceArchive)
		}
	}
	if len(stats.Store) == 0 && runtime >= 2*r.Config.SamplingPeriod {
		store, err := r.fetch(ctx, job)
		if err != nil {
			return nil, err
		}
		stats.Store = store
		stats.Source = SourceMetrics
		if len(store) > 0 && r.Archive != nil && job.Finished() {
			r.archive(ctx, stats)
		}
	}
	return stats, nil
}

func (r *Reporter) fetch(ctx context.Context, job *slurm.Job) (sample.Store, error) {
	return r.Stats.Fetch(ctx, prom.Request{
		Cluster:  r.Config.SchedulerName(job.Cluster),
		JobIDRaw: job.JobIDRaw,
		Runtime:  job.Runtime(),
		End:      time.Unix(job.End, 0),
		GPUs:     job.GPUs,
	})
}

// Ingest archives the statistics of a finished job reported by the scheduler, unless the job
// already carries a payload, is already archived, or is too short to have samples.  It returns
// true if a payload was stored.

func (r *Reporter) Ingest(ctx context.Context, job *slurm.Job) (bool, error) {
	if r.Archive == nil || !job.Finished() || job.Runtime() < 2*r.Config.SamplingPeriod {
		return false, nil
	}
	if !r.Force && sample.IsPayload(job.Payload) {
		return false, nil
	}
	if !r.Force {
		_, found, err := r.Archive.Lookup(ctx, job.Cluster, job.JobIDRaw)
		if err != nil {
			return false, err
		}
		if found {
			return false, nil
		}
	}
	store, err := r.fetch(ctx, job)
	if err != nil {
		return false, err
	}
	if len(store) == 0 {
		return false, nil
	}
	stats := &Stats{Job: job, Store: store, Source: SourceMetrics}
	encoded, err := stats.Payload().Encode()
	if err != nil {
		return false, err
	}
	if err := r.Archive.Store(ctx, job.Cluster, job.JobIDRaw, sample.PayloadPrefix+encoded); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reporter) decodeInto(stats *Stats, payload, source string) {
	p, err := sample.DecodePayload(payload)
	if err != nil {
		Log.Error(NewFailure(DecodeFailure, "ERROR: "+err.Error(), nil))
		return
	}
	stats.Store = p.Nodes
	stats.Source = source
}

func (r *Reporter) archive(ctx context.Context, stats *Stats) {
	encoded, err := stats.Payload().Encode()
	if err != nil {
		Log.Warningf("Could not encode payload: %v", err)
		return
	}
	job := stats.Job
	if err := r.Archive.Store(ctx, job.Cluster, job.JobIDRaw, sample.PayloadPrefix+encoded); err != nil {
		Log.Warning(err)
	}
}

func (s *Stats) Payload() *sample.Payload {
	return &sample.Payload{
		GPUs:      s.Job.GPUs,
		Nodes:     s.Store,
		TotalTime: s.Job.Runtime(),
	}
}

// Analyze aggregates the samples and runs the rules.  A job without samples is DataUnavailable.

func (r *Reporter) Analyze(stats *Stats) (*report.Report, error) {
	job := stats.Job
	agg, err := aggregate.Aggregate(stats.Store, job.NodeList, job.Runtime(), job.GPUs)
	if err != nil {
		return nil, r.noStats(job)
	}
	eff := efficiency.Compute(job, agg, r.Config.Thresholds)
	return &report.Report{
		Job:   job,
		Agg:   agg,
		Eff:   eff,
		Notes: r.engine.Evaluate(job, agg, eff),
	}, nil
}

func (r *Reporter) noStats(job *slurm.Job) error {
	return NewFailure(
		DataUnavailable,
		fmt.Sprintf(
			"No stats found for job %s, either because it is too old or because\n"+
				"it expired from jobstats database. If you are not running this command on the\n"+
				"cluster where the job was run then use the -c option to specify the cluster.\n"+
				"If the run time was very short then try running \"seff %s\".",
			job.JobID,
			job.JobID,
		),
		nil,
	)
}

// Run produces the report for one job in the given format.  Output is written only once it is
// complete.

func (r *Reporter) Run(
	ctx context.Context,
	out io.Writer,
	jobid, cluster string,
	f Format,
	renderer *report.Renderer,
) error {
	stats, err := r.Collect(ctx, jobid, cluster)
	if err != nil {
		return err
	}
	text, err := r.Render(ctx, stats, f, renderer)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, text)
	return err
}

// Render formats collected statistics.  Jobs shorter than one sampling period without statistics
// get the scheduler's summary instead of a report.

func (r *Reporter) Render(ctx context.Context, stats *Stats, f Format, renderer *report.Renderer) (string, error) {
	switch f {
	case FormatJSON:
		text, err := stats.Payload().JSON(false)
		if err != nil {
			return "", err
		}
		return string(text) + "\n", nil
	case FormatBase64:
		return r.encoded(stats) + "\n", nil
	}

	job := stats.Job
	if len(stats.Store) == 0 && job.Runtime() < r.Config.SamplingPeriod {
		return r.summary(ctx, job)
	}
	rep, err := r.Analyze(stats)
	if err != nil {
		return "", err
	}
	if f == FormatSimple {
		return renderer.Simple(rep), nil
	}
	return renderer.Enhanced(rep), nil
}

func (r *Reporter) encoded(stats *Stats) string {
	switch {
	case stats.Job.Runtime() < 2*r.Config.SamplingPeriod:
		return "Short"
	case len(stats.Store) == 0:
		return "None"
	}
	encoded, err := stats.Payload().Encode()
	if err != nil {
		Log.Warningf("Could not encode payload: %v", err)
		return "None"
	}
	return encoded
}

func (r *Reporter) summary(ctx context.Context, job *slurm.Job) (string, error) {
	if r.Summary == nil {
		return "", NewFailure(DataUnavailable, "No job statistics are available.", nil)
	}
	text, err := r.Summary.Summary(ctx, job.JobID)
	if err != nil {
		Log.Debugf("seff failed: %v", err)
		return "", NewFailure(DataUnavailable, "No job statistics are available.", nil)
	}
	return shortRunPrefix + text + "\n", nil
}

func formatLimit(limit *int64) string {
	if limit == nil {
		return "None"
	}
	return fmt.Sprint(*limit)
}
