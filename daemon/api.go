package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	. "jobstats/common"
	"jobstats/hostglob"
	"jobstats/jobreport"
	"jobstats/report"
)

type JobInput struct {
	JobID   string `path:"jobid" doc:"Job id, possibly an array job id like 123_4"`
	Cluster string `query:"cluster" doc:"Cluster the job ran on, default is the scheduler's default"`
	Format  string `query:"format" enum:"text,simple,json" default:"text" doc:"Report format"`
}

type EfficiencyBody struct {
	CPU            int  `json:"cpu" doc:"Percent of allocated CPU time used"`
	CPUMemory      int  `json:"cpu_memory" doc:"Percent of allocated CPU memory used at peak"`
	GPU            *int `json:"gpu,omitempty" doc:"Mean GPU utilization, percent"`
	GPUExact       bool `json:"gpu_exact,omitempty" doc:"False if GPU utilization is an approximation"`
	GPUMemory      *int `json:"gpu_memory,omitempty" doc:"Percent of GPU memory used at peak"`
	TimeEfficiency *int `json:"time_efficiency,omitempty" doc:"Percent of the time limit used"`
}

type NoteBody struct {
	Severity string `json:"severity" enum:"normal,bold,bold-red"`
	Text     string `json:"text"`
}

type JobBody struct {
	JobID      string          `json:"jobid"`
	Cluster    string          `json:"cluster"`
	State      string          `json:"state"`
	Nodes      string          `json:"nodes,omitempty" doc:"Compressed node list, like della-r1c[1-3]"`
	Source     string          `json:"source" doc:"Where the statistics came from"`
	Report     string          `json:"report,omitempty" doc:"The rendered report, without colour"`
	Efficiency *EfficiencyBody `json:"efficiency,omitempty"`
	Notes      []NoteBody      `json:"notes,omitempty"`
	Payload    any             `json:"payload,omitempty" doc:"The job statistics, for format=json"`
}

type JobOutput struct {
	Body JobBody
}

type HealthOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type api struct {
	reporter *jobreport.Reporter
	renderer *report.Renderer
	metrics  *metrics
}

func registerRoutes(hapi huma.API, a *api) {
	huma.Register(hapi, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{jobid}",
		Summary:     "Efficiency report for a job",
	}, a.getJob)

	huma.Register(hapi, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
	}, func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		out := new(HealthOutput)
		out.Body.Status = "ok"
		return out, nil
	})
}

func (a *api) getJob(ctx context.Context, in *JobInput) (*JobOutput, error) {
	out, err := a.job(ctx, in)
	if err != nil {
		a.metrics.requests.WithLabelValues(outcome(err)).Inc()
		return nil, httpError(err)
	}
	a.metrics.requests.WithLabelValues("ok").Inc()
	return out, nil
}

func (a *api) job(ctx context.Context, in *JobInput) (*JobOutput, error) {
	stats, err := a.reporter.Collect(ctx, in.JobID, in.Cluster)
	if err != nil {
		return nil, err
	}
	job := stats.Job
	out := &JobOutput{
		Body: JobBody{
			JobID:   job.JobID,
			Cluster: job.Cluster,
			State:   job.State,
			Source:  stats.Source,
		},
	}
	if len(job.NodeList) > 0 {
		out.Body.Nodes = hostglob.CompressHostnames(job.NodeList)
	}

	if in.Format == "json" {
		out.Body.Payload = stats.Payload()
		return out, nil
	}

	format := jobreport.FormatEnhanced
	if in.Format == "simple" {
		format = jobreport.FormatSimple
	}
	text, err := a.reporter.Render(ctx, stats, format, a.renderer)
	if err != nil {
		return nil, err
	}
	out.Body.Report = text

	// Short jobs get the summary tool's output and nothing to analyze.
	if len(stats.Store) == 0 {
		return out, nil
	}
	rep, err := a.reporter.Analyze(stats)
	if err != nil {
		return nil, err
	}
	eff := rep.Eff
	out.Body.Efficiency = &EfficiencyBody{
		CPU:       eff.CPU,
		CPUMemory: eff.CPUMemory,
	}
	if job.GPUs > 0 {
		out.Body.Efficiency.GPU = &eff.GPURounded
		out.Body.Efficiency.GPUExact = eff.GPUExact
		out.Body.Efficiency.GPUMemory = &eff.GPUMemory
	}
	if eff.TimeLimitKnown {
		out.Body.Efficiency.TimeEfficiency = &eff.TimeEfficiency
	}
	for _, n := range rep.Notes {
		out.Body.Notes = append(out.Body.Notes, NoteBody{Severity: n.Severity.String(), Text: n.Text()})
	}
	return out, nil
}

func outcome(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind.String()
	}
	return "error"
}

func httpError(err error) error {
	var f *Failure
	if !errors.As(err, &f) {
		Log.Error(err)
		return huma.Error500InternalServerError("Internal error")
	}
	switch f.Kind {
	case LookupFailure, DataUnavailable:
		return huma.Error404NotFound(f.Error())
	case QueryFailure:
		Log.Warning(f)
		return huma.Error502BadGateway(f.Error())
	default:
		Log.Error(f)
		return huma.Error500InternalServerError(f.Error())
	}
}
