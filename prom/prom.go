// Client for the Prometheus-compatible metrics store that holds the cgroup and nvidia exporter
// series.  Every query is an instant query evaluated at the job's end time over a window as long as
// the job's runtime, so that each series reduces to one summary value per node (and per GPU).

package prom

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	. "jobstats/common"
	"jobstats/sample"
	"jobstats/status"
)

// Each query is formatted with the scheduler's cluster name, the raw job id, and the runtime in
// seconds.
type query struct {
	metric   string
	template string
}

var cpuQueries = []query{
	{sample.TotalMemory, "max_over_time(cgroup_memory_total_bytes{cluster='%s',jobid='%s',step='',task=''}[%ds])"},
	{sample.UsedMemory, "max_over_time(cgroup_memory_rss_bytes{cluster='%s',jobid='%s',step='',task=''}[%ds])"},
	{sample.TotalTime, "max_over_time(cgroup_cpu_total_seconds{cluster='%s',jobid='%s',step='',task=''}[%ds])"},
	{sample.CPUs, "max_over_time(cgroup_cpus{cluster='%s',jobid='%s',step='',task=''}[%ds])"},
}

var gpuQueries = []query{
	{sample.GPUTotalMemory, "max_over_time((nvidia_gpu_memory_total_bytes{cluster='%s'} and nvidia_gpu_jobId == %s)[%ds:])"},
	{sample.GPUUsedMemory, "max_over_time((nvidia_gpu_memory_used_bytes{cluster='%s'} and nvidia_gpu_jobId == %s)[%ds:])"},
	{sample.GPUUtilization, "avg_over_time((nvidia_gpu_duty_cycle{cluster='%s'} and nvidia_gpu_jobId == %s)[%ds:])"},
}

// Querier is the part of the Prometheus HTTP API that we use.

type Querier interface {
	Query(ctx context.Context, query string, ts time.Time) (model.Value, v1.Warnings, error)
}

type Client struct {
	api Querier
}

const (
	retryMax     = 3
	retryWaitMin = 500 * time.Millisecond
	retryWaitMax = 5 * time.Second
)

// New connects to the metrics store at address ("http://host:port").  Transient failures are
// retried by the transport.

func New(address string, log status.Logger) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = status.RetryLogger{Log: log}
	c, err := api.NewClient(api.Config{
		Address:      address,
		RoundTripper: &retryablehttp.RoundTripper{Client: rc},
	})
	if err != nil {
		return nil, NewFailure(QueryFailure, fmt.Sprintf("Bad metrics store address %s", address), err)
	}
	return NewWithQuerier(v1.NewAPI(c)), nil
}

func NewWithQuerier(q Querier) *Client {
	return &Client{api: q}
}

// Request identifies the job whose statistics are wanted.

type Request struct {
	// The scheduler's name for the cluster.
	Cluster  string
	JobIDRaw string
	Runtime  int64
	End      time.Time
	GPUs     int
}

// Fetch runs the CPU queries and, for GPU jobs, the GPU queries, collecting the results into a
// Sample Store.  Any failure is a QueryFailure and no partial store is returned.

func (c *Client) Fetch(ctx context.Context, r Request) (sample.Store, error) {
	store := make(sample.Store)
	queries := cpuQueries
	if r.GPUs > 0 {
		queries = append(append([]query{}, cpuQueries...), gpuQueries...)
	}
	for _, q := range queries {
		expanded := fmt.Sprintf(q.template, r.Cluster, r.JobIDRaw, r.Runtime)
		Log.Debugf("query=%s, time=%d", expanded, r.End.Unix())
		value, warnings, err := c.api.Query(ctx, expanded, r.End)
		if err != nil {
			return nil, queryError(expanded, r.End, err)
		}
		for _, w := range warnings {
			Log.Warningf("Query %s: %s", expanded, w)
		}
		Log.Debugf("query result=%v", value)
		if err := collect(store, q.metric, value); err != nil {
			return nil, NewFailure(
				QueryFailure,
				fmt.Sprintf("ERROR: Unknown result when running query %s with time %d", expanded, r.End.Unix()),
				err,
			)
		}
	}
	return store, nil
}

func queryError(expanded string, end time.Time, err error) error {
	if apiErr, ok := err.(*v1.Error); ok && apiErr.Type != v1.ErrClient {
		return NewFailure(
			QueryFailure,
			fmt.Sprintf("ERROR: Failed to get run query %s with time %d, error: %s", expanded, end.Unix(), apiErr.Msg),
			nil,
		)
	}
	return NewFailure(
		QueryFailure,
		fmt.Sprintf("ERROR: Failed to query jobstats database, got error: %v", err),
		nil,
	)
}

// collect stores each series of the result under its node, and under its device if the series
// carries a minor_number label.

func collect(store sample.Store, metric string, value model.Value) error {
	switch v := value.(type) {
	case model.Vector:
		for _, s := range v {
			put(store, metric, s.Metric, float64(s.Value))
		}
	case model.Matrix:
		for _, s := range v {
			if len(s.Values) == 0 {
				continue
			}
			put(store, metric, s.Metric, float64(s.Values[0].Value))
		}
	case nil:
	default:
		return fmt.Errorf("Unexpected result type %s", value.Type())
	}
	return nil
}

func put(store sample.Store, metric string, labels model.Metric, v float64) {
	node, _, _ := strings.Cut(string(labels["instance"]), ":")
	v = trimPrecision(v)
	if minor, found := labels["minor_number"]; found {
		store.SetDevice(node, metric, string(minor), v)
	} else {
		store.Set(node, metric, v)
	}
}

// Integral values are kept, others are rounded to one decimal.

func trimPrecision(v float64) float64 {
	if v == math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*10) / 10
}
