package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordicHPC/sonar/util/formats/newfmt"
	"github.com/twmb/franz-go/pkg/kgo"

	. "jobstats/common"
	"jobstats/jobreport"
	"jobstats/slurm"
)

const consumerGroup = "jobstats-ingest"

// This runs on a goroutine, one per cluster, until ctx is cancelled.

func runKafka(ctx context.Context, kafkaBroker, cluster string, handler *jobsHandler) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBroker),
		kgo.ConsumerGroup(consumerGroup),
		kgo.ConsumeTopics(jobsTopic(cluster)),
	)
	if err != nil {
		Log.Errorf("%s: Failed to create Kafka client: %v", cluster, err)
		return
	}
	defer cl.Close()
	Log.Infof("%s: Consuming %s", cluster, jobsTopic(cluster))

	for ctx.Err() == nil {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			// Fetch errors are retried internally, the ones returned here are for information.
			Log.Warningf("%s: SOFT ERROR: Failed to fetch data! %v", cluster, errs)
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			Log.Debugf("%s: %s", cluster, record.Topic)
			if err := handler.dispatch(ctx, record.Topic, record.Value); err != nil {
				Log.Warningf("%s: SOFT ERROR: Topic handler %s failed: %v", cluster, record.Topic, err)
			}
		}
		if err := cl.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			Log.Warningf("%s: SOFT ERROR: Commit records failed: %v", cluster, err)
		}
	}
}

func jobsTopic(cluster string) string {
	return cluster + "." + string(newfmt.DataTagJobs)
}

// jobsHandler archives the statistics of the finished jobs in sonar job envelopes.

type jobsHandler struct {
	cluster  string
	reporter *jobreport.Reporter
	metrics  *metrics
	now      func() time.Time
}

func newJobsHandler(cluster string, reporter *jobreport.Reporter, m *metrics) *jobsHandler {
	return &jobsHandler{
		cluster:  cluster,
		reporter: reporter,
		metrics:  m,
		now:      time.Now,
	}
}

func (h *jobsHandler) dispatch(ctx context.Context, topic string, data []byte) error {
	if topic != jobsTopic(h.cluster) {
		return fmt.Errorf("%s: No handler for topic: %s", h.cluster, topic)
	}
	info := new(newfmt.JobsEnvelope)
	if err := json.Unmarshal(data, info); err != nil {
		return err
	}
	if info.Data == nil {
		Log.Debugf("%s: Dropping a job error object on the floor", h.cluster)
		return nil
	}
	var firstErr error
	for _, job := range slurm.JobsFromEnvelope(info, h.now()) {
		if job.Cluster == "" {
			job.Cluster = h.cluster
		}
		if !job.Finished() {
			continue
		}
		stored, err := h.reporter.Ingest(ctx, job)
		switch {
		case err != nil:
			h.metrics.ingested.WithLabelValues(h.cluster, "error").Inc()
			Log.Warningf("%s: Could not archive job %s: %v", h.cluster, job.JobIDRaw, err)
			if firstErr == nil {
				firstErr = err
			}
		case stored:
			h.metrics.ingested.WithLabelValues(h.cluster, "archived").Inc()
			Log.Debugf("%s: Archived job %s", h.cluster, job.JobIDRaw)
		default:
			h.metrics.ingested.WithLabelValues(h.cluster, "skipped").Inc()
		}
	}
	return firstErr
}
