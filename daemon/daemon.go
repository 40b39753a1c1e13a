// The daemon serves job reports over HTTP and, optionally, archives the statistics of finished jobs
// as the scheduler reports them on Kafka.
//
// Routes:
//
//   GET /jobs/{jobid}?cluster=NAME&format=text|simple|json
//   GET /health
//   GET /metrics
//
// All but /health and /metrics require HTTP basic authentication when a password file is given.
// SIGHUP rereads the password file; SIGTERM and SIGINT stop the daemon.

package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	. "jobstats/common"
	"jobstats/auth"
	"jobstats/httpsrv"
	"jobstats/jobreport"
	"jobstats/process"
	"jobstats/report"
)

const authRealm = "jobstats"

type Options struct {
	Port         int
	PasswordFile string
	KafkaBroker  string
	Clusters     []string
	Version      string
	Verbose      bool
}

type Daemon struct {
	opts          Options
	reporter      *jobreport.Reporter
	authenticator *auth.Authenticator
	metrics       *metrics

	// For testing
	waitForSignal func(signals ...os.Signal) os.Signal
}

func New(opts Options, reporter *jobreport.Reporter) (*Daemon, error) {
	if opts.KafkaBroker != "" && len(opts.Clusters) == 0 {
		return nil, errors.New("Kafka ingest requires at least one cluster")
	}
	if opts.KafkaBroker != "" && reporter.Archive == nil {
		return nil, errors.New("Kafka ingest requires an archive")
	}
	d := &Daemon{
		opts:     opts,
		reporter: reporter,
		metrics:  newMetrics(),

		waitForSignal: process.WaitForSignal,
	}
	if opts.PasswordFile != "" {
		var err error
		d.authenticator, err = auth.ReadPasswords(opts.PasswordFile)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Handler is the complete HTTP surface of the daemon.

func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	config := huma.DefaultConfig("jobstats", d.opts.Version)
	hapi := humago.New(mux, config)
	registerRoutes(hapi, &api{
		reporter: d.reporter,
		renderer: report.NewRenderer(d.reporter.Config, report.NewStyle(false)),
		metrics:  d.metrics,
	})
	mux.Handle("/metrics", d.metrics.handler())
	return httpsrv.RequireAuth(mux, d.authenticator, authRealm, "/health", "/metrics")
}

// Run blocks until the daemon is stopped by a signal.

func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var programFailed atomic.Bool
	s := httpsrv.New(d.opts.Verbose, d.opts.Port, d.Handler(), func(err error) {
		programFailed.Store(true)
	})
	go s.Start()

	var wg sync.WaitGroup
	if d.opts.KafkaBroker != "" {
		for _, cluster := range d.opts.Clusters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				runKafka(ctx, d.opts.KafkaBroker, cluster, newJobsHandler(cluster, d.reporter, d.metrics))
			}()
		}
	}

	for {
		sig := d.waitForSignal(syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
		if sig != syscall.SIGHUP {
			break
		}
		if d.authenticator != nil {
			if err := d.authenticator.Reread(); err != nil {
				Log.Warningf("Could not reread password file: %v", err)
			} else {
				Log.Info("Password file reread")
			}
		}
	}

	cancel()
	s.Stop()
	wg.Wait()

	if programFailed.Load() {
		return errors.New("HTTP server failed to start, or errored out")
	}
	return nil
}
