package cmd

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	. "jobstats/common"
	"jobstats/config"
	"jobstats/db"
	"jobstats/jobreport"
	"jobstats/prom"
	"jobstats/slurm"
	"jobstats/status"
)

const logTag = "jobstats"

type Command interface {
	// One line: the verb and its arguments
	Synopsis(verb string) string

	// Documentation, with formatting and line breaks
	Summary(out io.Writer)

	// Add all arguments including shared arguments
	Add(cli *CLI)

	// Parse the command line, including any rest arguments
	Parse(cli *CLI, args []string) error

	// Validate all arguments including shared arguments
	Validate() error

	// Run the command.  Output goes to stdout.
	Perform(ctx context.Context, stdout io.Writer) error
}

// ApplicationArgs are the logging options shared by all commands.

type ApplicationArgs struct {
	Debug  bool
	Syslog bool
}

func (aa *ApplicationArgs) Add(cli *CLI) {
	cli.Group("application-control")
	cli.BoolVar2(&aa.Debug, "d", "debug", "Output debugging information.")
	cli.BoolVar2(&aa.Syslog, "S", "syslog", "Output debugging information to syslog.")
}

// Setup configures the logger.  With -syslog the debug trace goes to syslog, and it goes to the
// terminal only with -debug.

func (aa *ApplicationArgs) Setup() error {
	if aa.Syslog {
		if err := status.StartSyslog(logTag); err != nil {
			return err
		}
	}
	aa.setLevels(Log)
	return nil
}

func (aa *ApplicationArgs) setLevels(l status.Logger) {
	if aa.Debug || aa.Syslog {
		l.LowerLevelTo(status.LogLevelDebug)
	}
	if !aa.Debug {
		l.SetStderrLevel(status.LogLevelWarning)
	}
}

// warnUnknownClusters logs the names that have no cluster entry, jobs on those clusters get no
// cluster-specific advice.  It returns the unknown names.

func warnUnknownClusters(cfg *config.Config, names ...string) []string {
	unknown := make([]string, 0)
	for _, n := range names {
		if n != "" && !cfg.KnownCluster(n) {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		Log.Warningf(
			"Unknown cluster %s, known clusters are %s",
			strings.Join(unknown, ", "),
			strings.Join(cfg.ClusterNames(), ", "),
		)
	}
	return unknown
}

// DataSourceArgs select the configuration, the job metadata provider, the metrics store and the
// archive.

type DataSourceArgs struct {
	ConfigFile string
	PromServer string
	Archive    string
	JobsFile   string
	Force      bool
}

func (ds *DataSourceArgs) Add(cli *CLI) {
	cli.Group("data-source")
	cli.StringVar(&ds.ConfigFile, "config-file", "",
		"Read site configuration from `filename` (default $HOME/.jobstats if it exists)")
	cli.StringVar2(&ds.PromServer, "p", "prom-server", "",
		"The Prometheus server and port `url` (default from the configuration, else "+
			config.DefaultPromServer+")")
	cli.StringVar(&ds.Archive, "archive", "",
		"PostgreSQL `uri` of the job statistics archive (default from the configuration)")
	cli.StringVar(&ds.JobsFile, "jobs-file", "",
		"Read job records from a sonar jobs `filename` instead of running sacct")
	cli.BoolVar2(&ds.Force, "f", "force", "Force recalculation without using cached data from the database.")
}

func (ds *DataSourceArgs) Validate() error {
	if ds.PromServer != "" && !strings.HasPrefix(ds.PromServer, "http://") &&
		!strings.HasPrefix(ds.PromServer, "https://") {
		return errors.New("-prom-server requires an http:// or https:// url")
	}
	return nil
}

// LoadConfig reads the configuration and applies the command line overrides.

func (ds *DataSourceArgs) LoadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if ds.ConfigFile != "" {
		cfg, err = config.LoadFile(ds.ConfigFile, true)
	} else if fn := config.DefaultFile(); fn != "" {
		cfg, err = config.LoadFile(fn, false)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if ds.PromServer != "" {
		cfg.PromServer = ds.PromServer
	}
	if ds.Archive != "" {
		cfg.ArchiveURI = ds.Archive
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewReporter wires up the pipeline.  The returned function closes the archive connection.

func (ds *DataSourceArgs) NewReporter(ctx context.Context, cfg *config.Config) (*jobreport.Reporter, func(), error) {
	var jobs slurm.Provider
	if ds.JobsFile != "" {
		jobs = &slurm.SonarJobs{Path: ds.JobsFile, Now: time.Now}
	} else {
		sacct := slurm.NewSacct()
		sacct.IgnorePayload = ds.Force
		sacct.SchedulerName = cfg.SchedulerName
		sacct.UserName = cfg.UserName
		jobs = sacct
	}
	client, err := prom.New(cfg.PromServer, Log)
	if err != nil {
		return nil, nil, err
	}
	r := jobreport.New(cfg, jobs, client, slurm.NewSeff())
	r.Force = ds.Force
	closer := func() {}
	if cfg.ArchiveURI != "" {
		archive, err := db.Open(ctx, cfg.ArchiveURI)
		if err != nil {
			return nil, nil, err
		}
		r.Archive = archive
		closer = func() {
			if err := archive.Close(context.Background()); err != nil {
				Log.Warning(err)
			}
		}
	}
	return r, closer, nil
}
