package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"jobstats/daemon"
)

const defaultPort = 8087

type DaemonCommand struct {
	ApplicationArgs
	DataSourceArgs
	Port         int
	PasswordFile string
	KafkaBroker  string
	Clusters     string
	Version      string
}

func (dc *DaemonCommand) Synopsis(verb string) string {
	return verb + " [options]"
}

func (dc *DaemonCommand) Summary(out io.Writer) {
	fmt.Fprint(out, `Serve job reports over HTTP and, with -kafka, archive the statistics of jobs as
they finish.  SIGHUP rereads the password file, SIGTERM stops the daemon.
`)
}

func (dc *DaemonCommand) Add(cli *CLI) {
	dc.ApplicationArgs.Add(cli)
	dc.DataSourceArgs.Add(cli)
	cli.Group("daemon-configuration")
	cli.IntVar(&dc.Port, "port", defaultPort, "Listen on `port`")
	cli.StringVar(&dc.PasswordFile, "password-file", "",
		"Require HTTP basic authentication with the user:password lines of `filename`")
	cli.StringVar(&dc.KafkaBroker, "kafka", "",
		"Consume finished jobs from the Kafka `broker` (default from the configuration)")
	cli.StringVar(&dc.Clusters, "cluster", "",
		"Comma-separated `clusters` whose job topics to consume")
}

func (dc *DaemonCommand) Parse(cli *CLI, args []string) error {
	if err := cli.Parse(args); err != nil {
		return err
	}
	if cli.NArg() > 0 {
		return fmt.Errorf("Unexpected arguments: %s", strings.Join(cli.Args(), " "))
	}
	return nil
}

func (dc *DaemonCommand) Validate() error {
	var errs []error
	if dc.Port <= 0 || dc.Port > 65535 {
		errs = append(errs, fmt.Errorf("Bad -port %d", dc.Port))
	}
	errs = append(errs, dc.DataSourceArgs.Validate())
	return errors.Join(errs...)
}

func (dc *DaemonCommand) ClusterList() []string {
	clusters := make([]string, 0)
	for _, c := range strings.Split(dc.Clusters, ",") {
		if c = strings.TrimSpace(c); c != "" {
			clusters = append(clusters, c)
		}
	}
	return clusters
}

func (dc *DaemonCommand) Perform(ctx context.Context, stdout io.Writer) error {
	if err := dc.ApplicationArgs.Setup(); err != nil {
		return err
	}
	cfg, err := dc.LoadConfig()
	if err != nil {
		return err
	}
	if dc.KafkaBroker != "" {
		cfg.KafkaBroker = dc.KafkaBroker
	}
	warnUnknownClusters(cfg, dc.ClusterList()...)
	r, closer, err := dc.NewReporter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()
	d, err := daemon.New(daemon.Options{
		Port:         dc.Port,
		PasswordFile: dc.PasswordFile,
		KafkaBroker:  cfg.KafkaBroker,
		Clusters:     dc.ClusterList(),
		Version:      dc.Version,
		Verbose:      dc.Debug,
	}, r)
	if err != nil {
		return err
	}
	return d.Run()
}
