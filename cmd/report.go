package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"jobstats/jobreport"
	"jobstats/report"
)

// ReportCommand prints the efficiency report for one or more jobs.  Job ids and options may be
// interleaved, `jobstats 123 -c della 456` reports both jobs on della.

type ReportCommand struct {
	ApplicationArgs
	DataSourceArgs
	Cluster string
	JSON    bool
	Base64  bool
	Simple  bool
	NoColor bool
	JobIDs  []string
}

func (rc *ReportCommand) Synopsis(verb string) string {
	return "[options] jobid ..."
}

func (rc *ReportCommand) Summary(out io.Writer) {
	fmt.Fprint(out, `Print the CPU, memory and GPU efficiency of Slurm jobs, with advice on how to
improve future jobs.  Statistics come from the job's cached summary in the scheduler,
the archive, or the Prometheus server, in that order.
`)
}

func (rc *ReportCommand) Add(cli *CLI) {
	rc.ApplicationArgs.Add(cli)
	rc.DataSourceArgs.Add(cli)
	cli.StringVar2(&rc.Cluster, "c", "cluster", "",
		"Specify `cluster` instead of relying on default on the current machine.")
	cli.Group("printing")
	cli.BoolVar2(&rc.JSON, "j", "json", "Produce row data in json format, with no summary.")
	cli.BoolVar2(&rc.Base64, "b", "base64",
		"Produce row data in json format, with no summary and also gzip and encode it in base64 "+
			"output for db storage.")
	cli.BoolVar2(&rc.Simple, "s", "simple", "Output information using a simple format.")
	cli.BoolVar2(&rc.NoColor, "n", "no-color", "Output information without colorization.")
}

// Parse collects job ids from between the options.

func (rc *ReportCommand) Parse(cli *CLI, args []string) error {
	for {
		if err := cli.Parse(args); err != nil {
			return err
		}
		rest := cli.Args()
		if len(rest) == 0 {
			return nil
		}
		rc.JobIDs = append(rc.JobIDs, rest[0])
		args = rest[1:]
	}
}

func (rc *ReportCommand) Validate() error {
	var errs []error
	if len(rc.JobIDs) == 0 {
		errs = append(errs, errors.New("At least one jobid is required"))
	}
	for _, id := range rc.JobIDs {
		if id == "" || strings.ContainsAny(id, " \t|") {
			errs = append(errs, fmt.Errorf("Bad jobid %q", id))
		}
	}
	errs = append(errs, rc.DataSourceArgs.Validate())
	return errors.Join(errs...)
}

// The base64 form wins over json, and both win over simple.

func (rc *ReportCommand) Format() jobreport.Format {
	switch {
	case rc.Base64:
		return jobreport.FormatBase64
	case rc.JSON:
		return jobreport.FormatJSON
	case rc.Simple:
		return jobreport.FormatSimple
	default:
		return jobreport.FormatEnhanced
	}
}

// Style colours the output only if it goes to a terminal.

func (rc *ReportCommand) Style(stdout io.Writer) report.Style {
	if f, ok := stdout.(*os.File); ok {
		return report.AutoStyle(f, rc.NoColor)
	}
	return report.NewStyle(false)
}

// Perform reports the jobs in order and stops at the first job that fails.

func (rc *ReportCommand) Perform(ctx context.Context, stdout io.Writer) error {
	if err := rc.ApplicationArgs.Setup(); err != nil {
		return err
	}
	cfg, err := rc.LoadConfig()
	if err != nil {
		return err
	}
	warnUnknownClusters(cfg, rc.Cluster)
	r, closer, err := rc.NewReporter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()
	renderer := report.NewRenderer(cfg, rc.Style(stdout))
	for _, jobid := range rc.JobIDs {
		if err := r.Run(ctx, stdout, jobid, rc.Cluster, rc.Format(), renderer); err != nil {
			return err
		}
	}
	return nil
}
