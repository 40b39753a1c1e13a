// `jobstats` -- Print the efficiency of Slurm jobs from their Prometheus statistics
//
// Run `jobstats help` for brief help.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"jobstats/cmd"
	. "jobstats/common"
)

// v1.0.0 - reports, json and base64 forms, archive
// v1.1.0 - added 'daemon' verb

const JobstatsVersion = "1.1.0"

func main() {
	err := jobstats()
	if err != nil {
		// Goes to stderr, and to syslog with -syslog
		Log.Error(err)
		os.Exit(1)
	}
}

func jobstats() error {
	command, cli, args := commandLine()
	if err := command.Parse(cli, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := command.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Bad arguments\n%v\n\nTry `%s help`\n", err, os.Args[0])
		os.Exit(2)
	}
	return command.Perform(context.Background(), os.Stdout)
}

func commandLine() (cmd.Command, *cmd.CLI, []string) {
	out := os.Stderr
	name := "jobstats"

	verb := "report"
	args := os.Args[1:]
	var command cmd.Command
	if len(args) > 0 {
		switch args[0] {
		case "help":
			fmt.Fprintf(out, "Usage: %s [options] jobid ...\n", name)
			fmt.Fprintf(out, "       %s command [options]\n", name)
			fmt.Fprintf(out, "Commands:\n")
			fmt.Fprintf(out, "  daemon   - serve job reports over HTTP and archive finished jobs\n")
			fmt.Fprintf(out, "  version  - print information about the program\n")
			fmt.Fprintf(out, "  help     - print this message\n")
			fmt.Fprintf(out, "Run `%s -h` or `%s daemon -h` to further explain options.\n", name, name)
			os.Exit(0)
		case "version":
			fmt.Printf("jobstats version(%s)\n", JobstatsVersion)
			os.Exit(0)
		case "daemon":
			verb = "daemon"
			args = args[1:]
			command = &cmd.DaemonCommand{Version: JobstatsVersion}
		}
	}
	if command == nil {
		command = new(cmd.ReportCommand)
	}

	cli := cmd.NewCLI(verb, command, name, out)
	command.Add(cli)
	return command, cli, args
}
