// Abstractions for running subprocesses and capturing their output.

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Run the program with the arguments, collecting its output and returning it.  `env` is a list of
// NAME=VALUE settings added to the current environment.  If there is an error in running the
// program or the program exits with a nonzero code then an error is returned along with stderr and
// stdout is empty, otherwise stdout and stderr are returned but the assumption is that the command
// exited with code zero.

func RunSubprocess(
	ctx context.Context,
	programPath string,
	arguments []string,
	env []string,
) (string, string, error) {
	cmd := exec.CommandContext(ctx, programPath, arguments...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stdout strings.Builder
	var stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	errs := stderr.String()
	if err != nil {
		return "", errs, errors.Join(fmt.Errorf("While running %s", programPath), err)
	}
	return stdout.String(), errs, nil
}
