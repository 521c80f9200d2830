package ci

// Publishes the batch report: the plain text goes to stdout (or stderr when
// the batch failed) and, inside GitHub Actions, to the step outputs.

import (
	"fmt"
	"io"
	"strconv"

	"github.com/sethvargo/go-githubactions"
)

const (
	OutputResult = "result"
	OutputFailed = "failed"
)

type Output struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	action *githubactions.Action
}

// New writes workflow commands to stdout; getenv decides whether we are
// running inside Actions (GITHUB_OUTPUT / GITHUB_ACTIONS).
func New(stdout, stderr io.Writer, getenv func(string) string) *Output {
	return &Output{
		stdout: stdout,
		stderr: stderr,
		getenv: getenv,
		action: githubactions.New(
			githubactions.WithWriter(stdout),
			githubactions.WithGetenv(getenv),
		),
	}
}

func (o *Output) InActions() bool {
	return o.getenv("GITHUB_ACTIONS") == "true" || o.getenv("GITHUB_OUTPUT") != ""
}

func (o *Output) WriteReport(title, body string, failed bool) error {
	w := o.stdout
	if failed {
		w = o.stderr
	}
	if _, err := fmt.Fprintf(w, "%s\n%s\n", title, body); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if !o.InActions() {
		return nil
	}
	o.action.SetOutput(OutputResult, body)
	o.action.SetOutput(OutputFailed, strconv.FormatBool(failed))
	if failed {
		o.action.Errorf("%s", title)
	}
	return nil
}
