package pulse

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes one pactl invocation and returns its standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the pactl binary found at Path.
type ExecRunner struct {
	Path string
}

// NewExecRunner returns a runner for "pactl" resolved through PATH.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Path: "pactl"}
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	// Property labels are localized; the parser expects the C locale.
	cmd.Env = append(os.Environ(), "LC_ALL=C")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("pactl %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
