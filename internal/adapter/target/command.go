package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the agent's own environment.
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
}

type Runner interface {
	Run(ctx context.Context, c Command) error
}

// ExecRunner runs commands as child processes. The process is killed when
// Timeout elapses or ctx is cancelled.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Command) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin

	var output bytes.Buffer
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = &output
	}
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s killed after %s: %w", c.Name, r.Timeout, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w, output: %s", c.Name, err, strings.TrimSpace(output.String()))
	}
	return nil
}
