// Package execx runs external command-line tools (ffprobe, ffmpeg, pdftoppm,
// soffice) behind a small interface so callers can be tested without them.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dmitrijs2005/groupfiles/internal/logging"
)

// maxStderr bounds how much of a failing tool's stderr ends up in errors.
const maxStderr = 512

// ErrToolNotConfigured is returned when a tool path is empty.
var ErrToolNotConfigured = errors.New("tool not configured")

// Runner executes name with args and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs tools as child processes. The process is killed when ctx
// is cancelled.
type ExecRunner struct {
	logger logging.Logger
}

func NewExecRunner(l logging.Logger) *ExecRunner {
	return &ExecRunner{logger: l.With("module", "execx")}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrToolNotConfigured
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err := cmd.Run()
	r.logger.Debug(ctx, "tool finished", "tool", name, "args", args, "elapsed", time.Since(started).String(), "ok", err == nil)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
