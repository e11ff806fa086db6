package execx

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_CapturesStdout(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(logging.NewNop())

	out, err := r.Run(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestExecRunner_ReportsStderrOnFailure(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(logging.NewNop())

	_, err := r.Run(context.Background(), "sh", "-c", "echo broken container >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken container")
}

func TestExecRunner_HonoursCancellation(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecRunner_EmptyToolName(t *testing.T) {
	r := NewExecRunner(logging.NewNop())
	_, err := r.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrToolNotConfigured)
}

func TestTail_TruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("x", maxStderr*2) + "END"
	got := tail(long)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "END"))
	assert.Len(t, got, maxStderr+3)
}

func TestRunnerFunc(t *testing.T) {
	var gotName string
	var gotArgs []string
	f := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("ok"), nil
	})
	out, err := f.Run(context.Background(), "ffprobe", "-v", "error")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
	assert.Equal(t, "ffprobe", gotName)
	assert.Equal(t, []string{"-v", "error"}, gotArgs)
}
