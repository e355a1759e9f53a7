//go:build linux

package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "stub.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func TestRun_Completes(t *testing.T) {
	p := writeScript(t, `echo "hello $1"; echo oops >&2; exit 3`)

	res, err := Run(context.Background(), Spec{Path: p, Args: []string{"world"}, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.False(t, res.Killed)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "hello world\n", string(res.Stdout))
	assert.Equal(t, "oops\n", string(res.Stderr))
	assert.Greater(t, res.PID, 0)
}

func TestRun_Env(t *testing.T) {
	p := writeScript(t, `echo "$ECO_TEST_VALUE"`)

	res, err := Run(context.Background(), Spec{Path: p, Env: []string{"ECO_TEST_VALUE=42"}, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(res.Stdout))
}

func TestRun_TimeoutTerminates(t *testing.T) {
	p := writeScript(t, `echo partial; exec sleep 30`)

	start := time.Now()
	res, err := Run(context.Background(), Spec{Path: p, Timeout: 300 * time.Millisecond, Grace: 500 * time.Millisecond})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Completed())
	assert.False(t, res.Killed, "sleep honours SIGTERM")
	assert.Equal(t, "partial\n", string(res.Stdout))
	assert.True(t, res.HasOutput())
}

func TestRun_TimeoutKillsStubbornChild(t *testing.T) {
	// Ignores SIGTERM; only SIGKILL ends it.
	p := writeScript(t, `trap '' TERM; echo stubborn; while :; do sleep 1; done`)

	start := time.Now()
	res, err := Run(context.Background(), Spec{Path: p, Timeout: 200 * time.Millisecond, Grace: 200 * time.Millisecond})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, res.TimedOut)
	assert.True(t, res.Killed)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "stubborn\n", string(res.Stdout))
}

func TestRun_ContextCancel(t *testing.T) {
	p := writeScript(t, `exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := Run(ctx, Spec{Path: p, Timeout: time.Minute, Grace: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, res.Canceled)
	assert.False(t, res.TimedOut)
}

func TestRun_LaunchFailure(t *testing.T) {
	_, err := Run(context.Background(), Spec{Path: filepath.Join(t.TempDir(), "missing"), Timeout: time.Second})
	require.Error(t, err)
}

func TestRun_InvalidSpec(t *testing.T) {
	_, err := Run(context.Background(), Spec{Timeout: time.Second})
	require.ErrorIs(t, err, ErrNoPath)

	_, err = Run(context.Background(), Spec{Path: "/bin/true"})
	require.ErrorIs(t, err, ErrNoTimeout)
}
