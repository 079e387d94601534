//go:build unix

package process

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestExecute_CapturesOutputAndExitCode(t *testing.T) {
	h := New(Options{})

	res, err := h.Execute(context.Background(), Command{
		Args: []string{"sh", "-c", "echo out; echo err 1>&2; exit 3"},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusExited, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.Success())
}

func TestExecute_EmptyCommand(t *testing.T) {
	h := New(Options{})
	_, err := h.Execute(context.Background(), Command{})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestExecute_NotFound(t *testing.T) {
	h := New(Options{})
	var lines []string

	res, err := h.Execute(context.Background(), Command{
		Args: []string{"definitely-not-a-real-tool-xyz", "--version"},
		Sink: func(l string) { lines = append(lines, l) },
	})

	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "definitely-not-a-real-tool-xyz")
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Contains(t, lines, "Command not found: definitely-not-a-real-tool-xyz")
}

func TestExecute_RelativeWrapperResolvesAgainstDir(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "gradlew")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho wrapper \"$@\"\n"), 0o755))

	h := New(Options{})
	res, err := h.Execute(context.Background(), Command{Args: []string{"./gradlew", "test"}, Dir: dir})

	require.NoError(t, err)
	assert.Equal(t, "wrapper test\n", res.Stdout)
	assert.True(t, Available("./gradlew", dir))
	assert.False(t, Available("./gradlew", t.TempDir()))
}

func TestExecute_StdinIsEmpty(t *testing.T) {
	h := New(Options{})

	res, err := h.Execute(context.Background(), Command{
		Args:    []string{"sh", "-c", "cat; echo done"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "done\n", res.Stdout)
}

func TestExecute_LargeOutputDoesNotDeadlock(t *testing.T) {
	h := New(Options{})

	// Both streams well beyond a pipe buffer.
	res, err := h.Execute(context.Background(), Command{
		Args:    []string{"sh", "-c", "i=0; while [ $i -lt 20000 ]; do echo line-$i; echo err-$i 1>&2; i=$((i+1)); done"},
		Timeout: 30 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, 20000, strings.Count(res.Stdout, "\n"))
	assert.Equal(t, 20000, strings.Count(res.Stderr, "\n"))
}

func TestExecute_TimeoutKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	h := New(Options{})
	var lines []string

	start := time.Now()
	res, err := h.Execute(context.Background(), Command{
		Args:    []string{"sh", "-c", "echo partial; sleep 60 & echo $! > " + pidFile + "; wait"},
		Timeout: 500 * time.Millisecond,
		Sink:    func(l string) { lines = append(lines, l) },
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, StatusTimedOut, res.Status)
	assert.Equal(t, "partial\n", res.Stdout)
	assert.Less(t, elapsed, 500*time.Millisecond+DefaultWaitDelay+time.Second)

	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, "Command timed out after 500ms") {
			found = true
		}
	}
	assert.True(t, found, "progress lines: %v", lines)

	pid := readPID(t, pidFile)
	assert.Eventually(t, func() bool { return !processAlive(pid) }, 5*time.Second, 50*time.Millisecond)
}

func TestExecute_GracePeriodSendsTermFirst(t *testing.T) {
	h := New(Options{GracePeriod: 2 * time.Second})

	res, err := h.Execute(context.Background(), Command{
		Args:    []string{"sh", "-c", "trap 'echo terminated; exit 0' TERM; while true; do sleep 0.05; done"},
		Timeout: 300 * time.Millisecond,
	})

	require.ErrorIs(t, err, ErrTimedOut)
	assert.Contains(t, res.Stdout, "terminated")
}

func TestExecute_ParentCancellation(t *testing.T) {
	h := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := h.Execute(ctx, Command{Args: []string{"sleep", "30"}, Timeout: time.Minute})

	require.ErrorIs(t, err, ErrCancelled)
	assert.NotErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, StatusCancelled, res.Status)
}

func TestExecute_ParentCancellationSkipsGracePeriod(t *testing.T) {
	h := New(Options{GracePeriod: 10 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := h.Execute(ctx, Command{
		Args:    []string{"sh", "-c", "trap '' TERM; sleep 30"},
		Timeout: time.Minute,
	})

	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecute_SerializedRunsOneAtATime(t *testing.T) {
	h := New(Options{Serialize: true})
	dir := t.TempDir()
	marker := filepath.Join(dir, "busy")

	// Each command fails if another one holds the marker.
	script := "if [ -e " + marker + " ]; then echo overlap; exit 1; fi; touch " + marker + "; sleep 0.2; rm " + marker

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.Execute(context.Background(), Command{Args: []string{"sh", "-c", script}})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 0, res.ExitCode, res.Stdout)
	}
}

func TestExecute_SerializedSlotHonoursCancellation(t *testing.T) {
	h := New(Options{Serialize: true})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.Execute(context.Background(), Command{Args: []string{"sleep", "1"}})
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := h.Execute(ctx, Command{Args: []string{"true"}})

	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, res.Status)
	<-done
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "timed_out", StatusTimedOut.String())
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "status(42)", Status(42).String())
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}

// processAlive treats zombies as dead: a killed grandchild may linger
// unreaped under a minimal init.
func processAlive(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err == nil {
		fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
		return len(fields) > 0 && fields[0] != "Z"
	}
	if _, statErr := os.Stat("/proc"); statErr == nil {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
