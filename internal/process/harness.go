// Package process runs external tools with a deadline, without pipe
// deadlocks, and with the whole process group terminated on timeout.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrEmptyCommand is returned when no argument vector was supplied.
	ErrEmptyCommand = errors.New("empty command")

	// ErrNotFound indicates the executable could not be located.
	ErrNotFound = errors.New("command not found")

	// ErrTimedOut indicates the command exceeded its own timeout and was killed.
	ErrTimedOut = errors.New("command timed out")

	// ErrCancelled indicates the caller's context ended before the command finished.
	ErrCancelled = errors.New("command cancelled")
)

const (
	// DefaultTimeout applies when neither the Command nor the Options set one.
	DefaultTimeout = 60 * time.Second

	// DefaultWaitDelay bounds how long Execute waits for output pipes held
	// open by processes that escaped the group after a kill.
	DefaultWaitDelay = 2 * time.Second
)

// Status is the distinguished outcome of one execution.
type Status int

const (
	StatusExited Status = iota
	StatusTimedOut
	StatusNotFound
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusExited:
		return "exited"
	case StatusTimedOut:
		return "timed_out"
	case StatusNotFound:
		return "not_found"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Sink receives human-readable progress lines.
type Sink func(line string)

// Command describes one external invocation.
type Command struct {
	// Args is the argument vector; Args[0] is the executable.
	Args []string

	// Dir is the working directory. Relative executables containing a path
	// separator (./gradlew) resolve against it.
	Dir string

	// Timeout bounds the process lifetime. Zero uses the harness default.
	Timeout time.Duration

	// Sink, if set, receives progress notifications.
	Sink Sink
}

// Result is what an execution produced. Stdout and Stderr hold everything
// captured up to exit or termination.
type Result struct {
	Args     []string
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Success reports whether the process ran and exited with code 0.
func (r *Result) Success() bool {
	return r.Status == StatusExited && r.ExitCode == 0
}

// Options configures a Harness.
type Options struct {
	// DefaultTimeout is used when a Command carries no timeout.
	DefaultTimeout time.Duration

	// Serialize restricts the harness to one external process at a time.
	Serialize bool

	// GracePeriod, when positive, sends SIGTERM to the process group first
	// and SIGKILL once it elapses. Zero kills immediately. Cancellation of
	// the caller's context always kills immediately.
	GracePeriod time.Duration

	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration

	Logger *zap.Logger
}

// Harness executes external commands. It is safe for concurrent use.
type Harness struct {
	opts   Options
	slot   *semaphore.Weighted
	logger *zap.Logger
}

// New creates a Harness.
func New(opts Options) *Harness {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Harness{opts: opts, logger: logger}
	if opts.Serialize {
		h.slot = semaphore.NewWeighted(1)
	}
	return h
}

// Execute runs c and waits for it to exit, time out, or be cancelled.
//
// A non-zero exit code is not an error. The returned error wraps
// ErrNotFound, ErrTimedOut or ErrCancelled for the distinguished outcomes,
// and the Result is always non-nil so partial output survives.
func (h *Harness) Execute(ctx context.Context, c Command) (*Result, error) {
	res := &Result{Args: c.Args, ExitCode: -1}
	if len(c.Args) == 0 || c.Args[0] == "" {
		return res, ErrEmptyCommand
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = h.opts.DefaultTimeout
	}
	cmdStr := strings.Join(c.Args, " ")

	if h.slot != nil {
		// Waiting for the slot honours ctx, so a cancelled run never blocks here.
		if err := h.slot.Acquire(ctx, 1); err != nil {
			res.Status = StatusCancelled
			return res, fmt.Errorf("%w: waiting for process slot: %v", ErrCancelled, err)
		}
		defer h.slot.Release(1)
	}

	notify(c.Sink, "Running command: "+cmdStr)

	path, err := resolveExecutable(c.Args[0], c.Dir)
	if err != nil {
		res.Status = StatusNotFound
		notify(c.Sink, "Command not found: "+c.Args[0])
		h.logger.Debug("executable not found", zap.String("command", c.Args[0]), zap.Error(err))
		return res, fmt.Errorf("%w: %s", ErrNotFound, c.Args[0])
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdin = nil // os/exec connects the null device
	var stdout, stderr lockedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		grace := h.opts.GracePeriod
		if ctx.Err() != nil {
			// The caller gave up on the whole run: no grace.
			grace = 0
		}
		return terminateGroup(cmd.Process, grace)
	}
	cmd.WaitDelay = h.opts.WaitDelay

	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		res.Status = StatusCancelled
		notify(c.Sink, "Command cancelled: "+cmdStr)
		return res, fmt.Errorf("%w: %s: %v", ErrCancelled, cmdStr, ctx.Err())

	case runCtx.Err() != nil:
		res.Status = StatusTimedOut
		notify(c.Sink, fmt.Sprintf("Command timed out after %s: %s", timeout, cmdStr))
		h.logger.Warn("command timed out",
			zap.String("command", cmdStr),
			zap.Duration("timeout", timeout))
		return res, fmt.Errorf("%w after %s: %s", ErrTimedOut, timeout, cmdStr)

	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) || errors.Is(runErr, exec.ErrWaitDelay) {
			break
		}
		if errors.Is(runErr, fs.ErrNotExist) || errors.Is(runErr, exec.ErrNotFound) {
			res.Status = StatusNotFound
			notify(c.Sink, "Command not found: "+c.Args[0])
			return res, fmt.Errorf("%w: %s", ErrNotFound, c.Args[0])
		}
		return res, fmt.Errorf("running %s: %w", cmdStr, runErr)
	}

	res.Status = StatusExited
	notify(c.Sink, fmt.Sprintf("Command finished with code %d: %s", res.ExitCode, cmdStr))
	h.logger.Debug("command finished",
		zap.String("command", cmdStr),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// Available reports whether name resolves to an executable from dir.
func Available(name, dir string) bool {
	_, err := resolveExecutable(name, dir)
	return err == nil
}

// resolveExecutable finds name on PATH, or relative to dir when name
// contains a path separator.
func resolveExecutable(name, dir string) (string, error) {
	if !strings.ContainsAny(name, `/\`) {
		return exec.LookPath(name)
	}
	path := name
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func notify(sink Sink, line string) {
	if sink != nil {
		sink(line)
	}
}

// lockedBuffer is written by the os/exec copy goroutine and read after Wait.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
