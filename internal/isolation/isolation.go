// Package isolation runs a unit of work under one wall-clock budget.
//
// The work runs in its own goroutine. When the budget ends the context
// handed to the work is cancelled, which makes the process harness kill
// every in-flight tool. Run then waits up to Options.ReapTimeout for the
// work to unwind so no tool outlives the call, and returns with whatever
// progress lines were collected. A late result is dropped.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

var (
	// ErrTimedOut indicates the work did not finish within Options.Timeout.
	ErrTimedOut = errors.New("overall timeout exceeded")

	// ErrPanicked indicates the work panicked.
	ErrPanicked = errors.New("work panicked")
)

// Logf records one progress line. It never blocks for long and is safe
// to call from any goroutine, including after the run has returned.
type Logf func(line string)

// Options configures Run.
type Options struct {
	// Timeout bounds the whole run. Zero or negative means no bound
	// beyond the parent context.
	Timeout time.Duration

	// CollectLogs returns the progress lines in Outcome.Logs.
	CollectLogs bool

	// LogBuffer sizes the log channel. Defaults to 256.
	LogBuffer int

	// ReapTimeout bounds how long Run waits, after cancelling the work,
	// for it to return. Defaults to DefaultReapTimeout.
	ReapTimeout time.Duration
}

// DefaultReapTimeout covers a harness kill plus its pipe wait delay.
const DefaultReapTimeout = 5 * time.Second

// Outcome is what Run hands back.
type Outcome[T any] struct {
	Value    T
	Err      error
	TimedOut bool
	Logs     []string
	Elapsed  time.Duration
}

type result[T any] struct {
	value T
	err   error
}

// Run executes fn and waits for it, the timeout, or the parent context,
// whichever comes first.
func Run[T any](ctx context.Context, opts Options, fn func(ctx context.Context, logf Logf) (T, error)) Outcome[T] {
	start := time.Now()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	collector := NewLogCollector(opts.LogBuffer)
	logf := collector.Logf
	if !opts.CollectLogs {
		logf = func(string) {}
	}

	// Capacity 1: the worker's single send never blocks, even when
	// nobody is left to receive it.
	done := make(chan result[T], 1)
	go func() {
		var r result[T]
		defer func() {
			if rec := recover(); rec != nil {
				r = result[T]{err: fmt.Errorf("%w: %v\n%s", ErrPanicked, rec, debug.Stack())}
			}
			done <- r
		}()
		r.value, r.err = fn(runCtx, logf)
	}()

	var out Outcome[T]
	select {
	case r := <-done:
		out.Value, out.Err = r.value, r.err
	case <-runCtx.Done():
		// A result that raced the deadline still wins.
		select {
		case r := <-done:
			out.Value, out.Err = r.value, r.err
		default:
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				out.TimedOut = true
				out.Err = fmt.Errorf("%w after %s", ErrTimedOut, opts.Timeout)
			} else {
				out.Err = fmt.Errorf("run cancelled: %w", ctx.Err())
			}
			cancel()
			reap(done, opts.ReapTimeout)
		}
	}

	out.Elapsed = time.Since(start)
	if opts.CollectLogs {
		out.Logs = collector.Close()
	} else {
		collector.Close()
	}
	return out
}

// reap waits for the cancelled work to return, dropping its result.
func reap[T any](done <-chan result[T], timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultReapTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
	}
}
