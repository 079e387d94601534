// Package plugintest provides a scripted process executor for plugin tests.
package plugintest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/fyrsmithlabs/enforcer/internal/process"
)

// Executor is a testify mock of plugin.Executor.
type Executor struct {
	mock.Mock
}

// Execute implements plugin.Executor.
func (e *Executor) Execute(ctx context.Context, c process.Command) (*process.Result, error) {
	args := e.Called(ctx, c)
	var res *process.Result
	if r := args.Get(0); r != nil {
		res = r.(*process.Result)
	} else {
		res = &process.Result{Args: c.Args, ExitCode: -1}
	}
	return res, args.Error(1)
}

// OnCommand expects a command whose argument vector starts with prefix.
// The executable is compared by base name so "./gradlew" matches the
// root-resolved wrapper path.
func (e *Executor) OnCommand(prefix ...string) *mock.Call {
	return e.On("Execute", mock.Anything, mock.MatchedBy(func(c process.Command) bool {
		return HasPrefix(c.Args, prefix...)
	}))
}

// HasPrefix reports whether args starts with prefix.
func HasPrefix(args []string, prefix ...string) bool {
	if len(args) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		a := args[i]
		if i == 0 {
			a = filepath.Base(a)
			p = filepath.Base(strings.TrimPrefix(p, "./"))
		}
		if a != p {
			return false
		}
	}
	return true
}

// Exited is a finished process result.
func Exited(code int, stdout, stderr string) *process.Result {
	return &process.Result{Status: process.StatusExited, ExitCode: code, Stdout: stdout, Stderr: stderr}
}
