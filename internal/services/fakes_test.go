package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/pandeptwidyaop/macrosync/internal/remote"
	"github.com/pandeptwidyaop/macrosync/internal/services"
)

type call struct {
	Command string
	Stdin   *string
	Timeout time.Duration
}

// fakeRunner answers each call from a handler and records what it was asked.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	handler func(i int, command string, stdin *string) remote.Result
}

func (f *fakeRunner) Run(ctx context.Context, command string, timeout time.Duration) remote.Result {
	return f.do(command, nil, timeout)
}

func (f *fakeRunner) RunWithInput(ctx context.Context, command, stdin string, timeout time.Duration) remote.Result {
	return f.do(command, &stdin, timeout)
}

func (f *fakeRunner) do(command string, stdin *string, timeout time.Duration) remote.Result {
	f.mu.Lock()
	i := len(f.calls)
	f.calls = append(f.calls, call{Command: command, Stdin: stdin, Timeout: timeout})
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return remote.Result{Success: true}
	}
	return h(i, command, stdin)
}

func (f *fakeRunner) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

func ok(stdout string) remote.Result {
	return remote.Result{Success: true, Stdout: stdout}
}

func fail(code int, stderr string) remote.Result {
	return remote.Result{ExitCode: code, Stderr: stderr}
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []services.AuditLog
}

func (r *auditRecorder) Log(entry services.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}
