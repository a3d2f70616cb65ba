package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Config describes how to reach the device.
type Config struct {
	Binary         string
	Host           string
	User           string
	Port           int
	IdentityFile   string
	ConnectTimeout time.Duration
	ExtraOptions   []string
	DefaultTimeout time.Duration
}

// Executor spawns one ssh process per call.
type Executor struct {
	cfg       Config
	logger    *zap.Logger
	killGrace time.Duration
}

// New creates an Executor. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.Binary == "" {
		cfg.Binary = "ssh"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:       cfg,
		logger:    logger.Named("remote"),
		killGrace: 500 * time.Millisecond,
	}
}

// Target returns the user@host destination.
func (e *Executor) Target() string {
	if e.cfg.User == "" {
		return e.cfg.Host
	}
	return e.cfg.User + "@" + e.cfg.Host
}

// Args builds the argument list for a remote command. The command is passed
// as a single argument and interpreted by the remote login shell.
func (e *Executor) Args(command string) []string {
	secs := int(math.Ceil(e.cfg.ConnectTimeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=" + strconv.Itoa(secs),
		"-o", "StrictHostKeyChecking=accept-new",
	}
	if e.cfg.Port > 0 && e.cfg.Port != 22 {
		args = append(args, "-p", strconv.Itoa(e.cfg.Port))
	}
	if e.cfg.IdentityFile != "" {
		args = append(args, "-i", e.cfg.IdentityFile)
	}
	for _, opt := range e.cfg.ExtraOptions {
		args = append(args, "-o", opt)
	}
	return append(args, e.Target(), command)
}

// InteractiveArgs builds the argument list for an interactive login shell.
func (e *Executor) InteractiveArgs() []string {
	args := e.Args("")
	args = args[:len(args)-1]
	return append([]string{"-tt"}, args...)
}

// Binary returns the ssh executable in use.
func (e *Executor) Binary() string { return e.cfg.Binary }

// Run executes command remotely with no standard input.
func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) Result {
	return e.run(ctx, command, nil, timeout)
}

// RunWithInput executes command remotely and feeds stdin to it.
func (e *Executor) RunWithInput(ctx context.Context, command, stdin string, timeout time.Duration) Result {
	return e.run(ctx, command, &stdin, timeout)
}

func (e *Executor) run(ctx context.Context, command string, stdin *string, timeout time.Duration) Result {
	start := time.Now()
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if err := ctx.Err(); err != nil {
		return failure(ExitCanceled, "canceled before start")
	}

	log := e.logger.With(zap.String("command", command))
	log.Debug("running remote command", zap.Duration("timeout", timeout))

	cmd := exec.Command(e.cfg.Binary, e.Args(command)...)
	setupProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return failure(ExitStartFailed, err.Error())
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return failure(ExitStartFailed, err.Error())
	}
	var stdinPipe io.WriteCloser
	if stdin != nil {
		if stdinPipe, err = cmd.StdinPipe(); err != nil {
			return failure(ExitStartFailed, err.Error())
		}
	}

	if err := cmd.Start(); err != nil {
		log.Warn("failed to start ssh", zap.Error(err))
		return failure(ExitStartFailed, err.Error())
	}

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&outBuf, stdout)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&errBuf, stderr)
	}()

	waitCh := make(chan error, 1)
	go func() {
		wg.Wait()
		waitCh <- cmd.Wait()
	}()

	reaped := false
	defer func() {
		if !reaped {
			e.abort(cmd, waitCh, stdout, stderr)
		}
	}()

	inCh := make(chan error, 1)
	if stdinPipe != nil {
		go func() {
			_, werr := io.WriteString(stdinPipe, *stdin)
			if cerr := stdinPipe.Close(); werr == nil {
				werr = cerr
			}
			inCh <- werr
		}()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case werr := <-inCh:
			inCh = nil
			// EPIPE or a pipe closed by Wait means the process stopped reading;
			// its exit status tells the rest.
			if werr != nil && !errors.Is(werr, syscall.EPIPE) && !errors.Is(werr, os.ErrClosed) {
				log.Warn("failed to write stdin", zap.Error(werr))
				e.abort(cmd, waitCh, stdout, stderr)
				reaped = true
				return failure(ExitUnexpected, "write stdin: "+werr.Error())
			}

		case werr := <-waitCh:
			reaped = true
			res := Result{
				Stdout:   outBuf.String(),
				Stderr:   errBuf.String(),
				Duration: time.Since(start),
			}
			var exitErr *exec.ExitError
			switch {
			case werr == nil:
				res.Success = true
			case errors.As(werr, &exitErr):
				res.ExitCode = exitErr.ExitCode()
				if res.ExitCode < 0 {
					res.ExitCode = ExitUnexpected
				}
			default:
				res.ExitCode = ExitUnexpected
				res.Stderr += werr.Error()
			}
			log.Debug("remote command finished",
				zap.Int("exit_code", res.ExitCode),
				zap.Duration("duration", res.Duration))
			return res

		case <-timer.C:
			log.Warn("remote command timed out", zap.Duration("timeout", timeout))
			e.abort(cmd, waitCh, stdout, stderr)
			reaped = true
			return Result{
				ExitCode: ExitTimeout,
				Stderr:   fmt.Sprintf("timeout after %s", timeout),
				Duration: time.Since(start),
			}

		case <-ctx.Done():
			log.Debug("remote command canceled")
			e.abort(cmd, waitCh, stdout, stderr)
			reaped = true
			return Result{
				ExitCode: ExitCanceled,
				Stderr:   "canceled",
				Duration: time.Since(start),
			}
		}
	}
}

// abort kills the process tree and reaps it. If a stray descendant keeps the
// output pipes open past the grace period, the pipes are closed to unblock the drains.
func (e *Executor) abort(cmd *exec.Cmd, waitCh <-chan error, pipes ...io.Closer) {
	if err := killTree(cmd); err != nil {
		e.logger.Warn("failed to kill process tree", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}
	select {
	case <-waitCh:
		return
	case <-time.After(e.killGrace):
	}
	for _, p := range pipes {
		_ = p.Close()
	}
	<-waitCh
}
