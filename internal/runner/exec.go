package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// ExecRunner is the production Runner, shelling out via os/exec. Grounded
// on the teacher's shell-hook runner shape: build *exec.Cmd, wire
// stdin/stdout/stderr, Start, then wait on a goroutine and report the
// result down a channel rather than blocking the caller.
type ExecRunner struct {
	mu      sync.Mutex
	cancels map[Token]context.CancelFunc
}

// NewExecRunner returns a ready-to-use ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{cancels: make(map[Token]context.CancelFunc)}
}

func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Token, <-chan struct{}, <-chan Result) {
	token := Token(uuid.NewString())
	started := make(chan struct{}, 1)
	exited := make(chan Result, 1)

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[token] = cancel
	r.mu.Unlock()

	go r.run(runCtx, token, spec, started, exited)
	return token, started, exited
}

func (r *ExecRunner) run(ctx context.Context, token Token, spec Spec, started chan<- struct{}, exited chan<- Result) {
	defer func() {
		r.mu.Lock()
		delete(r.cancels, token)
		r.mu.Unlock()
	}()

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = captureWriter(&stdoutBuf, spec.Stdout)
	cmd.Stderr = captureWriter(&stderrBuf, spec.Stderr)
	if spec.Stdin != nil {
		cmd.Stdin = spec.Stdin
	}

	if err := cmd.Start(); err != nil {
		started <- struct{}{}
		exited <- Result{ExitCode: -1, Err: fmt.Errorf("runner: spawn %s: %w", spec.Command, err)}
		return
	}
	started <- struct{}{}

	err := cmd.Wait()
	result := Result{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Err = fmt.Errorf("runner: wait %s: %w", spec.Command, err)
		}
	}
	exited <- result
}

func captureWriter(capture *bytes.Buffer, extra io.Writer) io.Writer {
	if extra == nil {
		return capture
	}
	return io.MultiWriter(capture, extra)
}

// Kill cancels the context backing token's process, which os/exec
// translates into a SIGKILL of the child.
func (r *ExecRunner) Kill(token Token) {
	r.mu.Lock()
	cancel, ok := r.cancels[token]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
