package runtime

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/justapithecus/planalign/errs"
)

// Engine abstracts the simulator subprocess for test injection.
type Engine interface {
	// Lines yields merged stdout/stderr lines in arrival order. The
	// channel closes when the stream ends.
	Lines() <-chan string
	// Wait blocks until the process exits and returns its exit code.
	// Idempotent.
	Wait(ctx context.Context) (int, error)
	// Terminate sends a graceful termination signal, then a hard kill
	// after the grace window if the process is still alive.
	Terminate(grace time.Duration)
}

// SpawnFunc creates an Engine. Injectable for tests.
type SpawnFunc func(ctx context.Context, spec LaunchSpec) (Engine, error)

// LaunchSpec describes one engine invocation.
type LaunchSpec struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        []string
}

// EngineProcess supervises a simulator subprocess. stdout and stderr are
// merged into one pipe; a dedicated reader goroutine performs blocking
// line reads and forwards them to a channel, so the caller sees a uniform
// async line stream on every platform.
type EngineProcess struct {
	cmd   *exec.Cmd
	lines chan string

	waitOnce sync.Once
	done     chan struct{}
	exitCode int
	waitErr  error
}

// Spawn starts the engine subprocess. Start failures surface as launch
// errors.
func Spawn(ctx context.Context, spec LaunchSpec) (Engine, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = spec.Env

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, errs.New(errs.ErrLaunch, "spawn", spec.Command, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, errs.New(errs.ErrLaunch, "spawn", spec.Command, err)
	}
	// The child holds its own copy of the write end; closing ours makes
	// the reader observe EOF when the child exits.
	_ = pw.Close()

	p := &EngineProcess{
		cmd:   cmd,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(p.lines)
		defer func() { _ = pr.Close() }()

		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			// Invalid UTF-8 bytes decode with replacement, never an error.
			p.lines <- strings.ToValidUTF8(scanner.Text(), "�")
		}
	}()

	// Reap the child once. An abrupt exit closes the line stream first,
	// then delivers the non-zero exit code here.
	go func() {
		defer close(p.done)
		err := cmd.Wait()
		if err == nil {
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
			return
		}
		p.exitCode = -1
		p.waitErr = err
	}()

	return p, nil
}

// Lines returns the merged output line stream.
func (p *EngineProcess) Lines() <-chan string { return p.lines }

// Wait blocks until the process has been reaped and returns the exit code.
// Safe to call multiple times.
func (p *EngineProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode, p.waitErr
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Terminate requests a graceful stop (SIGTERM); if the process is still
// alive after the grace window it is killed.
func (p *EngineProcess) Terminate(grace time.Duration) {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-p.done:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
	}
}

var _ Engine = (*EngineProcess)(nil)
