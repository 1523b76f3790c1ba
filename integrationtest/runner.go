/*
 * Copyright (c) 2017 Kurt Jung (Gmail: kurt.w.jung)
 * Copyright (c) 2020 Andreas Schneider
 *
 * Permission to use, copy, modify, and distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package integrationtest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/tarasglek/runfiles"
	"go.uber.org/zap"
)

// ExitOrchestrationFailure is the exit status used when the run itself
// failed, as opposed to the test binary reporting a failure.
const ExitOrchestrationFailure = 125

const (
	DefaultSUTPortFlag  = "--port"
	DefaultTestPortFlag = "--backend_port"

	// exitGracePeriod is how long a readiness line already sitting in the
	// pipe gets to be read after the system under test exits.
	exitGracePeriod = 250 * time.Millisecond
	// drainTimeout bounds the wait for the stdout drainer once the system
	// under test is gone; a surviving grandchild may hold the pipe open.
	drainTimeout = time.Second
)

var (
	// ErrPrematureExit means the system under test died (or closed stdout)
	// before printing its readiness line.
	ErrPrematureExit = errors.New("system under test exited before signalling readiness")
	// ErrReadinessTimeout means no readiness line arrived in time.
	ErrReadinessTimeout = errors.New("timed out waiting for system under test readiness")
	// ErrInterruptedWait means a wait was cut short by cancellation or a
	// deadline.
	ErrInterruptedWait = errors.New("wait interrupted")
)

// Runner runs one test binary against one system under test. A Runner is
// used for a single Run.
type Runner struct {
	// SUT and Test are the commands (binary plus leading arguments). The
	// port flag and value are appended.
	SUT  []string
	Test []string

	// Flags used to hand the port over. Default to --port and
	// --backend_port.
	SUTPortFlag  string
	TestPortFlag string

	// ReadinessTimeout bounds the wait for the readiness line; zero waits
	// forever. TestTimeout bounds the test binary; zero waits forever.
	ReadinessTimeout time.Duration
	TestTimeout      time.Duration

	// Stdout receives the test binary's stdout. Stderr receives stderr of
	// both children. They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	Logger *zap.Logger

	// Allocate replaces runfiles.EphemeralPort.
	Allocate func() (runfiles.Port, error)

	state atomic.Int32
}

// sut is the system under test plus the reading end of its stdout.
type sut struct {
	*process
	stdout  *os.File
	ready   chan readiness
	drained chan struct{}
}

type readiness struct {
	line string
	err  error
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) transition(to State) {
	from := State(r.state.Swap(int32(to)))
	r.Logger.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (r *Runner) setDefaults() error {
	if len(r.SUT) == 0 || r.SUT[0] == "" {
		return errors.New("system under test command is required")
	}
	if len(r.Test) == 0 || r.Test[0] == "" {
		return errors.New("test command is required")
	}
	if r.SUTPortFlag == "" {
		r.SUTPortFlag = DefaultSUTPortFlag
	}
	if r.TestPortFlag == "" {
		r.TestPortFlag = DefaultTestPortFlag
	}
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.Allocate == nil {
		r.Allocate = runfiles.EphemeralPort
	}
	return nil
}

// Run starts the system under test, waits for its readiness line, runs the
// test binary and returns the test binary's exit status. A non-nil error
// means the orchestration failed; the returned code is then
// ExitOrchestrationFailure. Cancelling ctx interrupts whichever wait is in
// progress. The system under test is terminated before Run returns.
func (r *Runner) Run(ctx context.Context) (code int, err error) {
	if err := r.setDefaults(); err != nil {
		return ExitOrchestrationFailure, err
	}
	defer func() {
		if err != nil {
			r.transition(StateFailed)
			code = ExitOrchestrationFailure
		}
	}()

	port, err := r.Allocate()
	if err != nil {
		return 0, err
	}
	portArg := port.String()

	r.transition(StateSUTStarting)
	s, err := r.startSUT(portArg)
	if err != nil {
		return 0, err
	}
	defer r.stopSUT(s)

	if !s.alive() {
		return 0, fmt.Errorf("%w: %s: %s", ErrPrematureExit, r.SUT[0], s.describeExit())
	}

	line, err := r.awaitReadiness(ctx, s)
	if err != nil {
		return 0, err
	}
	r.transition(StateSUTReady)
	r.Logger.Info("system under test ready",
		zap.Int("pid", s.pid),
		zap.Stringer("port", port),
		zap.String("line", line))

	test, err := startProcess(r.Logger, "test", r.command(r.Test, r.TestPortFlag, portArg), r.Stdout, r.Stderr)
	if err != nil {
		return 0, err
	}
	r.transition(StateTestRunning)

	code, err = r.awaitTest(ctx, test)
	if err != nil {
		return 0, err
	}
	r.transition(StateDone)
	r.Logger.Info("test binary exited", zap.String("test", r.Test[0]), zap.Int("status", code))
	return code, nil
}

func (r *Runner) command(base []string, portFlag, port string) []string {
	argv := append([]string(nil), base...)
	return append(argv, portFlag, port)
}

// startSUT starts the system under test with stdout on a pipe owned by the
// runner. The pipe is a plain *os.File so exec does not close it on Wait.
func (r *Runner) startSUT(port string) (*sut, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	p, err := startProcess(r.Logger, "sut", r.command(r.SUT, r.SUTPortFlag, port), pw, r.Stderr)
	pw.Close()
	if err != nil {
		pr.Close()
		return nil, err
	}

	s := &sut{
		process: p,
		stdout:  pr,
		ready:   make(chan readiness, 1),
		drained: make(chan struct{}),
	}
	go r.readSUTStdout(s)
	return s, nil
}

// readSUTStdout publishes the first line as the readiness signal, then logs
// everything else so the child never blocks on a full pipe.
func (r *Runner) readSUTStdout(s *sut) {
	defer close(s.drained)

	br := bufio.NewReader(s.stdout)
	line, err := br.ReadString('\n')
	if err != nil {
		if line != "" {
			err = fmt.Errorf("incomplete readiness line %q: %w", line, err)
		}
		s.ready <- readiness{err: err}
		return
	}
	s.ready <- readiness{line: trimNewline(line)}

	zw := &zapWriter{logger: r.Logger, name: "sut-stdout", pid: s.pid}
	_, _ = io.Copy(zw, br)
	zw.Flush()
}

func (r *Runner) awaitReadiness(ctx context.Context, s *sut) (string, error) {
	var timeout <-chan time.Time
	if r.ReadinessTimeout > 0 {
		t := time.NewTimer(r.ReadinessTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-s.ready:
		if res.err != nil {
			return "", fmt.Errorf("%w: reading stdout of %s: %v", ErrPrematureExit, r.SUT[0], res.err)
		}
		return res.line, nil
	case <-s.exited:
		// The line may already be in the pipe.
		select {
		case res := <-s.ready:
			if res.err == nil {
				return res.line, nil
			}
		case <-time.After(exitGracePeriod):
		}
		return "", fmt.Errorf("%w: %s: %s", ErrPrematureExit, r.SUT[0], s.describeExit())
	case <-timeout:
		return "", fmt.Errorf("%w after %s", ErrReadinessTimeout, r.ReadinessTimeout)
	case <-ctx.Done():
		return "", fmt.Errorf("%w: waiting for readiness: %v", ErrInterruptedWait, ctx.Err())
	}
}

// awaitTest blocks on the test binary's one-shot exit result.
func (r *Runner) awaitTest(ctx context.Context, test *process) (int, error) {
	var timeout <-chan time.Time
	if r.TestTimeout > 0 {
		t := time.NewTimer(r.TestTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-test.done:
		if res.code < 0 {
			return 0, fmt.Errorf("%w: waiting for %s: %v", ErrInterruptedWait, r.Test[0], res.err)
		}
		return res.code, nil
	case <-timeout:
		test.terminate()
		return 0, fmt.Errorf("%w: test deadline of %s exceeded", ErrInterruptedWait, r.TestTimeout)
	case <-ctx.Done():
		test.terminate()
		return 0, fmt.Errorf("%w: waiting for test: %v", ErrInterruptedWait, ctx.Err())
	}
}

// stopSUT terminates the system under test and waits for its stdout drainer.
func (r *Runner) stopSUT(s *sut) {
	s.terminate()
	select {
	case <-s.drained:
	case <-time.After(drainTimeout):
		r.Logger.Debug("stdout of system under test still open, closing", zap.Int("pid", s.pid))
	}
	s.stdout.Close()
	<-s.drained
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
