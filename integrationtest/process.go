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
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps copying output after a child exits
// while a grandchild still holds its stdout or stderr.
const waitDelay = time.Second

// exitResult is published exactly once per process.
type exitResult struct {
	code int
	err  error
}

// process owns one child: start, liveness, wait and termination. A process
// is started once and never reused.
type process struct {
	name   string
	cmd    *exec.Cmd
	pid    int
	cancel context.CancelFunc
	logger *zap.Logger

	// done receives the exit result once; exited is closed right after.
	done   chan exitResult
	exited chan struct{}
	result exitResult
}

// startProcess starts argv with the given output streams. The child is
// detached from any caller context and dies only through terminate (or with
// the runner on Linux).
func startProcess(logger *zap.Logger, name string, argv []string, stdout, stderr io.Writer) (*process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	configureProcAttrs(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd.Process) }
	cmd.WaitDelay = waitDelay
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Info("starting subprocess",
		zap.String("role", name),
		zap.String("executable", cmd.Path),
		zap.Strings("args", cmd.Args))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s %s: %w", name, argv[0], err)
	}

	p := &process{
		name:   name,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		cancel: cancel,
		logger: logger,
		done:   make(chan exitResult, 1),
		exited: make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *process) wait() {
	err := p.cmd.Wait()
	res := exitResult{code: exitStatus(p.cmd.ProcessState), err: err}

	p.logger.Info("subprocess terminated",
		zap.String("role", p.name),
		zap.Int("pid", p.pid),
		zap.Int("status", res.code),
		zap.Error(err))

	p.result = res
	p.done <- res
	close(p.exited)
}

// alive reports whether the process has not been reaped yet.
func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// describeExit summarizes how an exited process ended.
func (p *process) describeExit() string {
	if p.result.err != nil {
		return p.result.err.Error()
	}
	return fmt.Sprintf("exit status %d", p.result.code)
}

// terminate kills the process group if the process is still running and
// waits until it has been reaped.
func (p *process) terminate() {
	if p.alive() {
		p.logger.Info("terminating subprocess", zap.String("role", p.name), zap.Int("pid", p.pid))
	}
	p.cancel()
	<-p.exited
}
