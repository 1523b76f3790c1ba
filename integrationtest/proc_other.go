//go:build !unix

package integrationtest

import (
	"errors"
	"os"
	"os/exec"
)

func configureProcAttrs(cmd *exec.Cmd) {}

func killProcessGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func exitStatus(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
