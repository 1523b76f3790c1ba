//go:build linux

package integrationtest

import (
	"os/exec"
	"syscall"
)

// Children get their own process group so the whole tree can be killed, and
// die with the runner even if it is killed without a chance to clean up.
func configureProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
