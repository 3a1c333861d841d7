//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"
)

func shellArgv(command string) []string {
	return []string{"sh", "-c", command}
}

// configureProcess puts the child in its own process group so that killing it
// also takes down anything the shell spawned.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// reapGroup kills whatever the child left running in its group, such as
// background jobs. ESRCH means the group is already empty.
func reapGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
