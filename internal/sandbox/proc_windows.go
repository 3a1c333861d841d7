//go:build windows

package sandbox

import "os/exec"

func shellArgv(command string) []string {
	return []string{"cmd", "/C", command}
}

// Windows has no process groups in the POSIX sense; exec's default Cancel
// kills the direct child.
func configureProcess(cmd *exec.Cmd) {}

func reapGroup(cmd *exec.Cmd) {}
