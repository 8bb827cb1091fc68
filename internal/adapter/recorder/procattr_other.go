//go:build !linux

package recorder

import "syscall"

// sysProcAttr puts the recorder in its own process group.
// Pdeathsig is not available outside Linux.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
