package recorder

import "syscall"

// sysProcAttr puts the recorder in its own process group so a stop reaches
// ffmpeg and anything it forked. If camkeep dies without stopping it, the
// kernel delivers SIGINT so ffmpeg still gets to finalize the output file.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGINT,
	}
}

func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
