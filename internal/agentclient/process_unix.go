//go:build unix

package agentclient

import "syscall"

// setpgidAttr puts the subprocess in its own process group so Interrupt
// can signal the whole group (the agent CLI and anything it shells
// out to) rather than just the immediate child.
func setpgidAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalProcessGroup signals the process group led by pid.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
