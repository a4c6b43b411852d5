//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

const canSuspend = true

// applyProcAttr puts the child in its own process group. The downloader
// forks helpers (ffmpeg, fragment workers) that inherit the stdio pipe
// write ends; signalling only the direct child would orphan them and
// leave the pipe readers blocked until the orphans exit on their own.
func applyProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup targets the whole process group, falling back to the
// direct child when the group is already gone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		return p.Signal(sig)
	}
	return nil
}

func suspendProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGCONT)
}

func terminateProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func killProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}
