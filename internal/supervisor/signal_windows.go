//go:build windows

package supervisor

import (
	"os"
	"os/exec"

	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
)

// Windows has no cooperative suspend, pause and resume are rejected
// upstream before these are reached.
const canSuspend = false

func applyProcAttr(cmd *exec.Cmd) {}

func suspendProcess(p *os.Process) error {
	return errpkg.ErrUnsupportedOperation
}

func resumeProcess(p *os.Process) error {
	return errpkg.ErrUnsupportedOperation
}

// terminateProcess falls back to a hard kill, there is no polite
// termination signal to deliver.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func killProcess(p *os.Process) error {
	return p.Kill()
}
