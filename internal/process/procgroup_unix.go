//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the command as the leader of a new process group
// so a timeout can reach every child it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(p *os.Process, grace time.Duration) error {
	if p == nil {
		return nil
	}
	pgid := p.Pid

	if grace > 0 {
		if err := unix.Kill(-pgid, unix.SIGTERM); err == nil {
			time.AfterFunc(grace, func() {
				_ = unix.Kill(-pgid, unix.SIGKILL)
			})
			return nil
		}
	}

	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return p.Kill()
	}
	return nil
}
