//go:build !unix

package process

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(*exec.Cmd) {}

// terminateGroup kills only the direct child on platforms without POSIX
// process groups.
func terminateGroup(p *os.Process, _ time.Duration) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
