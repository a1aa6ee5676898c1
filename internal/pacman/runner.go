// Package pacman drives the package manager inside a provisioned rootfs:
// mirror configuration, the keyring bootstrap sequence and package installs.
//
// Commands go through a Runner so the provisioning pipeline can be tested
// without a real chroot or root privileges.
package pacman

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Runner executes a shell command inside the target rootfs.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// ChrootRunner runs commands through the enter helper installed in the
// rootfs. The helper mounts the API filesystems, chroots and hands the
// command line to /bin/sh.
type ChrootRunner struct {
	Helper string // path to the enter helper binary
}

func (r *ChrootRunner) Run(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, r.Helper, "/bin/sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return fmt.Errorf("command %q exited with code %d", command, status.ExitStatus())
		}
	}
	return fmt.Errorf("run %q: %w", command, err)
}
