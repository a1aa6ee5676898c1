package chroot

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// DropPrivileges switches the process to uid with the given primary and
// supplementary groups. Order matters: groups first, uid last, or the
// process loses the right to switch at all.
func DropPrivileges(uid, gid int, groups []int) error {
	if err := unix.Setgroups(groups); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("setgid %d: %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("setuid %d: %w", uid, err)
	}
	return nil
}

// Exec replaces the current process with command, resolving argv[0] against
// the process PATH. It only returns on failure.
func Exec(argv []string, env []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", argv[0], err)
	}
	return unix.Exec(path, argv, env)
}
