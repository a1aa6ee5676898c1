// Package user creates the unprivileged account inside the rootfs and
// grants it passwordless sudo through the wheel group.
package user

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Runner executes a shell command inside the target rootfs.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// Create adds name to the rootfs with the given uid, a home directory and
// wheel membership. The uid mirrors the invoking user on the host so the
// bind-mounted home has consistent ownership on both sides.
func Create(ctx context.Context, r Runner, name string, uid int) error {
	return r.Run(ctx, fmt.Sprintf("useradd -m -u %d -G wheel %s", uid, name))
}

// AppendWheelNopasswd appends the passwordless wheel rule to the rootfs
// sudoers file. Appending keeps whatever rules the image shipped with, and
// the file is created if the image did not ship sudo yet.
func AppendWheelNopasswd(root string) error {
	path := filepath.Join(root, "etc", "sudoers")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0440)
	if err != nil {
		return fmt.Errorf("open sudoers: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, "%wheel ALL=(ALL) NOPASSWD: ALL"); err != nil {
		return fmt.Errorf("append sudoers rule: %w", err)
	}
	return nil
}
