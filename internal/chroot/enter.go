package chroot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyResolvConf copies the host's DNS configuration into the rootfs so name
// resolution works inside the chroot. Bootstrap images ship resolv.conf as a
// systemd-resolved symlink pointing at a runtime path that does not exist in
// a chroot, so any existing file is replaced rather than written through.
func CopyResolvConf(root string) error {
	src, err := os.Open("/etc/resolv.conf")
	if err != nil {
		return fmt.Errorf("open resolv.conf: %w", err)
	}
	defer src.Close()

	destDir := filepath.Join(root, "etc")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, "resolv.conf")
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace resolv.conf: %w", err)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("write resolv.conf: %w", err)
	}
	defer dest.Close()
	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("copy resolv.conf: %w", err)
	}
	return nil
}
