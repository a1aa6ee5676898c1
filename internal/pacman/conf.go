package pacman

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DisableCheckSpace comments out the CheckSpace option in the rootfs
// pacman.conf. The space check inspects the mount table, and from inside a
// bind-mounted chroot it misreads the root filesystem and aborts the first
// sync. Already-commented configs are left untouched.
func DisableCheckSpace(root string) error {
	path := filepath.Join(root, "etc", "pacman.conf")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pacman.conf: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		if strings.TrimSpace(line) != "CheckSpace" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = indent + "#CheckSpace"
		changed = true
	}
	if !changed {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat pacman.conf: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write pacman.conf: %w", err)
	}
	return nil
}
