package pacman

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteMirrorlist replaces the rootfs mirrorlist with a single server line.
// $arch and $repo are pacman's own variables, expanded at sync time, so the
// line is written literally with no substitution here.
func WriteMirrorlist(root, mirror string) error {
	dir := filepath.Join(root, "etc", "pacman.d")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	line := fmt.Sprintf("Server = %s/$arch/$repo\n", mirror)
	path := filepath.Join(dir, "mirrorlist")
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		return fmt.Errorf("write mirrorlist: %w", err)
	}
	return nil
}
