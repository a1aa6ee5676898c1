package provision

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xfeldman/archroot/internal/chroot"
	"github.com/xfeldman/archroot/internal/state"
)

// Destroy tears down a provisioned rootfs: every mount below it is unmounted
// newest first, its provision records are dropped, and unless keepRoot is
// set the tree itself is deleted.
//
// The live mount table is the authority for what to unmount, not the state
// records: the enter helper mounts API filesystems that provisioning never
// sees, and a rootfs provisioned without a database must still unwind.
func Destroy(rootfs string, keepRoot bool, db *state.DB) error {
	rootfs = filepath.Clean(rootfs)

	targets, err := chroot.MountsUnder(rootfs)
	if err != nil {
		return err
	}
	for _, target := range targets {
		log.Printf("unmounting %s", target)
		if err := chroot.Unmount(target); err != nil {
			return err
		}
	}

	if db != nil {
		if err := db.DeleteProvision(rootfs); err != nil {
			return fmt.Errorf("drop provision records: %w", err)
		}
	}

	if keepRoot {
		return nil
	}
	if err := os.RemoveAll(rootfs); err != nil {
		return fmt.Errorf("remove rootfs: %w", err)
	}
	return nil
}
