package chroot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// APIFSTable lists the kernel API filesystems a working chroot needs, in
// mount order. devpts nests under dev, so dev has to come first.
func APIFSTable(root string) []MountSpec {
	return []MountSpec{
		{Source: "proc", Target: filepath.Join(root, "proc"), FSType: "proc", Flags: unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV, Kind: "proc"},
		{Source: "sys", Target: filepath.Join(root, "sys"), FSType: "sysfs", Flags: unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV, Kind: "sysfs"},
		{Source: "udev", Target: filepath.Join(root, "dev"), FSType: "devtmpfs", Flags: unix.MS_NOSUID, Data: "mode=0755", Kind: "devtmpfs"},
		{Source: "devpts", Target: filepath.Join(root, "dev", "pts"), FSType: "devpts", Flags: unix.MS_NOSUID | unix.MS_NOEXEC, Data: "mode=0620,gid=5", Kind: "devpts"},
	}
}

// BindSelf bind-mounts dir onto itself, recursively. pacman's chroot helpers
// expect the rootfs to be a real mount point, and the recursive flag carries
// along anything already mounted below it.
func BindSelf(dir string) error {
	if err := unix.Mount(dir, dir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s onto itself: %w", dir, err)
	}
	return nil
}

// Bind recursively bind-mounts source at target, creating target if needed.
func Bind(source, target string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("create mount point %s: %w", target, err)
	}
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s at %s: %w", source, target, err)
	}
	return nil
}

// MountAPIFS mounts the API filesystems under root. Targets that are already
// mount points are skipped, so entering the same root twice does not stack
// a second layer of proc over the first.
func MountAPIFS(root string) error {
	existing, err := MountsUnder(root)
	if err != nil {
		return err
	}
	mounted := make(map[string]bool, len(existing))
	for _, p := range existing {
		mounted[p] = true
	}
	for _, m := range APIFSTable(root) {
		if mounted[m.Target] {
			continue
		}
		if err := os.MkdirAll(m.Target, 0755); err != nil {
			return fmt.Errorf("create %s: %w", m.Target, err)
		}
		if err := unix.Mount(m.Source, m.Target, m.FSType, m.Flags, m.Data); err != nil && err != unix.EBUSY {
			return fmt.Errorf("mount %s on %s: %w", m.FSType, m.Target, err)
		}
	}
	return nil
}

// Enter chroots into root and moves the working directory inside it. The
// caller must be running as root with the API filesystems already mounted.
func Enter(root string) error {
	if err := unix.Chroot(root); err != nil {
		return fmt.Errorf("chroot %s: %w", root, err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}
	return nil
}

// Unmount detaches target. Busy mounts are retried briefly and then lazily
// detached: the destroy helper itself lives inside the self bind-mount it
// tears down, so its final unmount can never succeed the normal way.
func Unmount(target string) error {
	var err error
	for i := 0; i < 5; i++ {
		err = unix.Unmount(target, 0)
		if err == nil {
			return nil
		}
		if err != unix.EBUSY {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err == unix.EINVAL {
		// not a mount point, nothing to do
		return nil
	}
	if lazyErr := unix.Unmount(target, unix.MNT_DETACH); lazyErr == nil {
		return nil
	}
	return fmt.Errorf("unmount %s: %w", target, err)
}
