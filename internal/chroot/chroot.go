// Package chroot is the mount and chroot layer: bind mounts, kernel API
// filesystem mounts, entering the new root, and the teardown path.
//
// Mounts are direct unix.Mount calls rather than shell-outs, so failures
// carry errno context instead of parsed tool output. Nothing here unmounts
// automatically; provisioning hands its mounts to later job steps and
// teardown is always explicit.
package chroot

// MountSpec describes one mount to establish under a rootfs.
type MountSpec struct {
	Source string
	Target string
	FSType string // empty for bind mounts
	Flags  uintptr
	Data   string
	Kind   string // short name recorded in provisioning state, e.g. "proc"
}
