package bootstrap

import (
	"archive/tar"
	"os"

	"golang.org/x/sys/unix"
)

// mknodDevice creates a character or block device node. Only root can do
// this, which is fine: extraction runs as root under sudo.
func mknodDevice(path string, mode os.FileMode, typeflag byte, major, minor int64) error {
	m := uint32(mode.Perm())
	switch typeflag {
	case tar.TypeChar:
		m |= unix.S_IFCHR
	case tar.TypeBlock:
		m |= unix.S_IFBLK
	}
	dev := unix.Mkdev(uint32(major), uint32(minor))
	return unix.Mknod(path, m, int(dev))
}

// makeFifo creates a named pipe.
func makeFifo(path string, mode os.FileMode) error {
	return unix.Mkfifo(path, uint32(mode.Perm()))
}
