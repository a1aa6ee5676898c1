//go:build !linux

package bootstrap

import (
	"fmt"
	"os"
)

// mknodDevice is unsupported off Linux; rootfs tarballs carrying device nodes
// can only be restored on the Linux host the provisioner targets.
func mknodDevice(path string, mode os.FileMode, typeflag byte, major, minor int64) error {
	return fmt.Errorf("device node %s: extraction requires linux", path)
}

func makeFifo(path string, mode os.FileMode) error {
	return fmt.Errorf("fifo %s: extraction requires linux", path)
}
