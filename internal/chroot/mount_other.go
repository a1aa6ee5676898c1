//go:build !linux

package chroot

import "fmt"

var errUnsupported = fmt.Errorf("chroot provisioning requires linux")

func APIFSTable(root string) []MountSpec { return nil }

func BindSelf(dir string) error { return errUnsupported }

func Bind(source, target string) error { return errUnsupported }

func MountAPIFS(root string) error { return errUnsupported }

func Enter(root string) error { return errUnsupported }

func Unmount(target string) error { return errUnsupported }
