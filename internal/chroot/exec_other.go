//go:build !linux

package chroot

func DropPrivileges(uid, gid int, groups []int) error { return errUnsupported }

func Exec(argv []string, env []string) error { return errUnsupported }
