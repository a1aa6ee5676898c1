// archroot-enter runs a command inside the Arch Linux rootfs it is installed
// in. archroot setup copies it to the rootfs root, so the target root is
// simply the directory of the running binary, and with the rootfs directory
// on PATH later job steps can call it by name.
//
// Usage:
//
//	archroot-enter [--user NAME] [command ...]
//
// Without a command it starts a login shell. The helper must run as root: it
// copies DNS config, mounts the API filesystems and chroots, then drops to
// --user if one was requested before exec'ing the command.
//
// Build: GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o archroot-enter ./cmd/archroot-enter
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xfeldman/archroot/internal/chroot"
)

const chrootPath = "/usr/local/sbin:/usr/local/bin:/usr/bin"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	userName := ""
	args := os.Args[1:]
	for len(args) > 0 {
		if args[0] == "--user" {
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "--user requires a name")
				os.Exit(1)
			}
			userName = args[1]
			args = args[2:]
			continue
		}
		if args[0] == "--" {
			args = args[1:]
			break
		}
		if args[0] == "--help" || args[0] == "-h" {
			fmt.Println("usage: archroot-enter [--user NAME] [command ...]")
			return
		}
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[0])
			os.Exit(1)
		}
		break
	}

	if os.Geteuid() != 0 {
		log.Fatal("archroot-enter must run as root")
	}

	exe, err := os.Executable()
	if err != nil {
		log.Fatalf("locate running binary: %v", err)
	}
	rootfs := filepath.Dir(exe)

	if err := enter(rootfs, userName, args); err != nil {
		log.Fatal(err)
	}
}

func enter(rootfs, userName string, argv []string) error {
	if err := chroot.CopyResolvConf(rootfs); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Printf("host has no resolv.conf, chroot DNS left unconfigured")
	}
	if err := chroot.MountAPIFS(rootfs); err != nil {
		return err
	}
	if err := chroot.Enter(rootfs); err != nil {
		return err
	}

	// From here every path resolves inside the new root.
	os.Setenv("PATH", chrootPath)
	home, name := "/root", "root"

	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return fmt.Errorf("look up %s in chroot: %w", userName, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("parse uid %q: %w", u.Uid, err)
		}
		gid, err := strconv.Atoi(u.Gid)
		if err != nil {
			return fmt.Errorf("parse gid %q: %w", u.Gid, err)
		}
		groupIDs, err := u.GroupIds()
		if err != nil {
			return fmt.Errorf("read groups for %s: %w", userName, err)
		}
		groups := make([]int, 0, len(groupIDs))
		for _, g := range groupIDs {
			if n, err := strconv.Atoi(g); err == nil {
				groups = append(groups, n)
			}
		}
		if err := chroot.DropPrivileges(uid, gid, groups); err != nil {
			return err
		}
		home, name = u.HomeDir, userName
	}

	env := []string{
		"PATH=" + chrootPath,
		"HOME=" + home,
		"USER=" + name,
		"LOGNAME=" + name,
		"TERM=" + os.Getenv("TERM"),
	}
	if len(argv) == 0 {
		argv = []string{"/bin/sh", "-l"}
	}
	return chroot.Exec(argv, env)
}
