// archroot provisions a minimal Arch Linux ARM rootfs inside a chroot, for
// use as a CI action step: later job steps get the rootfs path as a step
// output and the helper binaries on PATH.
//
// Commands:
//
//	archroot setup     Provision the rootfs and publish the action outputs
//	archroot destroy   Unmount and delete a provisioned rootfs
//	archroot doctor    Print platform info and recorded provisions
//	archroot version   Print version
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/xfeldman/archroot/internal/action"
	"github.com/xfeldman/archroot/internal/chroot"
	"github.com/xfeldman/archroot/internal/config"
	"github.com/xfeldman/archroot/internal/provision"
	"github.com/xfeldman/archroot/internal/state"
	"github.com/xfeldman/archroot/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		cmdSetup()
	case "destroy":
		cmdDestroy()
	case "doctor":
		cmdDoctor()
	case "version":
		fmt.Println(version.Version())
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Usage: archroot <command> [options]

Commands:
  setup      Provision an Arch Linux ARM rootfs and publish the action outputs
  destroy    Unmount and delete a provisioned rootfs
  doctor     Print platform info and recorded provisions
  version    Print version

Examples:
  sudo archroot setup
  sudo archroot destroy /home/runner/rootfs
  sudo archroot destroy --keep-root /home/runner/rootfs
  archroot doctor`)
}

// fatal prints a workflow error annotation and exits non-zero. Outputs are
// written only at the very end of a successful setup, so a run that dies
// here has emitted nothing.
func fatal(err error) {
	action.Errorf("%v", err)
	os.Exit(1)
}

func cmdSetup() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		fatal(err)
	}

	p := provision.New(cfg, action.OutputsFromEnv())

	// State records are bookkeeping: a broken database should not block the
	// provision itself.
	db, err := state.Open(cfg.DBPath())
	if err != nil {
		log.Printf("state database unavailable, continuing without records: %v", err)
	} else {
		defer db.Close()
		p.DB = db
	}

	if err := p.Run(ctx); err != nil {
		fatal(err)
	}
}

func cmdDestroy() {
	keepRoot := false
	var rootfs string
	for _, arg := range os.Args[2:] {
		switch {
		case arg == "--keep-root":
			keepRoot = true
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", arg)
			os.Exit(1)
		default:
			rootfs = arg
		}
	}
	if rootfs == "" {
		// Same default the setup path resolves to
		if u := os.Getenv("SUDO_USER"); u != "" {
			rootfs = filepath.Join("/home", u, "rootfs")
		}
	}
	if rootfs == "" {
		fmt.Fprintln(os.Stderr, "usage: archroot destroy [--keep-root] <rootfs-dir>")
		os.Exit(1)
	}

	var db *state.DB
	if d, err := state.Open(config.DefaultDBPath()); err == nil {
		defer d.Close()
		db = d
	} else {
		log.Printf("state database unavailable: %v", err)
	}

	if err := provision.Destroy(rootfs, keepRoot, db); err != nil {
		fatal(err)
	}
	fmt.Printf("destroyed %s\n", rootfs)
}

func cmdDoctor() {
	fmt.Println("Archroot Doctor")
	fmt.Println("===============")
	fmt.Println()

	plat, err := config.DetectPlatform()
	if err != nil {
		fmt.Printf("platform:   %v\n", err)
		return
	}
	fmt.Printf("platform:   %s/%s\n", plat.OS, plat.Arch)
	for _, arch := range []string{"aarch64", "armv7"} {
		if plat.Native(arch) {
			fmt.Printf("%-11s native\n", arch+":")
		} else {
			fmt.Printf("%-11s needs binfmt emulation\n", arch+":")
		}
	}

	if u := os.Getenv("SUDO_USER"); u != "" {
		fmt.Printf("sudo user:  %s\n", u)
	} else {
		fmt.Printf("sudo user:  not set (setup must run under sudo)\n")
	}
	if euid := os.Geteuid(); euid == 0 {
		fmt.Printf("privilege:  root\n")
	} else {
		fmt.Printf("privilege:  uid %d (setup and destroy need root)\n", euid)
	}

	fmt.Println()
	db, err := state.Open(config.DefaultDBPath())
	if err != nil {
		fmt.Printf("state db:   unavailable (%v)\n", err)
		return
	}
	defer db.Close()

	provisions, err := db.ListProvisions()
	if err != nil {
		fmt.Printf("state db:   %v\n", err)
		return
	}
	if len(provisions) == 0 {
		fmt.Println("provisions: none recorded")
		return
	}
	fmt.Println("provisions:")
	for _, p := range provisions {
		pkgs := "none"
		if len(p.Packages) > 0 {
			pkgs = strings.Join(p.Packages, " ")
		}
		liveMounts := "?"
		if targets, err := chroot.MountsUnder(p.Rootfs); err == nil {
			liveMounts = strconv.Itoa(len(targets))
		}
		tree := "present"
		if _, err := os.Stat(p.Rootfs); err != nil {
			tree = "missing"
		}
		fmt.Printf("  %s  state=%s  tree=%s  mounts=%s  packages=%s\n", p.Rootfs, p.State, tree, liveMounts, pkgs)
	}
}
