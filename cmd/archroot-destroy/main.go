// archroot-destroy tears down the Arch Linux rootfs it is installed in:
// every mount below the rootfs is unmounted and the tree is deleted.
// archroot setup copies it to the rootfs root, so with the rootfs directory
// on PATH a cleanup step just runs archroot-destroy.
//
// Usage:
//
//	archroot-destroy [--keep-root]
//
// The binary lives inside the tree it removes: the final self bind-mount can
// only go away via lazy detach, and deleting the tree unlinks the running
// binary, both of which Linux permits.
//
// Build: GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o archroot-destroy ./cmd/archroot-destroy
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xfeldman/archroot/internal/config"
	"github.com/xfeldman/archroot/internal/provision"
	"github.com/xfeldman/archroot/internal/state"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	keepRoot := false
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--keep-root":
			keepRoot = true
		case "--help", "-h":
			fmt.Println("usage: archroot-destroy [--keep-root]")
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", arg)
			os.Exit(1)
		}
	}

	if os.Geteuid() != 0 {
		log.Fatal("archroot-destroy must run as root")
	}

	exe, err := os.Executable()
	if err != nil {
		log.Fatalf("locate running binary: %v", err)
	}
	rootfs := filepath.Dir(exe)

	var db *state.DB
	if d, err := state.Open(config.DefaultDBPath()); err == nil {
		defer d.Close()
		db = d
	} else {
		log.Printf("state database unavailable: %v", err)
	}

	if err := provision.Destroy(rootfs, keepRoot, db); err != nil {
		log.Fatal(err)
	}
	log.Printf("destroyed %s", rootfs)
}
