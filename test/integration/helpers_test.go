//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// The integration suite provisions a real rootfs, so it needs a Linux host,
// root privileges, network access to a mirror, and the binaries built:
//
//	go build -o bin/ ./cmd/... && sudo env INPUT_ARCH_MIRROR=<mirror> \
//	    go test -tags integration ./test/integration
var binDir string

func TestMain(m *testing.M) {
	root := repoRoot()
	binDir = filepath.Join(root, "bin")

	for _, bin := range []string{"archroot", "archroot-enter", "archroot-destroy"} {
		if _, err := os.Stat(filepath.Join(binDir, bin)); err != nil {
			fmt.Fprintf(os.Stderr, "%s not found at %s — build the binaries first\n", bin, binDir)
			os.Exit(1)
		}
	}
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "integration tests mount and chroot, run them as root")
		os.Exit(1)
	}
	if os.Getenv("INPUT_ARCH_MIRROR") == "" {
		fmt.Fprintln(os.Stderr, "INPUT_ARCH_MIRROR not set")
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func repoRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// archroot runs the CLI with the given arguments and extra environment.
func archroot(env []string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, filepath.Join(binDir, "archroot"), args...)
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

func archrootRun(t *testing.T, env []string, args ...string) string {
	t.Helper()
	out, err := archroot(env, args...)
	if err != nil {
		t.Fatalf("archroot %v failed: %v\noutput: %s", args, err, out)
	}
	return out
}

// runEnter invokes the enter helper installed in the rootfs, the same way
// the provisioning pipeline does.
func runEnter(rootfs, command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, filepath.Join(rootfs, "archroot-enter"), "/bin/sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// parseOutputs reads a GITHUB_OUTPUT-style file into a map.
func parseOutputs(t *testing.T, path string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read outputs: %v", err)
	}
	outputs := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			outputs[k] = v
		}
	}
	return outputs
}
