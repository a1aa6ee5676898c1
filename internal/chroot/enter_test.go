package chroot

import (
	"os"
	"path/filepath"
	"testing"
)

func requireResolvConf(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("/etc/resolv.conf")
	if err != nil {
		t.Skipf("no host resolv.conf: %v", err)
	}
	return data
}

func TestCopyResolvConf(t *testing.T) {
	want := requireResolvConf(t)
	root := t.TempDir()
	if err := CopyResolvConf(root); err != nil {
		t.Fatalf("CopyResolvConf: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "etc", "resolv.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Error("copied resolv.conf differs from the host's")
	}
}

func TestCopyResolvConf_ReplacesDanglingSymlink(t *testing.T) {
	requireResolvConf(t)
	root := t.TempDir()
	etc := filepath.Join(root, "etc")
	if err := os.MkdirAll(etc, 0755); err != nil {
		t.Fatal(err)
	}
	// what a stock image ships: a link into systemd-resolved's runtime dir
	link := filepath.Join(etc, "resolv.conf")
	if err := os.Symlink("/run/systemd/resolve/resolv.conf", link); err != nil {
		t.Fatal(err)
	}
	if err := CopyResolvConf(root); err != nil {
		t.Fatalf("CopyResolvConf over symlink: %v", err)
	}
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("resolv.conf is still a symlink")
	}
}

func TestCopyResolvConf_CreatesEtc(t *testing.T) {
	requireResolvConf(t)
	root := t.TempDir()
	if err := CopyResolvConf(root); err != nil {
		t.Fatalf("CopyResolvConf: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "etc"))
	if err != nil || !info.IsDir() {
		t.Errorf("etc directory not created: %v", err)
	}
}
