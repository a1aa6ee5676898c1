package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tarball.tar.gz")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCachePutAndPath(t *testing.T) {
	cache := NewCache(t.TempDir())
	src := writeTestFile(t, "tarball content")

	digest, err := cache.Put(src)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	sum := sha256.Sum256([]byte("tarball content"))
	if want := hex.EncodeToString(sum[:]); digest != want {
		t.Errorf("digest = %q, want %q", digest, want)
	}

	path, ok := cache.Path(digest)
	if !ok {
		t.Fatal("Path should find the entry just put")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "tarball content" {
		t.Errorf("cached content = %q", data)
	}
}

func TestCachePut_Dedup(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)

	d1, err := cache.Put(writeTestFile(t, "same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := cache.Put(writeTestFile(t, "same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("digests differ: %q vs %q", d1, d2)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected 1 cache entry, got %d", len(entries))
	}
}

func TestCachePath_Missing(t *testing.T) {
	cache := NewCache(t.TempDir())

	if _, ok := cache.Path(strings.Repeat("a", 64)); ok {
		t.Error("Path should miss for unknown digest")
	}
	if _, ok := cache.Path("../../etc/passwd"); ok {
		t.Error("Path should reject malformed digests")
	}
}

func TestCacheCopyTo(t *testing.T) {
	cache := NewCache(t.TempDir())
	digest, err := cache.Put(writeTestFile(t, "round trip"))
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.tar.gz")
	if err := cache.CopyTo(digest, dest); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "round trip" {
		t.Errorf("copied content = %q", data)
	}
}

func TestCacheCopyTo_CorruptEntryRemoved(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	digest, err := cache.Put(writeTestFile(t, "pristine"))
	if err != nil {
		t.Fatal(err)
	}

	// Flip the entry's content behind the cache's back
	entry := filepath.Join(dir, digest+".tar.gz")
	if err := os.WriteFile(entry, []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.tar.gz")
	err = cache.CopyTo(digest, dest)
	if err == nil {
		t.Fatal("expected error for corrupt cache entry")
	}
	if _, statErr := os.Stat(entry); !os.IsNotExist(statErr) {
		t.Error("corrupt entry should have been removed")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no file should be written from a corrupt entry")
	}
}

func TestCacheCopyTo_InvalidDigest(t *testing.T) {
	cache := NewCache(t.TempDir())

	err := cache.CopyTo("nope", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error for invalid digest")
	}
}
