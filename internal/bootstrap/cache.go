package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// validDigest matches keys produced by Put: 64 hex chars.
var validDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Cache is a content-addressed store for downloaded bootstrap tarballs.
// Layout: {dir}/{sha256}.tar.gz. The URL-to-digest index lives in the state
// database, so the same tarball fetched under two URLs is stored once.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Put copies the file at src into the cache, hashing as it goes, and returns
// the hex sha256 digest. An entry that already exists is reused.
func (c *Cache) Put(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", err
	}

	// Atomic write: temp file then rename (prevents partial files on crash)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy into cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	digest := hex.EncodeToString(h.Sum(nil))
	final := filepath.Join(c.dir, digest+".tar.gz")

	// Content-addressed dedup: keep the existing entry
	if _, err := os.Stat(final); err == nil {
		os.Remove(tmp.Name())
		return digest, nil
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return digest, nil
}

// Path returns the cache file for a digest and whether it exists.
func (c *Cache) Path(digest string) (string, bool) {
	if !validDigest.MatchString(digest) {
		return "", false
	}
	p := filepath.Join(c.dir, digest+".tar.gz")
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// CopyTo copies the cached tarball for digest to dest, rehashing on the way
// out. A corrupt entry is removed from the cache and reported, so the caller
// falls back to a fresh download next run.
func (c *Cache) CopyTo(digest, dest string) error {
	if !validDigest.MatchString(digest) {
		return fmt.Errorf("invalid cache digest: %q", digest)
	}
	src := filepath.Join(c.dir, digest+".tar.gz")

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open cache entry: %w", err)
	}
	defer in.Close()

	partial := dest + ".partial"
	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("copy from cache: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return err
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != digest {
		os.Remove(partial)
		os.Remove(src)
		return fmt.Errorf("cache entry %s corrupt (hashed %s), removed", digest, got)
	}

	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return err
	}
	return nil
}
