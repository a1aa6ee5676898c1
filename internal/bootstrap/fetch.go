// Package bootstrap acquires the Arch Linux ARM root filesystem: downloading
// and verifying the upstream tarball, extracting it with numeric owners
// preserved, caching downloads, and pulling OCI images as an alternative
// source.
package bootstrap

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// ErrNoChecksum reports that the upstream publishes no checksum sidecar for a
// tarball. Callers skip verification in that case.
var ErrNoChecksum = errors.New("no checksum published")

// Fetch downloads url to dest. Any non-2xx response is an error. The body is
// written to dest.partial and renamed into place, so a crash never leaves a
// truncated tarball at dest. An existing file at dest is overwritten.
func Fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	partial := dest + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(partial)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("close %s: %w", partial, err)
	}

	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return fmt.Errorf("rename tarball: %w", err)
	}
	return nil
}

// FetchChecksum retrieves the md5 sidecar for a tarball URL (Arch Linux ARM
// publishes <tarball>.md5 next to each image). A 404 means the upstream has
// no sidecar and is reported as ErrNoChecksum. The first whitespace-separated
// field of the body is the hex digest.
func FetchChecksum(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+".md5", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch checksum: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoChecksum
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s.md5: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read checksum: %w", err)
	}

	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file for %s", url)
	}
	sum := strings.ToLower(fields[0])
	if len(sum) != 32 {
		return "", fmt.Errorf("malformed md5 checksum %q", fields[0])
	}
	return sum, nil
}

// VerifyMD5 streams the file at path through md5 and compares against the
// expected hex digest.
func VerifyMD5(path, hexsum string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, hexsum) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", path, got, hexsum)
	}
	return nil
}
