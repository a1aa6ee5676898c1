package bootstrap

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gzip "github.com/klauspost/compress/gzip"
)

// Restoring a rootfs needs privileges tests don't have: chown to arbitrary
// IDs and mknod. Swappable so the tar walk itself is testable unprivileged.
var (
	lchown   = os.Lchown
	mkDevice = mknodDevice
	mkFifo   = makeFifo
)

// Untar extracts a gzip-compressed tarball into destDir, creating it if
// absent. Owner and group are restored from the numeric header IDs, never by
// name: the chroot's passwd differs from the host's, so name resolution would
// mis-assign everything.
// Uses klauspost/compress/gzip for ~3-5x faster decompression than stdlib.
func Untar(archive, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var dirs []*tar.Header
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		// Clean the path and ensure it stays within destDir
		cleanName := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "..") {
			continue // skip path traversal
		}

		if err := placeEntry(tr, hdr, destDir, cleanName); err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeDir && !hdr.ModTime.IsZero() {
			dirs = append(dirs, hdr)
		}
	}

	// Writing entries into a directory bumps its mtime, so directory times
	// can only be restored once the whole tree is in place.
	for _, hdr := range dirs {
		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	}

	return nil
}

// placeEntry restores one tar entry under destDir. Ownership comes from the
// numeric header IDs; mode bits are applied after the chown because chown
// clears setuid/setgid, and a rootfs full of clean sudo/passwd binaries needs
// them back.
func placeEntry(tr *tar.Reader, hdr *tar.Header, destDir, cleanName string) error {
	target := filepath.Join(destDir, cleanName)
	mode := hdr.FileInfo().Mode()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, mode.Perm()); err != nil {
			return fmt.Errorf("mkdir %s: %w", cleanName, err)
		}
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
		if err != nil {
			return fmt.Errorf("create %s: %w", cleanName, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", cleanName, err)
		}
		f.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target) // remove existing if any
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", cleanName, hdr.Linkname, err)
		}
	case tar.TypeLink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		linkTarget := filepath.Join(destDir, filepath.Clean(hdr.Linkname))
		os.Remove(target)
		if err := os.Link(linkTarget, target); err != nil {
			return fmt.Errorf("hardlink %s -> %s: %w", cleanName, hdr.Linkname, err)
		}
		// The link shares the source inode; owner and mode came with it.
		return nil
	case tar.TypeFifo:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		if err := mkFifo(target, mode); err != nil {
			return fmt.Errorf("mkfifo %s: %w", cleanName, err)
		}
	case tar.TypeChar, tar.TypeBlock:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		if err := mkDevice(target, mode, hdr.Typeflag, hdr.Devmajor, hdr.Devminor); err != nil {
			return fmt.Errorf("mknod %s: %w", cleanName, err)
		}
	default:
		// PAX global headers and other metadata entries carry no content
		return nil
	}

	if err := lchown(target, hdr.Uid, hdr.Gid); err != nil {
		return fmt.Errorf("chown %s: %w", cleanName, err)
	}
	if hdr.Typeflag != tar.TypeSymlink {
		// No lchmod on Linux; symlink modes are ignored by the kernel anyway
		if err := os.Chmod(target, mode); err != nil {
			return fmt.Errorf("chmod %s: %w", cleanName, err)
		}
	}
	if hdr.Typeflag == tar.TypeReg && !hdr.ModTime.IsZero() {
		os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	}
	return nil
}
