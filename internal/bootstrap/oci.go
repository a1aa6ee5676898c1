package bootstrap

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	gzip "github.com/klauspost/compress/gzip"
)

// ociPlatform maps the ARM variant names Arch Linux ARM uses onto OCI
// platform identifiers.
func ociPlatform(arch string) (*v1.Platform, error) {
	switch arch {
	case "aarch64":
		return &v1.Platform{OS: "linux", Architecture: "arm64"}, nil
	case "armv7":
		return &v1.Platform{OS: "linux", Architecture: "arm", Variant: "v7"}, nil
	}
	return nil, fmt.Errorf("architecture %q has no OCI platform mapping", arch)
}

// PullRootfs pulls an OCI image and flattens its layers into destDir,
// selecting the variant matching the configured ARM architecture. Layers are
// applied in order with OCI whiteouts honored, and entries are restored with
// the same numeric-owner rules as tarball extraction.
func PullRootfs(ctx context.Context, imageRef, destDir, arch string) error {
	platform, err := ociPlatform(arch)
	if err != nil {
		return err
	}

	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return fmt.Errorf("parse image ref %q: %w", imageRef, err)
	}

	desc, err := remote.Get(ref, remote.WithContext(ctx), remote.WithPlatform(*platform))
	if err != nil {
		return fmt.Errorf("pull %s: %w", imageRef, err)
	}

	img, err := selectImage(desc, imageRef, platform)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	layers, err := img.Layers()
	if err != nil {
		return fmt.Errorf("get layers: %w", err)
	}
	for i, layer := range layers {
		if err := unpackLayer(layer, destDir); err != nil {
			return fmt.Errorf("unpack layer %d: %w", i, err)
		}
	}
	return nil
}

// selectImage resolves a descriptor to the image matching platform: picking
// the right entry out of an index, or verifying a single-manifest image
// actually is the requested platform. Without the check, an amd64 image
// unpacks fine and then every chroot command dies with exec format errors.
func selectImage(desc *remote.Descriptor, imageRef string, platform *v1.Platform) (v1.Image, error) {
	switch desc.MediaType {
	case types.OCIImageIndex, types.DockerManifestList:
		idx, err := desc.ImageIndex()
		if err != nil {
			return nil, fmt.Errorf("get image index: %w", err)
		}
		indexManifest, err := idx.IndexManifest()
		if err != nil {
			return nil, fmt.Errorf("get index manifest: %w", err)
		}
		for _, m := range indexManifest.Manifests {
			if m.Platform == nil {
				continue
			}
			if m.Platform.OS != platform.OS || m.Platform.Architecture != platform.Architecture {
				continue
			}
			if platform.Variant != "" && m.Platform.Variant != platform.Variant {
				continue
			}
			img, err := idx.Image(m.Digest)
			if err != nil {
				return nil, fmt.Errorf("get %s image: %w", platform.Architecture, err)
			}
			return img, nil
		}
		return nil, fmt.Errorf("no %s/%s variant found in %s", platform.OS, platform.Architecture, imageRef)
	default:
		img, err := desc.Image()
		if err != nil {
			return nil, fmt.Errorf("get image: %w", err)
		}
		cfg, err := img.ConfigFile()
		if err != nil {
			return nil, fmt.Errorf("get image config: %w", err)
		}
		if cfg.OS != platform.OS || cfg.Architecture != platform.Architecture {
			return nil, fmt.Errorf("image %s is %s/%s, want %s/%s", imageRef, cfg.OS, cfg.Architecture, platform.OS, platform.Architecture)
		}
		return img, nil
	}
}

func unpackLayer(layer v1.Layer, destDir string) error {
	// Use Compressed() + klauspost/gzip instead of layer.Uncompressed()
	// which uses stdlib compress/gzip (~50MB/s). klauspost is 3-5x faster.
	rc, err := layer.Compressed()
	if err != nil {
		return fmt.Errorf("get compressed layer: %w", err)
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
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

		// Handle OCI whiteout files
		base := filepath.Base(cleanName)
		dir := filepath.Dir(cleanName)

		if base == ".wh..wh..opq" {
			// Opaque whiteout: remove all contents in this directory
			opqDir := filepath.Join(destDir, dir)
			entries, _ := os.ReadDir(opqDir)
			for _, e := range entries {
				os.RemoveAll(filepath.Join(opqDir, e.Name()))
			}
			continue
		}

		if strings.HasPrefix(base, ".wh.") {
			// File whiteout: remove the corresponding file
			whiteoutTarget := filepath.Join(destDir, dir, strings.TrimPrefix(base, ".wh."))
			os.RemoveAll(whiteoutTarget)
			continue
		}

		if err := placeEntry(tr, hdr, destDir, cleanName); err != nil {
			return err
		}
	}

	return nil
}
