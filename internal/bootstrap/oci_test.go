package bootstrap

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// buildLayer creates a v1.Layer from a set of tar entries.
func buildLayer(t *testing.T, entries []tarEntry) v1.Layer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeEntries(t, tw, entries)
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	data := buf.Bytes()
	layer, err := tarball.LayerFromReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("tarball.LayerFromReader: %v", err)
	}
	return layer
}

func TestOCIPlatform(t *testing.T) {
	p, err := ociPlatform("aarch64")
	if err != nil {
		t.Fatal(err)
	}
	if p.OS != "linux" || p.Architecture != "arm64" || p.Variant != "" {
		t.Errorf("aarch64 -> %+v, want linux/arm64", p)
	}

	p, err = ociPlatform("armv7")
	if err != nil {
		t.Fatal(err)
	}
	if p.Architecture != "arm" || p.Variant != "v7" {
		t.Errorf("armv7 -> %+v, want linux/arm/v7", p)
	}

	if _, err := ociPlatform("riscv64"); err == nil {
		t.Error("expected error for unmapped architecture")
	}
}

func TestUnpackLayer_RegularFiles(t *testing.T) {
	stubLchown(t)
	dest := t.TempDir()

	layer := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeDir, name: "etc/", mode: 0755},
		{typeflag: tar.TypeReg, name: "etc/hostname", content: "alarm", mode: 0644},
	})

	if err := unpackLayer(layer, dest); err != nil {
		t.Fatalf("unpackLayer: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "etc", "hostname"))
	if err != nil {
		t.Fatalf("read etc/hostname: %v", err)
	}
	if string(data) != "alarm" {
		t.Errorf("etc/hostname = %q, want %q", data, "alarm")
	}
}

func TestUnpackLayer_NumericOwners(t *testing.T) {
	owners := stubLchown(t)
	dest := t.TempDir()

	layer := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeDir, name: "home/", mode: 0755},
		{typeflag: tar.TypeDir, name: "home/alarm/", mode: 0700, uid: 1000, gid: 1000},
	})

	if err := unpackLayer(layer, dest); err != nil {
		t.Fatalf("unpackLayer: %v", err)
	}

	if got := owners[filepath.Join(dest, "home", "alarm")]; got != [2]int{1000, 1000} {
		t.Errorf("home/alarm owner = %v, want [1000 1000]", got)
	}
}

func TestUnpackLayer_WhiteoutFile(t *testing.T) {
	stubLchown(t)
	dest := t.TempDir()

	layer1 := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeDir, name: "etc/", mode: 0755},
		{typeflag: tar.TypeReg, name: "etc/remove-me.conf", content: "old", mode: 0644},
		{typeflag: tar.TypeReg, name: "etc/keep-me.conf", content: "keep", mode: 0644},
	})
	layer2 := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeReg, name: "etc/.wh.remove-me.conf", content: "", mode: 0644},
	})

	for _, l := range []v1.Layer{layer1, layer2} {
		if err := unpackLayer(l, dest); err != nil {
			t.Fatalf("unpackLayer: %v", err)
		}
	}

	if _, err := os.Stat(filepath.Join(dest, "etc", "remove-me.conf")); !os.IsNotExist(err) {
		t.Error("etc/remove-me.conf should have been removed by whiteout")
	}
	if _, err := os.Stat(filepath.Join(dest, "etc", "keep-me.conf")); err != nil {
		t.Errorf("etc/keep-me.conf should survive: %v", err)
	}
}

func TestUnpackLayer_OpaqueWhiteout(t *testing.T) {
	stubLchown(t)
	dest := t.TempDir()

	layer1 := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeDir, name: "var/", mode: 0755},
		{typeflag: tar.TypeDir, name: "var/cache/", mode: 0755},
		{typeflag: tar.TypeReg, name: "var/cache/old.txt", content: "old", mode: 0644},
	})
	layer2 := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeReg, name: "var/cache/.wh..wh..opq", content: "", mode: 0644},
		{typeflag: tar.TypeReg, name: "var/cache/new.txt", content: "new", mode: 0644},
	})

	for _, l := range []v1.Layer{layer1, layer2} {
		if err := unpackLayer(l, dest); err != nil {
			t.Fatalf("unpackLayer: %v", err)
		}
	}

	if _, err := os.Stat(filepath.Join(dest, "var", "cache", "old.txt")); !os.IsNotExist(err) {
		t.Error("var/cache/old.txt should have been removed by opaque whiteout")
	}
	data, err := os.ReadFile(filepath.Join(dest, "var", "cache", "new.txt"))
	if err != nil {
		t.Fatalf("read var/cache/new.txt: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("var/cache/new.txt = %q, want %q", data, "new")
	}
}

func TestUnpackLayer_LaterLayerOverwrites(t *testing.T) {
	stubLchown(t)
	dest := t.TempDir()

	layer1 := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeReg, name: "config.txt", content: "v1", mode: 0644},
	})
	layer2 := buildLayer(t, []tarEntry{
		{typeflag: tar.TypeReg, name: "config.txt", content: "v2", mode: 0644},
	})

	for _, l := range []v1.Layer{layer1, layer2} {
		if err := unpackLayer(l, dest); err != nil {
			t.Fatalf("unpackLayer: %v", err)
		}
	}

	data, _ := os.ReadFile(filepath.Join(dest, "config.txt"))
	if string(data) != "v2" {
		t.Errorf("config.txt = %q, want %q (layer 2 should overwrite layer 1)", data, "v2")
	}
}
