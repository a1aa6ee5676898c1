package action

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInput(t *testing.T) {
	t.Setenv("INPUT_ARCH_MIRROR", "http://mirror.example.org/archlinuxarm")

	got := Input("arch_mirror")
	if got != "http://mirror.example.org/archlinuxarm" {
		t.Errorf("Input(arch_mirror) = %q", got)
	}
}

func TestInput_TrimsWhitespace(t *testing.T) {
	t.Setenv("INPUT_ARCH_PACKAGES", "  git vim \n")

	got := Input("arch_packages")
	if got != "git vim" {
		t.Errorf("Input(arch_packages) = %q, want %q", got, "git vim")
	}
}

func TestInput_NameTransformation(t *testing.T) {
	t.Setenv("INPUT_SOME_LONG_NAME", "value")

	if got := Input("some long name"); got != "value" {
		t.Errorf("Input(some long name) = %q, want %q", got, "value")
	}
}

func TestInput_Unset(t *testing.T) {
	if got := Input("definitely_not_set"); got != "" {
		t.Errorf("Input of unset var = %q, want empty", got)
	}
}

func TestOutputsSet(t *testing.T) {
	file := filepath.Join(t.TempDir(), "output")
	out := &Outputs{OutputFile: file}

	if err := out.Set("root-path", "/home/runner/rootfs"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "root-path=/home/runner/rootfs\n" {
		t.Errorf("output file = %q", string(data))
	}
}

func TestOutputsSet_AppendsToExisting(t *testing.T) {
	file := filepath.Join(t.TempDir(), "output")
	if err := os.WriteFile(file, []byte("earlier=1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out := &Outputs{OutputFile: file}

	if err := out.Set("root-path", "/rootfs"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(file)
	want := "earlier=1\nroot-path=/rootfs\n"
	if string(data) != want {
		t.Errorf("output file = %q, want %q", string(data), want)
	}
}

func TestOutputsAddPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "path")
	out := &Outputs{PathFile: file}

	if err := out.AddPath("/home/runner/rootfs"); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(file)
	if string(data) != "/home/runner/rootfs\n" {
		t.Errorf("path file = %q", string(data))
	}
}

func TestOutputs_UnsetFilesAreNoops(t *testing.T) {
	out := &Outputs{}

	if err := out.Set("root-path", "/rootfs"); err != nil {
		t.Errorf("Set with unset GITHUB_OUTPUT: %v", err)
	}
	if err := out.AddPath("/rootfs"); err != nil {
		t.Errorf("AddPath with unset GITHUB_PATH: %v", err)
	}
}
