// Package config resolves provisioning configuration from the action
// environment: the invoking identity from sudo, the workflow inputs, and an
// optional YAML profile underneath both.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xfeldman/archroot/internal/action"
	"github.com/xfeldman/archroot/internal/profile"
)

// bootstrapURLTemplate is the upstream tarball location, parameterized on the
// ARM variant.
const bootstrapURLTemplate = "http://os.archlinuxarm.org/os/ArchLinuxARM-%s-latest.tar.gz"

// ociPrefix marks a bootstrap source as an OCI image reference.
const ociPrefix = "oci://"

// Config holds everything one provisioning run needs.
type Config struct {
	// User is the invoking (non-root) username, from SUDO_USER.
	User string

	// UID is the invoking user's numeric ID.
	UID int

	// HomeDir is the invoking user's home directory on the host.
	HomeDir string

	// RootfsDir is the directory the Arch rootfs is extracted into.
	RootfsDir string

	// WorkDir is the scratch directory the tarball is downloaded to.
	WorkDir string

	// StateDir holds the provisioning state database.
	StateDir string

	// CacheDir is the tarball cache directory. Empty disables caching.
	CacheDir string

	// Mirror is the package mirror base URL, used verbatim in the mirrorlist.
	Mirror string

	// Packages are extra packages to install after bootstrap. May be empty.
	Packages []string

	// BootstrapURL is the rootfs source: an http(s) tarball URL, or an
	// oci:// image reference.
	BootstrapURL string

	// Architecture is the ARM variant: aarch64 (default) or armv7.
	Architecture string
}

// FromEnv builds a Config from the action environment. The binary runs under
// sudo, so the invoking identity comes from SUDO_USER/SUDO_UID. Workflow
// inputs win over profile values, which win over defaults.
func FromEnv() (*Config, error) {
	c := &Config{
		User:         os.Getenv("SUDO_USER"),
		Mirror:       action.Input("arch_mirror"),
		Packages:     strings.Fields(action.Input("arch_packages")),
		BootstrapURL: action.Input("arch_bootstrap"),
		Architecture: action.Input("arch_architecture"),
		CacheDir:     action.Input("arch_cache_dir"),
	}

	if profilePath := action.Input("arch_profile"); profilePath != "" {
		p, err := profile.ParseFile(profilePath)
		if err != nil {
			return nil, err
		}
		c.applyProfile(p)
	}

	if c.User == "" {
		return nil, fmt.Errorf("SUDO_USER not set: archroot must run under sudo")
	}
	if c.Mirror == "" {
		return nil, fmt.Errorf("INPUT_ARCH_MIRROR not set")
	}

	if raw := os.Getenv("SUDO_UID"); raw != "" {
		uid, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse SUDO_UID: %w", err)
		}
		c.UID = uid
	} else {
		u, err := user.Lookup(c.User)
		if err != nil {
			return nil, fmt.Errorf("look up user %s: %w", c.User, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return nil, fmt.Errorf("parse uid for %s: %w", c.User, err)
		}
		c.UID = uid
	}

	if c.Architecture == "" {
		c.Architecture = "aarch64"
	}
	switch c.Architecture {
	case "aarch64", "armv7":
	default:
		return nil, fmt.Errorf("architecture %q not supported (want aarch64 or armv7)", c.Architecture)
	}

	if c.BootstrapURL == "" {
		c.BootstrapURL = fmt.Sprintf(bootstrapURLTemplate, c.Architecture)
	}

	c.HomeDir = filepath.Join("/home", c.User)
	c.RootfsDir = filepath.Join(c.HomeDir, "rootfs")

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	c.WorkDir = wd

	c.StateDir = DefaultStateDir()

	return c, nil
}

// DefaultStateDir resolves the state directory from ARCHROOT_STATE_DIR,
// falling back to the system location. Split out from FromEnv so commands
// that only read state (doctor, destroy) need no action environment.
func DefaultStateDir() string {
	if dir := os.Getenv("ARCHROOT_STATE_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/archroot"
}

// DefaultDBPath is the state database under DefaultStateDir.
func DefaultDBPath() string {
	return filepath.Join(DefaultStateDir(), "archroot.db")
}

// applyProfile fills fields the environment left empty.
func (c *Config) applyProfile(p *profile.Profile) {
	if c.Mirror == "" {
		c.Mirror = p.Mirror
	}
	if len(c.Packages) == 0 {
		c.Packages = append(c.Packages, p.Packages...)
	}
	if c.BootstrapURL == "" {
		c.BootstrapURL = p.Bootstrap
	}
	if c.Architecture == "" {
		c.Architecture = p.Architecture
	}
	if c.CacheDir == "" {
		c.CacheDir = p.CacheDir
	}
}

// EnsureDirs creates the directories the run writes state into. The rootfs
// directory itself is created by extraction, not here.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.StateDir}
	if c.CacheDir != "" {
		dirs = append(dirs, c.CacheDir)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// DBPath is the provisioning state database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.StateDir, "archroot.db")
}

// TarballPath is where the bootstrap tarball lands in the working directory.
func (c *Config) TarballPath() string {
	return filepath.Join(c.WorkDir, path.Base(c.BootstrapURL))
}

// OCIRef reports whether the bootstrap source is an OCI image reference, and
// if so returns the reference with the oci:// prefix stripped.
func (c *Config) OCIRef() (string, bool) {
	if strings.HasPrefix(c.BootstrapURL, ociPrefix) {
		return strings.TrimPrefix(c.BootstrapURL, ociPrefix), true
	}
	return "", false
}
