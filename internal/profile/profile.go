// Package profile parses the optional YAML provisioning profile.
//
// A profile supplies defaults for inputs the workflow leaves unset;
// environment inputs always win over profile values.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the YAML on-disk representation of a provisioning profile.
type Profile struct {
	Mirror       string   `yaml:"mirror,omitempty"`
	Packages     []string `yaml:"packages,omitempty"`
	Bootstrap    string   `yaml:"bootstrap,omitempty"`
	Architecture string   `yaml:"architecture,omitempty"`
	CacheDir     string   `yaml:"cache_dir,omitempty"`
}

// ParseFile reads and parses a profile from a YAML file.
func ParseFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses a profile from YAML bytes.
func ParseBytes(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	switch p.Architecture {
	case "", "aarch64", "armv7":
	default:
		return nil, fmt.Errorf("profile architecture %q not supported (want aarch64 or armv7)", p.Architecture)
	}

	return &p, nil
}
