package config

import (
	"fmt"
	"runtime"
)

// Platform describes the detected host platform.
type Platform struct {
	OS   string // "linux" is the only supported value
	Arch string // host architecture, e.g. "arm64"
}

// DetectPlatform detects the host platform. Provisioning a chroot needs a
// Linux host. Architecture is not checked here: binfmt emulation can run
// foreign binaries, so a mismatch is a doctor warning, not an error.
func DetectPlatform() (*Platform, error) {
	p := &Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if p.OS != "linux" {
		return nil, fmt.Errorf("unsupported platform: %s/%s. archroot provisions Linux chroots and must run on a Linux host", p.OS, p.Arch)
	}

	return p, nil
}

// Native reports whether binaries built for the given ARM variant run on this
// host without emulation. armv7 binaries run on arm64 kernels with 32-bit
// compat enabled, which covers the common Raspberry Pi OS setups.
func (p *Platform) Native(arch string) bool {
	switch arch {
	case "aarch64":
		return p.Arch == "arm64"
	case "armv7":
		return p.Arch == "arm" || p.Arch == "arm64"
	}
	return false
}
