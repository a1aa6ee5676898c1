package pacman

import (
	"context"
	"strings"
)

// bootstrapSequence initializes the keyring and brings the base system up to
// date. Order matters: the keyring must be populated before the first sync
// can verify any package.
var bootstrapSequence = []string{
	"pacman-key --init",
	"pacman-key --populate archlinuxarm",
	"pacman -Syu --noconfirm",
}

// Bootstrap runs the first-boot pacman sequence inside the rootfs, stopping
// at the first command that fails.
func Bootstrap(ctx context.Context, r Runner) error {
	for _, command := range bootstrapSequence {
		if err := r.Run(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

// Install installs the requested packages in a single pacman invocation.
// packages is a space-separated list; an empty list is a no-op rather than
// an error so callers can pass the action input straight through.
func Install(ctx context.Context, r Runner, packages string) error {
	packages = strings.TrimSpace(packages)
	if packages == "" {
		return nil
	}
	return r.Run(ctx, "pacman -S --noconfirm --needed "+packages)
}
