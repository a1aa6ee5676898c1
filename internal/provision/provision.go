// Package provision runs the full rootfs provisioning pipeline: acquire the
// bootstrap image, unpack it, mount it, bring pacman up inside the chroot,
// create the matching user and publish the action outputs.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xfeldman/archroot/internal/action"
	"github.com/xfeldman/archroot/internal/bootstrap"
	"github.com/xfeldman/archroot/internal/chroot"
	"github.com/xfeldman/archroot/internal/config"
	"github.com/xfeldman/archroot/internal/pacman"
	"github.com/xfeldman/archroot/internal/state"
	"github.com/xfeldman/archroot/internal/user"
)

// Helper binaries installed at the rootfs root. The rootfs directory ends up
// on PATH for later job steps, which makes both helpers invocable by name.
const (
	enterHelper   = "archroot-enter"
	destroyHelper = "archroot-destroy"
)

// Provisioner runs the pipeline. The function fields default to the real
// implementations and exist so tests can drive the pipeline without network
// access, root privileges or an ARM rootfs.
type Provisioner struct {
	Config  *config.Config
	Outputs *action.Outputs
	DB      *state.DB // optional; provisions and mounts are recorded when set

	// HelperDir is where the enter and destroy helpers are staged before
	// installation. Empty means the directory of the running executable.
	HelperDir string

	Fetch         func(ctx context.Context, url, dest string) error
	FetchChecksum func(ctx context.Context, url string) (string, error)
	VerifyMD5     func(path, sum string) error
	Pull          func(ctx context.Context, imageRef, destDir, arch string) error
	Extract       func(archive, destDir string) error
	BindSelf      func(dir string) error
	Bind          func(source, target string) error
	NewRunner     func(helper string) pacman.Runner
}

// New returns a Provisioner wired to the real implementations.
func New(cfg *config.Config, outputs *action.Outputs) *Provisioner {
	return &Provisioner{
		Config:        cfg,
		Outputs:       outputs,
		Fetch:         bootstrap.Fetch,
		FetchChecksum: bootstrap.FetchChecksum,
		VerifyMD5:     bootstrap.VerifyMD5,
		Pull:          bootstrap.PullRootfs,
		Extract:       bootstrap.Untar,
		BindSelf:      chroot.BindSelf,
		Bind:          chroot.Bind,
		NewRunner: func(helper string) pacman.Runner {
			return &pacman.ChrootRunner{Helper: helper}
		},
	}
}

// Run executes the pipeline in a fixed order. Any failure aborts
// immediately: no outputs are written, and mounts already established are
// left in place for the runner environment to tear down.
func (p *Provisioner) Run(ctx context.Context) error {
	cfg := p.Config

	// 1. Work directories and the provision record
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("create state directories: %w", err)
	}
	if p.DB != nil {
		prov := &state.Provision{
			Rootfs:    cfg.RootfsDir,
			Mirror:    cfg.Mirror,
			Packages:  cfg.Packages,
			State:     state.StateProvisioning,
			CreatedAt: time.Now(),
		}
		if err := p.DB.SaveProvision(prov); err != nil {
			return fmt.Errorf("record provision: %w", err)
		}
	}

	// 2. Acquire and unpack the rootfs
	tarball := ""
	if ref, ok := cfg.OCIRef(); ok {
		log.Printf("pulling rootfs image %s", ref)
		if err := p.Pull(ctx, ref, cfg.RootfsDir, cfg.Architecture); err != nil {
			return fmt.Errorf("pull rootfs image: %w", err)
		}
	} else {
		tarball = cfg.TarballPath()
		if err := p.acquireTarball(ctx, tarball); err != nil {
			return err
		}
		log.Printf("extracting %s into %s", filepath.Base(tarball), cfg.RootfsDir)
		if err := p.Extract(tarball, cfg.RootfsDir); err != nil {
			return fmt.Errorf("extract rootfs: %w", err)
		}
	}

	// 3. Bind the rootfs onto itself so chroot tooling sees a real mount point
	if err := p.BindSelf(cfg.RootfsDir); err != nil {
		return err
	}
	p.recordMount(cfg.RootfsDir, "bind-self")

	// 4. Install the enter and destroy helpers at the rootfs root
	if err := p.installHelpers(); err != nil {
		return err
	}

	// 5. Point pacman at the mirror before the first sync can run
	if err := pacman.WriteMirrorlist(cfg.RootfsDir, cfg.Mirror); err != nil {
		return err
	}
	if err := pacman.DisableCheckSpace(cfg.RootfsDir); err != nil {
		return err
	}

	// 6. Keyring bootstrap and base system update inside the chroot
	runner := p.NewRunner(filepath.Join(cfg.RootfsDir, enterHelper))
	log.Println("bootstrapping pacman")
	if err := pacman.Bootstrap(ctx, runner); err != nil {
		return err
	}

	// 7. Extra packages, one invocation, skipped when none were requested
	if err := pacman.Install(ctx, runner, strings.Join(cfg.Packages, " ")); err != nil {
		return err
	}

	// 8. Matching user account, its home, and passwordless sudo
	if err := user.Create(ctx, runner, cfg.User, cfg.UID); err != nil {
		return err
	}
	if err := p.Bind(cfg.HomeDir, filepath.Join(cfg.RootfsDir, cfg.HomeDir)); err != nil {
		return err
	}
	p.recordMount(filepath.Join(cfg.RootfsDir, cfg.HomeDir), "bind-home")
	if err := user.AppendWheelNopasswd(cfg.RootfsDir); err != nil {
		return err
	}

	// 9. Drop the tarball now that the tree is populated
	if tarball != "" {
		if err := os.Remove(tarball); err != nil {
			return fmt.Errorf("remove tarball: %w", err)
		}
	}

	if p.DB != nil {
		if err := p.DB.UpdateProvisionState(cfg.RootfsDir, state.StateReady); err != nil {
			return fmt.Errorf("mark provision ready: %w", err)
		}
	}

	// 10. Publish outputs, strictly last: a failed run must emit nothing
	if err := p.Outputs.Set("root-path", cfg.RootfsDir); err != nil {
		return err
	}
	if err := p.Outputs.AddPath(cfg.RootfsDir); err != nil {
		return err
	}

	log.Printf("rootfs ready at %s", cfg.RootfsDir)
	return nil
}

// acquireTarball places the bootstrap tarball at dest: from the cache when a
// previous run already verified the same URL, otherwise from the mirror.
func (p *Provisioner) acquireTarball(ctx context.Context, dest string) error {
	cfg := p.Config
	var cache *bootstrap.Cache
	if cfg.CacheDir != "" {
		cache = bootstrap.NewCache(cfg.CacheDir)
	}

	if cache != nil && p.DB != nil {
		rec, err := p.DB.GetTarball(cfg.BootstrapURL)
		if err != nil {
			return fmt.Errorf("look up cached tarball: %w", err)
		}
		if rec != nil {
			err := cache.CopyTo(rec.Digest, dest)
			if err == nil {
				log.Printf("tarball cache hit for %s", cfg.BootstrapURL)
				return nil
			}
			log.Printf("tarball cache miss: %v", err)
		}
	}

	log.Printf("downloading %s", cfg.BootstrapURL)
	if err := p.Fetch(ctx, cfg.BootstrapURL, dest); err != nil {
		return err
	}

	sum, err := p.FetchChecksum(ctx, cfg.BootstrapURL)
	switch {
	case errors.Is(err, bootstrap.ErrNoChecksum):
		log.Printf("no checksum published for %s, skipping verification", cfg.BootstrapURL)
	case err != nil:
		return err
	default:
		if err := p.VerifyMD5(dest, sum); err != nil {
			return err
		}
	}

	if cache != nil {
		digest, err := cache.Put(dest)
		if err != nil {
			return fmt.Errorf("cache tarball: %w", err)
		}
		if p.DB != nil {
			if err := p.DB.SaveTarball(cfg.BootstrapURL, digest); err != nil {
				return fmt.Errorf("record cached tarball: %w", err)
			}
		}
	}
	return nil
}

// installHelpers copies the enter and destroy helpers to the rootfs root.
func (p *Provisioner) installHelpers() error {
	dir := p.HelperDir
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate running binary: %w", err)
		}
		dir = filepath.Dir(exe)
	}
	for _, name := range []string{enterHelper, destroyHelper} {
		if err := installFile(filepath.Join(dir, name), filepath.Join(p.Config.RootfsDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func installFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open helper: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("install helper: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy helper %s: %w", filepath.Base(src), err)
	}
	return nil
}

// recordMount is bookkeeping, not part of the pipeline contract: teardown
// falls back to scanning the mount table when records are missing, so a
// failed insert only logs.
func (p *Provisioner) recordMount(target, kind string) {
	if p.DB == nil {
		return
	}
	if err := p.DB.AddMount(p.Config.RootfsDir, target, kind); err != nil {
		log.Printf("record %s mount: %v", kind, err)
	}
}
