package chroot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MountInfo is one row of /proc/self/mountinfo.
type MountInfo struct {
	ID         int
	ParentID   int
	Root       string
	MountPoint string
	FSType     string
}

// ParseMountInfo reads mountinfo rows. Mount points containing spaces, tabs
// or backslashes arrive octal-escaped (\040 and friends) and are decoded.
func ParseMountInfo(r io.Reader) ([]MountInfo, error) {
	var mounts []MountInfo
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("malformed mountinfo line: %q", line)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("malformed mountinfo line: %q", line)
		}
		parent, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("malformed mountinfo line: %q", line)
		}
		mi := MountInfo{
			ID:         id,
			ParentID:   parent,
			Root:       unescapeMountPath(fields[3]),
			MountPoint: unescapeMountPath(fields[4]),
		}
		// the filesystem type sits after the optional-fields separator
		for i := 6; i < len(fields); i++ {
			if fields[i] == "-" && i+1 < len(fields) {
				mi.FSType = fields[i+1]
				break
			}
		}
		mounts = append(mounts, mi)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}
	return mounts, nil
}

// MountsUnder returns every mount point at or below prefix, newest first.
// The kernel lists mounts oldest first and a child is always mounted after
// its parent, so unwinding in the returned order never hits a mount point
// with something still mounted below it.
func MountsUnder(prefix string) ([]string, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()
	infos, err := ParseMountInfo(f)
	if err != nil {
		return nil, err
	}
	return mountsUnder(infos, prefix), nil
}

func mountsUnder(infos []MountInfo, prefix string) []string {
	clean := filepath.Clean(prefix)
	var points []string
	for i := len(infos) - 1; i >= 0; i-- {
		mp := infos[i].MountPoint
		if mp == clean || strings.HasPrefix(mp, clean+"/") {
			points = append(points, mp)
		}
	}
	return points
}

func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
