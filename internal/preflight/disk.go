//go:build !windows

package preflight

import (
	"fmt"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the free space the data directory needs before
// indexing is safe (100MB).
const MinDiskSpaceBytes = 100 << 20

// CheckDiskSpace verifies free space on the filesystem holding the data
// directory. The parent is probed when the directory does not exist yet.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		if err = syscall.Statfs(filepath.Dir(path), &fs); err != nil {
			r.Status = StatusFail
			r.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
			return r
		}
	}

	free := fs.Bavail * uint64(fs.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(free))
	r.Status = StatusPass
	if free < MinDiskSpaceBytes {
		r.Status = StatusFail
	}
	return r
}

func formatBytes(n uint64) string {
	units := []struct {
		limit uint64
		name  string
	}{
		{1 << 40, "TB"},
		{1 << 30, "GB"},
		{1 << 20, "MB"},
		{1 << 10, "KB"},
	}
	for _, u := range units {
		if n >= u.limit {
			return fmt.Sprintf("%.1f %s", float64(n)/float64(u.limit), u.name)
		}
	}
	return fmt.Sprintf("%d bytes", n)
}
