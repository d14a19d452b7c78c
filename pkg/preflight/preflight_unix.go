//go:build !windows

package preflight

import "golang.org/x/sys/unix"

func checkVolume(path string) error { return nil }

func availableBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
