//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// checkVolume verifies that the drive or share root of path exists, e.g. "Z:\" for "Z:\backup".
func checkVolume(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil
	}
	if !strings.HasSuffix(volume, string(filepath.Separator)) {
		volume += string(filepath.Separator)
	}
	volume = filepath.Clean(volume)
	if _, err := os.Stat(volume); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", volume)
	}
	return nil
}

func availableBytes(dir string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
