package resources

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskSpaceInfo contains disk space information
type DiskSpaceInfo struct {
	Path        string
	TotalMB     uint64
	AvailableMB uint64
	UsedMB      uint64
	UsedPercent float64
}

// CheckDiskSpace checks available disk space for a path
func CheckDiskSpace(path string) (*DiskSpaceInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to check disk space: %w", err)
	}

	return &DiskSpaceInfo{
		Path:        usage.Path,
		TotalMB:     usage.Total / (1024 * 1024),
		AvailableMB: usage.Free / (1024 * 1024),
		UsedMB:      usage.Used / (1024 * 1024),
		UsedPercent: usage.UsedPercent,
	}, nil
}

// EnsureSufficientDiskSpace checks if at least requiredMB is free at path.
// requiredMB <= 0 disables the check.
func EnsureSufficientDiskSpace(path string, requiredMB int) (*DiskSpaceInfo, error) {
	if requiredMB <= 0 {
		return nil, nil
	}

	info, err := CheckDiskSpace(path)
	if err != nil {
		return nil, err
	}

	if info.AvailableMB < uint64(requiredMB) {
		return info, fmt.Errorf("insufficient disk space at %s: need %d MB, available %d MB (%.1f%% used)",
			path, requiredMB, info.AvailableMB, info.UsedPercent)
	}

	return info, nil
}
