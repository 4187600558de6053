package resources

import (
	"math"
	"testing"
)

func TestCheckDiskSpace(t *testing.T) {
	info, err := CheckDiskSpace(t.TempDir())
	if err != nil {
		t.Fatalf("CheckDiskSpace failed: %v", err)
	}
	if info.TotalMB == 0 {
		t.Error("Expected non-zero total size")
	}
	if info.UsedPercent < 0 || info.UsedPercent > 100 {
		t.Errorf("UsedPercent out of range: %f", info.UsedPercent)
	}
}

func TestEnsureSufficientDiskSpace(t *testing.T) {
	dir := t.TempDir()

	if info, err := EnsureSufficientDiskSpace(dir, 0); err != nil || info != nil {
		t.Errorf("Expected disabled check, got %v, %v", info, err)
	}

	if _, err := EnsureSufficientDiskSpace(dir, 1); err != nil {
		t.Errorf("Expected at least 1 MB free, got error: %v", err)
	}

	if _, err := EnsureSufficientDiskSpace(dir, math.MaxInt32); err == nil {
		t.Error("Expected error for unrealistic requirement")
	}
}

func TestCheckDiskSpaceMissingPath(t *testing.T) {
	if _, err := CheckDiskSpace("/nonexistent/wfrunner/path"); err == nil {
		t.Error("Expected error for missing path")
	}
}
