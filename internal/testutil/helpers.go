package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WaitForCondition waits until the condition function returns true or times out
func WaitForCondition(fn func() bool, timeout time.Duration) error {
	interval := min(max(timeout/100, time.Millisecond), 50*time.Millisecond)
	for deadline := time.Now().Add(timeout); time.Now().Before(deadline); time.Sleep(interval) {
		if fn() {
			return nil
		}
	}
	return fmt.Errorf("condition not met within %v", timeout)
}

// TempConfigDir creates a temporary geopol config directory and returns the
// settings path. The directory is removed when the test finishes.
func TempConfigDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".config", "geopol")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	return filepath.Join(dir, "settings.json")
}

// Eventually retries the assertion function until it succeeds or times out
func Eventually(t *testing.T, fn func() bool, timeout, interval time.Duration, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(interval)
	}
	t.Errorf("condition not met within %v: %s", timeout, message)
}

// StartMockServer starts a mock backend that is stopped when the test ends
func StartMockServer(t *testing.T) *MockServer {
	t.Helper()
	s := NewMockServer()
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}
