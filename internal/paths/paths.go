// Package paths provides platform-aware application directories and
// candidate-path resolution for the TTS helper.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Environment variable names used for path resolution.
const (
	envHelperHome = "TTS_HELPER_HOME"
)

// Common application directory and path constants.
const (
	appDirName            = "NaturalTTS"
	darwinAppSupport      = "Library/Application Support"
	osDarwin              = "darwin"
	tmpDir                = "/tmp"
	defaultDirPermissions = 0o750
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir           = "failed to create directory %s: %w"
	errFmtCouldNotResolveAbsolutePath = "could not resolve absolute path for %q: %w"
)

// AppSupportDir returns the directory holding the helper's config, settings
// and logs. TTS_HELPER_HOME overrides the platform default.
func AppSupportDir() string {
	if dir := os.Getenv(envHelperHome); dir != "" {
		return dir
	}

	if runtime.GOOS == osDarwin {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, darwinAppSupport, appDirName)
		}
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to a temporary directory if home cannot be determined.
		return filepath.Join(tmpDir, appDirName)
	}

	return filepath.Join(configDir, appDirName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// FirstExisting returns the absolute form of the first candidate that exists.
// When none exist it returns the last candidate unchanged, so callers always
// get a path even on a broken install; the failure then surfaces when the
// path is used.
func FirstExisting(candidates ...string) string {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}

		resolved, found := resolveSinglePath(candidate)
		if found {
			return resolved
		}
	}

	if len(candidates) == 0 {
		return ""
	}

	return candidates[len(candidates)-1]
}

// resolveSinglePath checks if a file exists at a given path and returns its
// absolute representation.
func resolveSinglePath(path string) (string, bool) {
	_, statErr := os.Stat(path)
	if statErr != nil {
		return "", false
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}

	return absPath, true
}

// Abs resolves path against the working directory.
func Abs(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf(errFmtCouldNotResolveAbsolutePath, path, err)
	}

	return absPath, nil
}

// FormatDuration formats a duration in seconds as a human-readable string
// (e.g., "1h 15m", "5m 30.5s", "45.2s").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a byte count as a human-readable string (e.g., "1.2 MB").
func FormatFileSize(bytes int64) string {
	const (
		kilobyte = 1024
		megabyte = kilobyte * 1024
	)

	switch {
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
