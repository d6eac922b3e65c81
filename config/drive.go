package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// DriveEnv overrides Google Drive detection when it points at an existing directory.
const DriveEnv = "LITREV_DRIVE_PATH"

// DetectDrivePath finds the local Google Drive folder, or returns "".
func DetectDrivePath() string {
	if p := os.Getenv(DriveEnv); p != "" {
		if isDir(p) {
			return p
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return detectDrive(runtime.GOOS, home)
}

func detectDrive(goos, home string) string {
	for _, c := range driveCandidates(goos, home) {
		if isDir(c) {
			return c
		}
	}
	return ""
}

func driveCandidates(goos, home string) []string {
	switch goos {
	case "darwin":
		// ~/Library/CloudStorage/GoogleDrive-{account}/My Drive
		matches, _ := filepath.Glob(filepath.Join(home, "Library", "CloudStorage", "GoogleDrive-*", "My Drive"))
		sort.Strings(matches)
		return matches
	case "linux":
		return []string{
			filepath.Join(home, "google-drive"),
			filepath.Join(home, "Google Drive"),
			filepath.Join(home, "GoogleDrive"),
			filepath.Join(home, ".google-drive"),
		}
	case "windows":
		return []string{
			"G:/My Drive",
			"G:/MyDrive",
			filepath.Join(home, "Google Drive"),
			filepath.Join(home, "GoogleDrive"),
		}
	}
	return nil
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
