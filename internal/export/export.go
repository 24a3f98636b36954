// Package export writes profiles, marker tables and map snapshots to files
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// unsafeChars are replaced in filename components
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// GenerateFilename generates a filename with timestamp
func GenerateFilename(prefix, extension, directory string) string {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.%s", prefix, timestamp, extension)
	if directory != "" {
		return filepath.Join(directory, filename)
	}
	return filename
}

// SafeName makes s usable inside a filename
func SafeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "unnamed"
	}
	return s
}

func writeFile(filename string, data []byte) error {
	if dir := filepath.Dir(filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// StripANSI removes terminal color codes
func StripANSI(content string) string {
	return ansiRegex.ReplaceAllString(content, "")
}

// SaveAsText saves content as plain text, stripping ANSI codes
func SaveAsText(content string, filename string) error {
	if filename == "" {
		filename = GenerateFilename("geopol_map", "txt", "")
	}
	return writeFile(filename, []byte(StripANSI(content)))
}

// CaptureScreen saves the rendered map view as a text snapshot
func CaptureScreen(content string, directory string) (string, error) {
	filename := GenerateFilename("geopol_map", "txt", directory)
	if err := SaveAsText(content, filename); err != nil {
		return "", err
	}
	return filename, nil
}
