// Package filex resolves the device's data directory and reads files that
// are attached to captured inbox items.
package filex

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// HomeEnv overrides the data directory.
const HomeEnv = "ALTAIR_HOME"

// MaxAttachmentSize caps a single uploaded file.
const MaxAttachmentSize = 25 << 20

// EnsureDir creates dir and its parents when missing and returns it.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// DataDir returns $ALTAIR_HOME, or "altair" under the user config directory,
// creating it when missing.
func DataDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return EnsureDir(dir)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return EnsureDir(filepath.Join(base, "altair"))
}

// ReadAttachment loads path and sniffs its content type.
func ReadAttachment(path string) ([]byte, string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if fi.IsDir() {
		return nil, "", fmt.Errorf("%s is a directory", path)
	}
	if fi.Size() > MaxAttachmentSize {
		return nil, "", fmt.Errorf("%s is larger than %d bytes", path, MaxAttachmentSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, http.DetectContentType(data), nil
}
