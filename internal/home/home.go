package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the fable home directory.
	DefaultDirName = ".fable"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the fable home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.fable).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.BundlesDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create bundles directory: %w", err)
	}
	return nil
}

// BundlesDir returns the directory for exported audio bundles.
func (d *Dir) BundlesDir() string {
	return filepath.Join(d.path, "bundles")
}

// BookBundleDir returns the bundle export directory for a specific book.
func (d *Dir) BookBundleDir(bookID string) string {
	return filepath.Join(d.BundlesDir(), bookID)
}

// EnsureBookBundleDir creates the bundle directory for a book.
func (d *Dir) EnsureBookBundleDir(bookID string) error {
	return os.MkdirAll(d.BookBundleDir(bookID), 0o755)
}
