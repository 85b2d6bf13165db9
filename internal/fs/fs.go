// Package fs provides filesystem abstraction using spf13/afero for testability.
// It allows swapping the real filesystem with an in-memory mock for unit tests.
package fs

import (
	"os"

	"github.com/spf13/afero"
)

// FS is the global filesystem interface used throughout the application.
// By default it is the real OS filesystem; tests swap in a memory filesystem
// with SetFS(afero.NewMemMapFs()).
var FS afero.Fs = afero.NewOsFs()

// SetFS sets the global filesystem (useful for testing)
func SetFS(fs afero.Fs) {
	FS = fs
}

// ResetFS resets to the real OS filesystem
func ResetFS() {
	FS = afero.NewOsFs()
}

// NewMemMapFs creates a new in-memory filesystem for testing
func NewMemMapFs() afero.Fs {
	return afero.NewMemMapFs()
}

// ReadFile reads the named file
func ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(FS, name)
}

// WriteFile writes data to the named file, creating it if necessary
func WriteFile(name string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(FS, name, data, perm)
}

// MkdirAll creates a directory path along with any necessary parents
func MkdirAll(path string, perm os.FileMode) error {
	return FS.MkdirAll(path, perm)
}

// Exists reports whether the named file or directory exists
func Exists(name string) (bool, error) {
	return afero.Exists(FS, name)
}
