// Package mirror provides the mirror store for configuration file sync.
// This file contains byte-level file helpers shared by the operations.
package mirror

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// readIfExists reads a file and reports whether it exists. A missing file
// is not an error; registry entries are allowed to be absent on either side.
func readIfExists(fs billy.Filesystem, name string) ([]byte, bool, error) {
	data, err := util.ReadFile(fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// writeFile writes a file, creating parent directories as needed. Registry
// entries may be nested relative paths.
func writeFile(fs billy.Filesystem, name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return util.WriteFile(fs, name, data, 0o644)
}

// sameContent reports whether two byte slices are identical. The registry
// treats files as opaque bytes; there is no normalization of any kind.
func sameContent(a, b []byte) bool {
	return bytes.Equal(a, b)
}
