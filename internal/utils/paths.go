package utils

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// DefaultDataDir returns ~/.shopsync, where snapshots, backups and the run
// history database live unless the user points elsewhere.
func DefaultDataDir() (string, error) {
	dir, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".shopsync"), nil
}
