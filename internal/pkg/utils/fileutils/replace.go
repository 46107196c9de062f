package fileutils

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// getLockFile computes a unique lock file path based on the canonical absolute path of newPath.
func getLockFile(newPath string) string {
	abs, err := filepath.Abs(newPath)
	if err != nil {
		abs = newPath
	}
	abs = filepath.Clean(abs)
	hash := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), "slotupdate_lock_"+hex.EncodeToString(hash[:]))
}

// LockPath takes an exclusive lock associated with path and returns the function releasing it.
func LockPath(path string) (unlock func() error, err error) {
	lock := flock.New(getLockFile(path))
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}

// ReplaceFile atomically replaces the file at targetPath with the file at currentPath,
// using a unique lock file based on targetPath.
func ReplaceFile(currentPath, targetPath string) error {
	unlock, err := LockPath(targetPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = unlock()
	}()
	return os.Rename(currentPath, targetPath)
}
