package fileutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/unbasical/slotupdate/internal/pkg/utils/funcutils"
	"github.com/unbasical/slotupdate/internal/pkg/utils/writerutils"
)

// SafeReadJSON reads the JSON file at the path into the targetPointer.
// Returns false without an error if the file does not exist or is empty.
func SafeReadJSON(filePath string, targetPointer any) (jsonAvailable bool, err error) {
	fileBytes, err := SafeReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(fileBytes) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(fileBytes, targetPointer)
}

// SafeReadYAML reads the YAML file at the path into the targetPointer.
// Unknown fields are rejected.
func SafeReadYAML(filePath string, targetPointer any) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("unable to open file: %s, %w", filePath, err)
	}
	defer funcutils.PanicOrLogOnErr(f.Close, false, "failed to close file")
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(targetPointer); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("unable to decode file: %s, %w", filePath, err)
	}
	return nil
}

// SafeReadFile reads the file at the provided path into a byte slice.
func SafeReadFile(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %s, %w", filePath, err)
	}

	bytes, readErr := io.ReadAll(file)
	if err = file.Close(); err != nil {
		logrus.Errorf("Failed to close file: %s", filePath)
	}
	return bytes, readErr
}

// WriteFileAtomic writes data to a temporary file next to filePath and moves it into place.
// Readers either see the old or the new content, never a partial file.
func WriteFileAtomic(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	fp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := fp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()
	if err = fp.Chmod(perm); err != nil {
		_ = fp.Close()
		return err
	}
	w := writerutils.NewSafeFileWriter(fp)
	if _, err = w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	if err = ReplaceFile(tmpPath, filePath); err != nil {
		return err
	}
	return syncDir(dir)
}

// SafeWriteJson writes the provided object to a JSON file at the provided path.
// The function makes sure any changes are flushed to the disk before returning.
func SafeWriteJson[T any](filePath string, targetPointer *T) error {
	data, err := json.MarshalIndent(targetPointer, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(filePath, append(data, '\n'), 0o600)
}

func ExistsAndIsDirectory(path string) (exists, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	return errors.Join(d.Sync(), d.Close())
}
