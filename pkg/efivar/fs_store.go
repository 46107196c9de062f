package efivar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultDir is where efivarfs is mounted.
const DefaultDir = "/sys/firmware/efi/efivars"

// FSStore is a Store backed by a directory of variable files, usually efivarfs.
type FSStore struct {
	dir       string
	protector Protector
}

// WithProtector overrides the protection mechanism, e.g. NopProtector for plain directories.
func WithProtector(p Protector) func(*FSStore) {
	return func(s *FSStore) {
		s.protector = p
	}
}

// NewFSStore opens the variable directory dir.
func NewFSStore(dir string, options ...func(*FSStore)) (*FSStore, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve efi variable directory %q: %w", dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("efi variable path %q is not a directory", resolved)
	}
	s := &FSStore{
		dir:       resolved,
		protector: defaultProtector(),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Dir returns the resolved variable directory.
func (s *FSStore) Dir() string {
	return s.dir
}

func (s *FSStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

func notFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

func (s *FSStore) ReadFixedLen(name string, expectedLen int) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(p)
	if err != nil {
		return nil, notFound(name, err)
	}
	if err := checkLen(name, buf, expectedLen); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *FSStore) Write(name string, buf []byte) (err error) {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	guard, err := os.Open(p)
	if err != nil {
		return newWriteError(name, StepOpen, notFound(name, err))
	}
	defer guard.Close()

	attrs, err := s.protector.Attributes(guard)
	if err != nil {
		return newWriteError(name, StepGetAttributes, err)
	}
	if err := s.protector.SetAttributes(guard, s.protector.Unprotected(attrs)); err != nil {
		return newWriteError(name, StepUnprotect, err)
	}
	restore := func(werr *WriteError) error {
		if rerr := s.protector.SetAttributes(guard, attrs); rerr != nil {
			log.WithError(rerr).Warnf("failed to restore write protection of %s", name)
			return errors.Join(werr, newWriteError(name, StepProtect, rerr))
		}
		werr.Restored = true
		return werr
	}

	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if err != nil {
		return restore(newWriteError(name, StepWrite, err))
	}
	// efivarfs expects the whole record in a single write call.
	n, err := f.Write(buf)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(buf))
	}
	if err != nil {
		_ = f.Close()
		return restore(newWriteError(name, StepWrite, err))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return restore(newWriteError(name, StepFlush, err))
	}
	if err := f.Close(); err != nil {
		return restore(newWriteError(name, StepFlush, err))
	}
	if err := s.protector.SetAttributes(guard, attrs); err != nil {
		return newWriteError(name, StepProtect, err)
	}
	log.Debugf("wrote efi variable %s", name)
	return nil
}

func (s *FSStore) CreateAndWrite(name string, buf []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		return newWriteError(name, StepCreate, err)
	}
	n, err := f.Write(buf)
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(buf))
	}
	if err != nil {
		_ = f.Close()
		return newWriteError(name, StepWrite, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return newWriteError(name, StepFlush, err)
	}
	if err := f.Close(); err != nil {
		return newWriteError(name, StepFlush, err)
	}
	log.Debugf("created efi variable %s", name)
	return nil
}

func (s *FSStore) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return notFound(name, err)
	}
	attrs, err := s.protector.Attributes(f)
	if err == nil {
		err = s.protector.SetAttributes(f, s.protector.Unprotected(attrs))
	}
	_ = f.Close()
	if err != nil {
		return newWriteError(name, StepUnprotect, err)
	}
	if err := os.Remove(p); err != nil {
		return newWriteError(name, StepRemove, notFound(name, err))
	}
	log.Debugf("removed efi variable %s", name)
	return nil
}
