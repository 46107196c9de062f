// Package source supplies component payloads to the installers.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/opencontainers/go-digest"
)

var ErrComponentNotFound = errors.New("component not found in source")

// Content is a seekable payload and the digest its source declares for it, if any.
type Content struct {
	io.ReadSeekCloser
	Declared digest.Digest
}

// Size returns the payload length and rewinds the stream.
func (c *Content) Size() (int64, error) {
	n, err := c.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := c.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return n, nil
}

// Source resolves component names to payloads.
type Source interface {
	Open(ctx context.Context, name string) (*Content, error)
}

// spool copies r into an anonymous temporary file so it can be seeked.
func spool(r io.Reader) (io.ReadSeekCloser, error) {
	f, err := os.CreateTemp("", "slotupdate-spool-*")
	if err != nil {
		return nil, err
	}
	// unlinked right away, the open descriptor keeps the data alive
	if err := os.Remove(f.Name()); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to spool content: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}
