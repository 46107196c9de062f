package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
)

// DigestSuffix names the optional sidecar file holding a payload's SHA-256 digest.
const DigestSuffix = ".sha256"

// DirSource serves payloads stored as plain files named after their component.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (d *DirSource) Open(_ context.Context, name string) (*Content, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || name == ".." {
		return nil, fmt.Errorf("%w: invalid name %q", ErrComponentNotFound, name)
	}
	p := filepath.Join(d.root, name)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, name)
		}
		return nil, err
	}
	declared, err := readSidecar(p + DigestSuffix)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	log.Debugf("opened %s from %s", name, d.root)
	return &Content{ReadSeekCloser: f, Declared: declared}, nil
}

// readSidecar parses "<hex>" or "<hex>  <filename>" as written by sha256sum.
func readSidecar(p string) (digest.Digest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", nil
	}
	d := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(fields[0]))
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest in %s: %w", p, err)
	}
	return d, nil
}
