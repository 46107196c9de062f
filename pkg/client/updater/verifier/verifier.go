package verifier

import (
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
)

var ErrDigestMismatch = errors.New("digest mismatch")

// MismatchError carries both digests of a failed verification.
type MismatchError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", ErrDigestMismatch, e.Expected, e.Actual)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrDigestMismatch
}

// ContentVerifier ensures update integrity before applying.
type ContentVerifier interface {
	Verify(r io.ReadSeeker, expected digest.Digest) error
}

// DigestVerifier hashes the whole stream and rewinds it afterwards.
type DigestVerifier struct{}

func (DigestVerifier) Verify(r io.ReadSeeker, expected digest.Digest) error {
	if err := expected.Validate(); err != nil {
		return fmt.Errorf("invalid expected digest %q: %w", expected, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	actual, err := expected.Algorithm().FromReader(r)
	if err != nil {
		return fmt.Errorf("failed to hash content: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if actual != expected {
		return &MismatchError{Expected: expected, Actual: actual}
	}
	log.Debugf("verified content against %s", expected)
	return nil
}
