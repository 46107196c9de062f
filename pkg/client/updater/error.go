package updater

import (
	"errors"
	"fmt"
)

// UpdaterError pairs the stage that failed (kind) with what went wrong (cause).
// errors.Is matches both.
type UpdaterError struct {
	cause error
	kind  error
}

func (u UpdaterError) Error() string {
	if u.cause == nil {
		return u.kind.Error()
	}
	return fmt.Sprintf("%s: %s", u.kind.Error(), u.cause.Error())
}

func (u UpdaterError) Unwrap() []error {
	if u.cause == nil {
		return []error{u.kind}
	}
	return []error{u.kind, u.cause}
}

func (u UpdaterError) Kind() error {
	return u.kind
}

func NewUpdaterError(kind error, cause error) error {
	return UpdaterError{
		cause: cause,
		kind:  kind,
	}
}

var (
	ErrInvalidManifest     = errors.New("invalid manifest")
	ErrManifestReconcile   = errors.New("failed to reconcile manifest")
	ErrFailedChecks        = errors.New("failed checks")
	ErrFetchFailed         = errors.New("failed to open component content")
	ErrFailedToApplyUpdate = errors.New("failed to apply update")
	ErrVersionsFailed      = errors.New("failed to record versions")
	ErrSlotStateFailed     = errors.New("failed to update slot state")
)
