package manifest

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/internal/pkg/utils/fileutils"
)

// FileName is the name of the persisted manifest inside the workspace directory.
const FileName = "manifest.json"

// Path returns the location of the persisted manifest in dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads and validates the persisted manifest from dir. found is false if there is none.
func Load(dir string) (m *Manifest, found bool, err error) {
	var decoded Manifest
	found, err = fileutils.SafeReadJSON(Path(dir), &decoded)
	if err != nil || !found {
		return nil, false, err
	}
	if err := decoded.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid manifest at %s: %w", Path(dir), err)
	}
	return &decoded, true, nil
}

// CompareAndPersist writes m to dir unless an equivalent manifest is already there.
// Leaving an equivalent file alone keeps its modification time, which marks when this
// exact update was first attempted.
func CompareAndPersist(m *Manifest, dir string) (written bool, err error) {
	p := Path(dir)
	old, found, err := Load(dir)
	switch {
	case err != nil:
		log.WithError(err).Warnf("failed to read on-disk manifest at %s", p)
	case !found:
		log.Debugf("no old manifest found at %s", p)
	case old.EquivalentTo(m):
		log.Info("provided manifest and on-disk manifest match")
		return false, nil
	default:
		log.Info("mismatch between provided and on-disk manifest, overwriting on-disk manifest")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := fileutils.WriteFileAtomic(p, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write manifest to %s: %w", p, err)
	}
	log.Infof("written manifest to %s", p)
	return true, nil
}
