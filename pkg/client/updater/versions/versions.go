// Package versions records which component versions are installed in which slot.
package versions

import (
	"maps"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/pkg/client/updater/statemanager"
	"github.com/unbasical/slotupdate/pkg/slot"
)

// Releases names the release installed in each slot.
type Releases struct {
	SlotA string `json:"slot_a"`
	SlotB string `json:"slot_b"`
}

// Versions maps component names to versions, per slot for redundant components
// and once for singles.
type Versions struct {
	Releases Releases          `json:"releases"`
	SlotA    map[string]string `json:"slot_a"`
	SlotB    map[string]string `json:"slot_b"`
	Singles  map[string]string `json:"singles"`
}

func Empty() Versions {
	return Versions{
		SlotA:   map[string]string{},
		SlotB:   map[string]string{},
		Singles: map[string]string{},
	}
}

func (v *Versions) group(s slot.Slot) map[string]string {
	var g *map[string]string
	if s == slot.B {
		g = &v.SlotB
	} else {
		g = &v.SlotA
	}
	if *g == nil {
		*g = map[string]string{}
	}
	return *g
}

// SetComponent records the version of a component installed into slot s.
func (v *Versions) SetComponent(s slot.Slot, name, version string, redundant bool) {
	if redundant {
		v.group(s)[name] = version
		return
	}
	if v.Singles == nil {
		v.Singles = map[string]string{}
	}
	v.Singles[name] = version
}

// Component returns the version of name as seen from slot s.
func (v *Versions) Component(s slot.Slot, name string) (string, bool) {
	if version, ok := v.group(s)[name]; ok {
		return version, true
	}
	version, ok := v.Singles[name]
	return version, ok
}

// Collect returns the versions visible when booted from slot s.
func (v *Versions) Collect(s slot.Slot) map[string]string {
	out := make(map[string]string, len(v.group(s))+len(v.Singles))
	maps.Copy(out, v.Singles)
	maps.Copy(out, v.group(s))
	return out
}

func (v *Versions) SetRelease(s slot.Slot, release string) {
	if s == slot.B {
		v.Releases.SlotB = release
	} else {
		v.Releases.SlotA = release
	}
}

func (v *Versions) Release(s slot.Slot) string {
	if s == slot.B {
		return v.Releases.SlotB
	}
	return v.Releases.SlotA
}

// Store persists Versions in a JSON file.
type Store struct {
	m *statemanager.Manager[Versions]
}

// Open loads the versions file at path, starting empty if it does not exist.
func Open(path string) (*Store, error) {
	m, err := statemanager.NewFromDisk(Empty(), path)
	if err != nil {
		return nil, err
	}
	return &Store{m: m}, nil
}

func (s *Store) Load() (Versions, error) {
	v, err := s.m.Load()
	if err != nil {
		return Versions{}, err
	}
	return *v, nil
}

// Update applies cb to the persisted versions.
func (s *Store) Update(cb func(v *Versions)) error {
	return s.m.ModifyState(func(v *Versions) error {
		cb(v)
		return nil
	})
}

// LogVersions prints the versions of slot s, reading failures are only logged.
func (s *Store) LogVersions(sl slot.Slot) {
	v, err := s.Load()
	if err != nil {
		log.WithError(err).Warn("failed to read versions")
		return
	}
	log.WithField("release", v.Release(sl)).Infof("versions of slot %s: %v", sl, v.Collect(sl))
}
