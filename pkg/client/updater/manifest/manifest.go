// Package manifest describes update manifests and keeps the last one on disk.
package manifest

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/samber/lo"
)

type Kind string

const (
	KindNormal Kind = "normal"
	KindFull   Kind = "full"
)

type InstallationPhase string

const (
	PhaseNormal   InstallationPhase = "normal"
	PhaseRecovery InstallationPhase = "recovery"
)

type Redundancy string

const (
	Single    Redundancy = "single"
	Redundant Redundancy = "redundant"
)

type TargetType string

const (
	TargetRaw     TargetType = "raw"
	TargetCapsule TargetType = "capsule"
)

var (
	ErrMissingMagic        = errors.New("manifest magic is not set")
	ErrDuplicateComponents = errors.New("manifest contains components with duplicate names")
	ErrInvalidComponent    = errors.New("invalid manifest component")
)

// Target says where a component is written to.
// Offset and Size are only meaningful for raw targets.
type Target struct {
	Type       TargetType `json:"type"`
	Device     string     `json:"device,omitempty"`
	Offset     int64      `json:"offset,omitempty"`
	Size       int64      `json:"size,omitempty"`
	Redundancy Redundancy `json:"redundancy"`
}

type Component struct {
	Name              string            `json:"name"`
	VersionAssert     string            `json:"version-assert"`
	Version           string            `json:"version"`
	Size              uint64            `json:"size"`
	Hash              string            `json:"hash"`
	InstallationPhase InstallationPhase `json:"installation_phase"`
	Target            Target            `json:"target"`
}

// Redundant reports whether the component has one physical copy per slot.
func (c Component) Redundant() bool {
	return c.Target.Redundancy == Redundant
}

// Digest returns the expected SHA-256 digest. Hashes are hex encoded with an
// optional "sha256:" prefix.
func (c Component) Digest() (digest.Digest, error) {
	d := digest.Digest(c.Hash)
	if !strings.Contains(c.Hash, ":") {
		d = digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(c.Hash))
	}
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("component %q has invalid hash: %w", c.Name, err)
	}
	if d.Algorithm() != digest.SHA256 {
		return "", fmt.Errorf("component %q: unsupported hash algorithm %s", c.Name, d.Algorithm())
	}
	return d, nil
}

func (c Component) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidComponent)
	}
	if _, err := c.Digest(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidComponent, err)
	}
	switch c.InstallationPhase {
	case PhaseNormal, PhaseRecovery:
	default:
		return fmt.Errorf("%w: %q has unknown installation phase %q", ErrInvalidComponent, c.Name, c.InstallationPhase)
	}
	switch c.Target.Redundancy {
	case Single, Redundant:
	default:
		return fmt.Errorf("%w: %q has unknown redundancy %q", ErrInvalidComponent, c.Name, c.Target.Redundancy)
	}
	switch c.Target.Type {
	case TargetRaw:
		if c.Target.Device == "" {
			return fmt.Errorf("%w: raw component %q has no device", ErrInvalidComponent, c.Name)
		}
		if c.Target.Offset < 0 || c.Target.Size < 0 {
			return fmt.Errorf("%w: raw component %q has negative offset or size", ErrInvalidComponent, c.Name)
		}
		if c.Redundant() && c.Target.Size == 0 {
			return fmt.Errorf("%w: redundant raw component %q needs a size", ErrInvalidComponent, c.Name)
		}
	case TargetCapsule:
	default:
		return fmt.Errorf("%w: %q has unknown target type %q", ErrInvalidComponent, c.Name, c.Target.Type)
	}
	return nil
}

type Manifest struct {
	Magic      string      `json:"magic"`
	Kind       Kind        `json:"type"`
	Components []Component `json:"components"`
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks required fields and rejects duplicate component names.
// Omitted type and installation phases are set to their normal defaults.
func (m *Manifest) Validate() error {
	if m.Magic == "" {
		return ErrMissingMagic
	}
	switch m.Kind {
	case "":
		m.Kind = KindNormal
	case KindNormal, KindFull:
	default:
		return fmt.Errorf("unknown manifest type %q", m.Kind)
	}
	dups := lo.FindDuplicatesBy(m.Components, func(c Component) string { return c.Name })
	if len(dups) > 0 {
		names := lo.Map(dups, func(c Component, _ int) string { return c.Name })
		return fmt.Errorf("%w: [%s]", ErrDuplicateComponents, strings.Join(names, ", "))
	}
	for i := range m.Components {
		if m.Components[i].InstallationPhase == "" {
			m.Components[i].InstallationPhase = PhaseNormal
		}
		if err := m.Components[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

// Component looks up a component by name.
func (m *Manifest) Component(name string) (Component, bool) {
	return lo.Find(m.Components, func(c Component) bool { return c.Name == name })
}

// EquivalentTo compares two manifests ignoring the order of their components.
// Omitted defaults compare equal to their explicit values.
func (m *Manifest) EquivalentTo(other *Manifest) bool {
	if other == nil || m.Magic != other.Magic || kindOrDefault(m.Kind) != kindOrDefault(other.Kind) ||
		len(m.Components) != len(other.Components) {
		return false
	}
	return slices.Equal(sortedComponents(m.Components), sortedComponents(other.Components))
}

func kindOrDefault(k Kind) Kind {
	if k == "" {
		return KindNormal
	}
	return k
}

// StrictlyEqualTo also requires the components to be in the same order.
func (m *Manifest) StrictlyEqualTo(other *Manifest) bool {
	return other != nil && m.Magic == other.Magic && m.Kind == other.Kind && slices.Equal(m.Components, other.Components)
}

func sortedComponents(cs []Component) []Component {
	out := slices.Clone(cs)
	for i := range out {
		if out[i].InstallationPhase == "" {
			out[i].InstallationPhase = PhaseNormal
		}
	}
	slices.SortFunc(out, func(a, b Component) int {
		return cmp.Or(cmp.Compare(a.Hash, b.Hash), cmp.Compare(a.Name, b.Name))
	})
	return out
}
