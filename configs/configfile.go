package configs

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/unbasical/slotupdate/internal/pkg/utils/fileutils"
	"github.com/unbasical/slotupdate/pkg/client/updater/installer"
	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

const (
	SourceKindDir = "dir"
	SourceKindOCI = "oci"

	DefaultVersionsFile = "/usr/persistent/versions.json"
	DefaultWorkspace    = "/usr/persistent/slotupdate"
	DefaultManifestName = "manifest.json"
)

var DefaultMCUCommand = []string{"mcu-util", "info"}

var ErrInvalidConfig = errors.New("invalid configuration")

type AgentConfig struct {
	EfivarsDir         string        `yaml:"efivars-dir"`
	Platform           string        `yaml:"platform"`
	Workspace          string        `yaml:"workspace"`
	VersionsFile       string        `yaml:"versions-file"`
	Manifest           string        `yaml:"manifest"`
	Release            string        `yaml:"release"`
	Source             SourceConfig  `yaml:"source"`
	Capsule            CapsuleConfig `yaml:"capsule"`
	SkipVersionAsserts bool          `yaml:"skip-version-asserts"`
	Recovery           bool          `yaml:"recovery"`
	SizeLimit          uint64        `yaml:"size-limit"`
	MetricsTextfile    string        `yaml:"metrics-textfile"`
}

// SourceConfig points at the component payloads.
// Dir sources read files from Path, OCI sources read the image tagged Reference
// from the OCI layout at Path.
type SourceConfig struct {
	Kind         string `yaml:"kind"`
	Path         string `yaml:"path"`
	Reference    string `yaml:"reference"`
	ManifestName string `yaml:"manifest-name"`
}

type CapsuleConfig struct {
	ESPCandidates []string `yaml:"esp-candidates"`
	Path          string   `yaml:"path"`
	MountRoot     string   `yaml:"mount-root"`
}

type VerifierConfig struct {
	EfivarsDir      string       `yaml:"efivars-dir"`
	Platform        string       `yaml:"platform"`
	VersionsFile    string       `yaml:"versions-file"`
	Health          HealthConfig `yaml:"health"`
	MCU             MCUConfig    `yaml:"mcu"`
	RebootCommand   []string     `yaml:"reboot-command"`
	MetricsTextfile string       `yaml:"metrics-textfile"`
}

type HealthConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Commands [][]string    `yaml:"commands"`
}

// MCUConfig configures the microcontroller check. Without expected versions it is skipped.
type MCUConfig struct {
	Command  []string          `yaml:"command"`
	Expected map[string]string `yaml:"expected"`
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		EfivarsDir:   efivar.DefaultDir,
		Platform:     slotctrl.SimplePlatform{}.Name(),
		Workspace:    DefaultWorkspace,
		VersionsFile: DefaultVersionsFile,
		Source: SourceConfig{
			Kind:         SourceKindDir,
			ManifestName: DefaultManifestName,
		},
		Capsule: CapsuleConfig{
			ESPCandidates: slices.Clone(installer.DefaultESPCandidates),
			Path:          installer.CapsulePath,
		},
	}
}

func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		EfivarsDir:   efivar.DefaultDir,
		Platform:     slotctrl.SimplePlatform{}.Name(),
		VersionsFile: DefaultVersionsFile,
		Health: HealthConfig{
			Timeout: 10 * time.Second,
		},
		MCU: MCUConfig{
			Command: slices.Clone(DefaultMCUCommand),
		},
	}
}

func (c *AgentConfig) Validate() error {
	if _, err := slotctrl.PlatformByName(c.Platform); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.EfivarsDir == "" || c.Workspace == "" {
		return fmt.Errorf("%w: efivars-dir and workspace are required", ErrInvalidConfig)
	}
	switch c.Source.Kind {
	case SourceKindDir:
	case SourceKindOCI:
		if c.Source.Reference == "" {
			return fmt.Errorf("%w: oci source needs a reference", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidConfig, c.Source.Kind)
	}
	if c.Source.Path == "" {
		return fmt.Errorf("%w: source path is required", ErrInvalidConfig)
	}
	if c.Manifest == "" && c.Source.ManifestName == "" {
		return fmt.Errorf("%w: either manifest or source manifest-name is required", ErrInvalidConfig)
	}
	return nil
}

func (c *VerifierConfig) Validate() error {
	if _, err := slotctrl.PlatformByName(c.Platform); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.EfivarsDir == "" {
		return fmt.Errorf("%w: efivars-dir is required", ErrInvalidConfig)
	}
	if c.Health.Timeout < 0 {
		return fmt.Errorf("%w: negative health timeout", ErrInvalidConfig)
	}
	for _, cmd := range c.Health.Commands {
		if len(cmd) == 0 {
			return fmt.Errorf("%w: empty health command", ErrInvalidConfig)
		}
	}
	if len(c.MCU.Expected) > 0 && len(c.MCU.Command) == 0 {
		return fmt.Errorf("%w: expected mcu versions need an mcu command", ErrInvalidConfig)
	}
	return nil
}

// LoadAgentConfig reads the agent config at path on top of the defaults.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if path != "" {
		if err := fileutils.SafeReadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadVerifierConfig reads the verifier config at path on top of the defaults.
func LoadVerifierConfig(path string) (*VerifierConfig, error) {
	cfg := DefaultVerifierConfig()
	if path != "" {
		if err := fileutils.SafeReadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
