// Package runner wires configuration into the update client and the boot verifier.
package runner

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/configs"
	"github.com/unbasical/slotupdate/internal/pkg/utils/fileutils"
	"github.com/unbasical/slotupdate/pkg/bootverifier"
	"github.com/unbasical/slotupdate/pkg/client/updater"
	"github.com/unbasical/slotupdate/pkg/client/updater/healthchecker"
	"github.com/unbasical/slotupdate/pkg/client/updater/installer"
	"github.com/unbasical/slotupdate/pkg/client/updater/manifest"
	"github.com/unbasical/slotupdate/pkg/client/updater/source"
	"github.com/unbasical/slotupdate/pkg/client/updater/versions"
	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/mcu"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

// NewSource opens the payload source described by cfg.
func NewSource(ctx context.Context, cfg configs.SourceConfig) (source.Source, error) {
	switch cfg.Kind {
	case configs.SourceKindDir:
		return source.NewDirSource(cfg.Path), nil
	case configs.SourceKindOCI:
		src, err := source.NewOCISource(ctx, cfg.Path, cfg.Reference)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", configs.ErrInvalidConfig, cfg.Kind)
	}
}

// LoadManifest reads the manifest file named in cfg, or the manifest shipped with the payloads.
func LoadManifest(ctx context.Context, cfg *configs.AgentConfig, src source.Source) (*manifest.Manifest, error) {
	if cfg.Manifest != "" {
		data, err := fileutils.SafeReadFile(cfg.Manifest)
		if err != nil {
			return nil, err
		}
		return manifest.Parse(data)
	}
	content, err := src.Open(ctx, cfg.Source.ManifestName)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %q: %w", cfg.Source.ManifestName, err)
	}
	defer func() {
		_ = content.Close()
	}()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}

// NewUpdateClient builds an update client operating on store.
func NewUpdateClient(cfg *configs.AgentConfig, store efivar.Store, src source.Source) (*updater.Client, error) {
	platform, err := slotctrl.PlatformByName(cfg.Platform)
	if err != nil {
		return nil, err
	}
	vs, err := versions.Open(cfg.VersionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open versions file: %w", err)
	}
	capsuleOpts := []func(*installer.Capsule){
		installer.WithESPFinder(installer.NewGPTScanner(cfg.Capsule.ESPCandidates)),
		installer.WithCapsulePath(cfg.Capsule.Path),
	}
	if cfg.Capsule.MountRoot != "" {
		capsuleOpts = append(capsuleOpts, installer.WithMountRoot(cfg.Capsule.MountRoot))
	}
	return updater.NewClient(store, src,
		updater.WithPlatform(platform),
		updater.WithWorkspaceDirectory(cfg.Workspace),
		updater.WithVersions(vs),
		updater.WithSkipVersionAsserts(cfg.SkipVersionAsserts),
		updater.WithRecovery(cfg.Recovery),
		updater.WithSizeLimit(cfg.SizeLimit),
		updater.WithRelease(cfg.Release),
		updater.WithInstaller(&installer.Dispatcher{
			Raw:     installer.NewRaw(),
			Capsule: installer.NewCapsule(store, capsuleOpts...),
		}),
	)
}

// RunAgent performs one update attempt as configured.
func RunAgent(ctx context.Context, cfg *configs.AgentConfig, store efivar.Store) error {
	src, err := NewSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	m, err := LoadManifest(ctx, cfg, src)
	if err != nil {
		return err
	}
	log.Infof("loaded manifest with %d components", len(m.Components))
	client, err := NewUpdateClient(cfg, store, src)
	if err != nil {
		return err
	}
	return client.Update(ctx, m)
}

// NewVerifier builds a boot verifier operating on store.
func NewVerifier(cfg *configs.VerifierConfig, store efivar.Store, force bool) (*bootverifier.Verifier, error) {
	platform, err := slotctrl.PlatformByName(cfg.Platform)
	if err != nil {
		return nil, err
	}
	options := []func(*bootverifier.Verifier){
		bootverifier.WithForce(force),
		bootverifier.WithRebooter(bootverifier.CommandRebooter{Command: cfg.RebootCommand}),
	}
	if checks := healthChecks(cfg.Health); len(checks) > 0 {
		options = append(options, bootverifier.WithHealthChecker(checks))
	}
	if len(cfg.MCU.Expected) > 0 {
		options = append(options, bootverifier.WithMCUClassifier(&mcu.CommandClassifier{
			Command:  cfg.MCU.Command,
			Expected: cfg.MCU.Expected,
		}))
	}
	if cfg.VersionsFile != "" {
		vs, err := versions.Open(cfg.VersionsFile)
		if err != nil {
			log.WithError(err).Warn("versions file is unusable, not logging versions")
		} else {
			options = append(options, bootverifier.WithVersions(vs))
		}
	}
	return bootverifier.New(slotctrl.New(store, platform), options...), nil
}

func healthChecks(cfg configs.HealthConfig) healthchecker.Multi {
	var checks healthchecker.Multi
	for _, cmd := range cfg.Commands {
		checks = append(checks, healthchecker.NewShellHealthChecker(cmd))
	}
	if cfg.URL != "" {
		checks = append(checks, healthchecker.NewHTTPHealthChecker(cfg.URL, cfg.Timeout))
	}
	return checks
}
