package updater

import (
	"errors"

	"github.com/unbasical/slotupdate/pkg/client/updater/installer"
	"github.com/unbasical/slotupdate/pkg/client/updater/source"
	"github.com/unbasical/slotupdate/pkg/client/updater/validator"
	"github.com/unbasical/slotupdate/pkg/client/updater/verifier"
	"github.com/unbasical/slotupdate/pkg/client/updater/versions"
	"github.com/unbasical/slotupdate/pkg/efivar"
	"github.com/unbasical/slotupdate/pkg/slotctrl"
)

type clientOpts struct {
	WorkspaceDirectory string
	SkipVersionAsserts bool
	Recovery           bool
	SizeLimit          uint64
	Release            string
	Platform           slotctrl.Platform
}

// NewClient creates an update client operating on the records in store and
// reading component payloads from src.
func NewClient(store efivar.Store, src source.Source, options ...func(*Client)) (*Client, error) {
	if store == nil || src == nil {
		return nil, errors.New("update client needs a record store and a content source")
	}
	client := &Client{
		opts: clientOpts{
			WorkspaceDirectory: ".",
		},
		src:      src,
		verifier: verifier.DigestVerifier{},
	}
	for _, option := range options {
		option(client)
	}
	client.slots = slotctrl.New(store, client.opts.Platform)
	if client.installer == nil {
		client.installer = &installer.Dispatcher{
			Raw:     installer.NewRaw(),
			Capsule: installer.NewCapsule(store),
		}
	}
	return client, nil
}

// WithWorkspaceDirectory sets where the last attempted manifest is kept.
func WithWorkspaceDirectory(dir string) func(*Client) {
	return func(c *Client) {
		c.opts.WorkspaceDirectory = dir
	}
}

// WithPlatform selects how slots are marked healthy. Defaults to the simple platform.
func WithPlatform(p slotctrl.Platform) func(*Client) {
	return func(c *Client) {
		c.opts.Platform = p
	}
}

// WithInstaller replaces the default raw/capsule dispatcher.
func WithInstaller(i installer.ComponentInstaller) func(*Client) {
	return func(c *Client) {
		c.installer = i
	}
}

func WithVerifier(v verifier.ContentVerifier) func(*Client) {
	return func(c *Client) {
		c.verifier = v
	}
}

// WithVersions records installed component versions in s.
// The recorded versions of the active slot are also used for version asserts.
func WithVersions(s *versions.Store) func(*Client) {
	return func(c *Client) {
		c.versions = s
	}
}

func WithSkipVersionAsserts(skip bool) func(*Client) {
	return func(c *Client) {
		c.opts.SkipVersionAsserts = skip
	}
}

// WithRecovery installs only components of the recovery installation phase.
func WithRecovery(recovery bool) func(*Client) {
	return func(c *Client) {
		c.opts.Recovery = recovery
	}
}

// WithSizeLimit rejects manifests whose components add up to more than limit bytes.
// Zero disables the check.
func WithSizeLimit(limit uint64) func(*Client) {
	return func(c *Client) {
		c.opts.SizeLimit = limit
	}
}

// WithRelease names the release being installed, it is stored with the versions.
func WithRelease(release string) func(*Client) {
	return func(c *Client) {
		c.opts.Release = release
	}
}

// WithValidators adds checks that run on the manifest before anything is installed.
func WithValidators(v ...validator.ManifestValidator) func(*Client) {
	return func(c *Client) {
		c.validators = append(c.validators, v...)
	}
}
