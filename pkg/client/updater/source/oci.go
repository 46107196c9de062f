package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/oci"
)

// OCISource serves payloads from the layers of a tagged image in an OCI layout.
// Each component is the layer whose title annotation equals its name.
type OCISource struct {
	store *oci.ReadOnlyStore
	ref   string
}

// NewOCISource opens the OCI layout at root and uses the manifest tagged ref.
func NewOCISource(ctx context.Context, root, ref string) (*OCISource, error) {
	store, err := oci.NewFromFS(ctx, os.DirFS(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open oci layout %s: %w", root, err)
	}
	return &OCISource{store: store, ref: ref}, nil
}

func (o *OCISource) layers(ctx context.Context) ([]ocispec.Descriptor, error) {
	desc, err := o.store.Resolve(ctx, o.ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", o.ref, err)
	}
	data, err := content.FetchAll(ctx, o.store, desc)
	if err != nil {
		return nil, err
	}
	var mf ocispec.Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to decode manifest of %s: %w", o.ref, err)
	}
	return mf.Layers, nil
}

func (o *OCISource) Open(ctx context.Context, name string) (*Content, error) {
	layers, err := o.layers(ctx)
	if err != nil {
		return nil, err
	}
	desc, ok := lo.Find(layers, func(d ocispec.Descriptor) bool {
		return d.Annotations[ocispec.AnnotationTitle] == name
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrComponentNotFound, name, o.ref)
	}
	rc, err := o.store.Fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	if rsc, ok := rc.(io.ReadSeekCloser); ok {
		return &Content{ReadSeekCloser: rsc, Declared: desc.Digest}, nil
	}
	defer rc.Close()
	rsc, err := spool(io.LimitReader(rc, desc.Size))
	if err != nil {
		return nil, err
	}
	log.Debugf("spooled layer %s of %s", desc.Digest, o.ref)
	return &Content{ReadSeekCloser: rsc, Declared: desc.Digest}, nil
}
