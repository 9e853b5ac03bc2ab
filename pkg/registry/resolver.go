// Package registry resolves image references against an OCI registry so a
// rollout never starts against an image that does not exist.
package registry

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
)

// Injection point for tests.
var newRemoteRepository = func(ref string) (*remote.Repository, error) {
	return remote.NewRepository(ref)
}

// Resolver checks an image reference against its registry and returns the
// manifest digest it resolves to.
type Resolver struct {
	// PlainHTTPHosts lists registry hosts (without port) allowed to be
	// reached over plain HTTP, typically local test registries.
	PlainHTTPHosts []string
}

// Resolve parses ref, contacts the registry and returns the canonical
// manifest digest. A reference already pinned by digest is validated and
// still resolved so a missing manifest is caught before rollout.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := registry.ParseReference(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid image ref %q: %w", ref, err)
	}
	if parsed.Reference == "" {
		return "", fmt.Errorf("image ref %q has no tag or digest", ref)
	}
	if strings.Contains(parsed.Reference, ":") {
		if _, err := digest.Parse(parsed.Reference); err != nil {
			return "", fmt.Errorf("image ref %q: %w", ref, err)
		}
	}

	repo, err := newRemoteRepository(fmt.Sprintf("%s/%s", parsed.Registry, parsed.Repository))
	if err != nil {
		return "", err
	}
	repo.PlainHTTP = r.allowPlainHTTP(parsed.Registry)

	var desc ocispec.Descriptor
	desc, err = repo.Resolve(ctx, parsed.Reference)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return desc.Digest.String(), nil
}

func (r *Resolver) allowPlainHTTP(reg string) bool {
	hostOnly := reg
	if h, _, err := net.SplitHostPort(reg); err == nil {
		hostOnly = h
	}
	hostOnly = strings.ToLower(hostOnly)
	for _, h := range r.PlainHTTPHosts {
		if strings.ToLower(strings.TrimSpace(h)) == hostOnly {
			return true
		}
	}
	return false
}
