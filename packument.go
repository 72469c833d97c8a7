// Package packument resolves npm/yarn registry configuration and fetches
// package metadata from npm-compatible registries.
//
// Configuration is discovered from the global tier (environment overrides or
// the install prefix and home directory) and from the working directory's
// ancestor chain, merged with later files overriding earlier ones, and
// memoized for the Service lifetime. Resolved options drive the registry
// client: proxy, TLS strictness, CA bundle, local address, socket limits and
// auth tokens.
//
// Basic usage:
//
//	svc := packument.NewService()
//
//	md, err := svc.FetchPackageMetadata(ctx, "react", nil, packument.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(md.Tags["latest"].Version)
//
// GetPackument is the forgiving variant: it caches results per name for the
// Service lifetime, collapses concurrent fetches for the same name into one
// request, and substitutes a minimal placeholder on failure instead of
// returning an error.
package packument

import (
	"context"
	"encoding/json"

	"github.com/git-pkgs/packument/client"
	"github.com/git-pkgs/packument/internal/core"
)

// Re-export types from internal/core
type (
	// Manifest is one resolved version of a package with its four
	// dependency maps always present.
	Manifest = core.Manifest

	// Metadata is a package's normalized registry record: dist-tags and
	// versions resolved to manifests.
	Metadata = core.Metadata

	// Packument is the raw registry record for a package.
	Packument = core.Packument

	// Dist describes the tarball of a published version.
	Dist = core.Dist

	// Logger is the leveled diagnostic sink accepted by all operations.
	Logger = core.Logger
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic for registry APIs.
	Client = client.Client

	// ClientOption configures a Client.
	ClientOption = client.Option

	// TransportConfig carries connection options for a Client transport.
	TransportConfig = client.TransportConfig
)

// Re-export errors
var (
	ErrNotFound     = client.ErrNotFound
	ErrUpstreamDown = client.ErrUpstreamDown
)

// Error types
type (
	HTTPError      = client.HTTPError
	NotFoundError  = client.NotFoundError
	RateLimitError = client.RateLimitError
)

// NormalizeManifest converts a raw registry manifest into a Manifest with
// all four dependency maps present.
func NormalizeManifest(raw json.RawMessage) (*Manifest, error) {
	return core.NormalizeManifest(raw)
}

var defaultService = NewService()

// FetchPackageMetadata fetches and normalizes a package's registry record
// using the process-wide default Service.
func FetchPackageMetadata(ctx context.Context, name string, logger Logger, o Options) (*Metadata, error) {
	return defaultService.FetchPackageMetadata(ctx, name, logger, o)
}

// FetchPackageManifest fetches and normalizes a single manifest using the
// process-wide default Service.
func FetchPackageManifest(ctx context.Context, spec string, logger Logger, o Options) (*Manifest, error) {
	return defaultService.FetchPackageManifest(ctx, spec, logger, o)
}

// GetPackument returns the cached-or-fetched packument for name using the
// process-wide default Service. It never fails; see Service.GetPackument.
func GetPackument(ctx context.Context, name string, logger Logger, o Options) *Packument {
	return defaultService.GetPackument(ctx, name, logger, o)
}

// BulkGetPackuments fetches packuments for multiple names in parallel using
// the process-wide default Service.
func BulkGetPackuments(ctx context.Context, names []string, logger Logger, o Options) map[string]*Packument {
	return defaultService.BulkGetPackuments(ctx, names, logger, o)
}
