package packument

import (
	"context"
	"fmt"

	"github.com/git-pkgs/purl"
)

// FetchMetadataFromPURL fetches normalized package metadata using a Package
// URL (e.g. pkg:npm/@babel/core). The PURL's version, if any, is ignored;
// metadata always covers the whole package.
func FetchMetadataFromPURL(ctx context.Context, purlStr string, logger Logger, o Options) (*Metadata, error) {
	name, _, err := npmNameFromPURL(purlStr)
	if err != nil {
		return nil, err
	}
	return defaultService.FetchPackageMetadata(ctx, name, logger, o)
}

// FetchManifestFromPURL fetches the normalized manifest a Package URL
// resolves to (e.g. pkg:npm/@babel/core@7.24.0). Without a version the
// latest tag is fetched.
func FetchManifestFromPURL(ctx context.Context, purlStr string, logger Logger, o Options) (*Manifest, error) {
	name, version, err := npmNameFromPURL(purlStr)
	if err != nil {
		return nil, err
	}
	spec := name
	if version != "" {
		spec = name + "@" + version
	}
	return defaultService.FetchPackageManifest(ctx, spec, logger, o)
}

// npmNameFromPURL parses a PURL and returns the registry-form package name
// ("@babel/core") and version. Only npm PURLs are accepted.
func npmNameFromPURL(purlStr string) (name, version string, err error) {
	p, err := purl.Parse(purlStr)
	if err != nil {
		return "", "", err
	}
	if p.Type != "npm" {
		return "", "", fmt.Errorf("unsupported purl type: %s", p.Type)
	}
	name = p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + p.Name
	}
	return name, p.Version, nil
}
