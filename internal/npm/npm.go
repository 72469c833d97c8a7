// Package npm fetches packuments and manifests from an npm-compatible
// registry.
package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/git-pkgs/packument/client"
	"github.com/git-pkgs/packument/internal/core"
)

// DefaultRegistry is used when no registry option is configured.
const DefaultRegistry = "https://registry.npmjs.org"

// Doer performs JSON GET requests. Satisfied by *client.Client and
// *client.BreakerClient.
type Doer interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Registry fetches package records from one registry endpoint. It performs
// no retries of its own beyond what the client does, and surfaces every
// failure to the caller.
type Registry struct {
	baseURL string
	client  Doer
	urls    *URLs
}

func New(baseURL string, c Doer) *Registry {
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	r := &Registry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  c,
	}
	r.urls = &URLs{baseURL: r.baseURL}
	return r
}

func (r *Registry) BaseURL() string {
	return r.baseURL
}

func (r *Registry) URLs() *URLs {
	return r.urls
}

// FetchPackument retrieves the full registry record for a package.
func (r *Registry) FetchPackument(ctx context.Context, name string) (*core.Packument, error) {
	var p core.Packument
	if err := r.client.GetJSON(ctx, r.urls.Packument(name), &p); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &client.NotFoundError{Name: name}
		}
		return nil, err
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// FetchManifest retrieves the raw manifest a specifier resolves to. The
// specifier is a name optionally followed by @version-or-tag; without a
// selector the latest tag is fetched.
func (r *Registry) FetchManifest(ctx context.Context, spec string) (json.RawMessage, error) {
	name, selector := SplitSpecifier(spec)
	if selector == "" {
		selector = "latest"
	}

	var raw json.RawMessage
	if err := r.client.GetJSON(ctx, r.urls.Manifest(name, selector), &raw); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &client.NotFoundError{Name: name, Version: selector}
		}
		return nil, err
	}
	return raw, nil
}

// SplitSpecifier splits "name@selector" into its parts, keeping scoped
// names ("@babel/core") intact when no selector is present.
func SplitSpecifier(spec string) (name, selector string) {
	if i := strings.LastIndex(spec, "@"); i > 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

// URLs constructs registry URLs for a package.
type URLs struct {
	baseURL string
}

func (u *URLs) Packument(name string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, url.PathEscape(name))
}

func (u *URLs) Manifest(name, selector string) string {
	return fmt.Sprintf("%s/%s/%s", u.baseURL, url.PathEscape(name), url.PathEscape(selector))
}

func (u *URLs) Tarball(name, version string) string {
	shortName := name
	if strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		shortName = parts[1]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", u.baseURL, name, shortName, version)
}
