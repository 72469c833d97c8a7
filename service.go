package packument

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/packument/client"
	"github.com/git-pkgs/packument/internal/core"
	"github.com/git-pkgs/packument/internal/npm"
	"github.com/git-pkgs/packument/internal/rc"
)

// Options controls a single facade operation.
type Options struct {
	// Registry overrides the registry URL from the resolved configuration.
	Registry string
	// UsingYarn merges yarn configuration on top of npm configuration.
	UsingYarn bool
	// Verbose enables diagnostic logging for recoverable conditions.
	Verbose bool
}

// Service resolves registry configuration once, builds clients from it, and
// exposes the metadata, manifest and cached packument operations.
// Configuration is read lazily on the first operation and reused for the
// Service lifetime, even if the files change on disk afterwards.
type Service struct {
	resolver   *rc.Resolver
	clientOpts []client.Option
	useBreaker bool

	flight     singleflight.Group
	mu         sync.Mutex
	resolved   map[rc.Mode]rc.Options
	registries map[string]*npm.Registry
	cache      *core.Cache
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithResolver replaces the configuration file resolver.
func WithResolver(r *rc.Resolver) ServiceOption {
	return func(s *Service) { s.resolver = r }
}

// WithClientOptions appends options applied to every registry client the
// service builds.
func WithClientOptions(opts ...client.Option) ServiceOption {
	return func(s *Service) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithCircuitBreaker wraps registry clients with per-host circuit breakers.
func WithCircuitBreaker() ServiceOption {
	return func(s *Service) { s.useBreaker = true }
}

func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		resolver:   rc.NewResolver(),
		resolved:   make(map[rc.Mode]rc.Options),
		registries: make(map[string]*npm.Registry),
		cache:      core.NewCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPackageMetadata fetches a package's registry record and normalizes
// it: every version manifest gains the four dependency maps and each
// dist-tag is resolved against the version map, dropping tags that name a
// missing version (with a warning when verbose). Fetch failures are
// returned to the caller; there is no fallback.
func (s *Service) FetchPackageMetadata(ctx context.Context, name string, logger Logger, o Options) (*core.Metadata, error) {
	logger = orDefault(logger)
	reg := s.registryFor(logger, o)
	p, err := reg.FetchPackument(ctx, name)
	if err != nil {
		return nil, err
	}
	return core.BuildMetadata(p, logger, o.Verbose), nil
}

// FetchPackageManifest fetches the single manifest a specifier
// ("name" or "name@version-or-tag") resolves to and normalizes it.
// Fetch failures are returned to the caller; there is no fallback.
func (s *Service) FetchPackageManifest(ctx context.Context, spec string, logger Logger, o Options) (*core.Manifest, error) {
	logger = orDefault(logger)
	reg := s.registryFor(logger, o)
	raw, err := reg.FetchManifest(ctx, spec)
	if err != nil {
		return nil, err
	}
	return core.NormalizeManifest(raw)
}

// GetPackument returns the raw packument for name, fetching it at most once
// per Service. A fetch failure is logged and replaced with a minimal
// placeholder carrying only the requested name; the placeholder is cached
// like a success, so the operation never fails and never refetches.
func (s *Service) GetPackument(ctx context.Context, name string, logger Logger, o Options) *core.Packument {
	lg := orDefault(logger)
	return s.cache.Fetch(name, func() *core.Packument {
		reg := s.registryFor(lg, o)
		p, err := reg.FetchPackument(ctx, name)
		if err != nil {
			lg.Warn("failed to fetch packument", "package", name, "err", err)
			return &core.Packument{Name: name}
		}
		return p
	})
}

const defaultConcurrency = 15

// BulkGetPackuments fetches packuments for multiple names in parallel via
// the cached packument operation. It never fails; names that could not be
// fetched map to their fallback placeholder.
func (s *Service) BulkGetPackuments(ctx context.Context, names []string, logger Logger, o Options) map[string]*core.Packument {
	return s.BulkGetPackumentsWithConcurrency(ctx, names, logger, o, defaultConcurrency)
}

// BulkGetPackumentsWithConcurrency fetches packuments with a custom
// concurrency limit.
func (s *Service) BulkGetPackumentsWithConcurrency(ctx context.Context, names []string, logger Logger, o Options, concurrency int) map[string]*core.Packument {
	results := make(map[string]*core.Packument)
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			p := s.GetPackument(ctx, n, logger, o)
			mu.Lock()
			results[n] = p
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	return results
}

// ResetCache drops all cached packuments. The reference behavior keeps
// entries for the process lifetime; this is the escape hatch for embedders
// that outlive a registry outage.
func (s *Service) ResetCache() {
	s.cache.Reset()
}

// config resolves the options for one mode exactly once per Service.
// Concurrent first callers share a single resolution; disk is not re-read
// afterwards.
func (s *Service) config(mode rc.Mode, logger Logger, verbose bool) rc.Options {
	v, _, _ := s.flight.Do("rc:"+string(mode), func() (any, error) {
		s.mu.Lock()
		cached, ok := s.resolved[mode]
		s.mu.Unlock()
		if ok {
			return cached, nil
		}

		opts := s.resolver.Resolve(mode, logger, verbose)

		s.mu.Lock()
		s.resolved[mode] = opts
		s.mu.Unlock()
		return opts, nil
	})
	return v.(rc.Options)
}

// resolveOptions merges npm configuration, yarn configuration when
// requested, and the per-call registry override, in that precedence order.
func (s *Service) resolveOptions(logger Logger, o Options) rc.Options {
	merged := s.config(rc.Npm, logger, o.Verbose).Merge(nil)
	if o.UsingYarn {
		merged = merged.Merge(s.config(rc.Yarn, logger, o.Verbose))
	}
	if o.Registry != "" {
		merged["registry"] = o.Registry
	}
	return merged
}

// registryFor returns the registry client for the merged options, building
// and memoizing one per mode and base URL.
func (s *Service) registryFor(logger Logger, o Options) *npm.Registry {
	merged := s.resolveOptions(logger, o)

	base := npm.DefaultRegistry
	if v, ok := stringOption(merged, "registry"); ok && v != "" {
		base = v
	}

	key := fmt.Sprintf("%t|%s", o.UsingYarn, base)
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.registries[key]; ok {
		return reg
	}

	opts := []client.Option{
		client.WithTransport(transportFromOptions(merged)),
	}
	if authFn := authFromOptions(merged); authFn != nil {
		opts = append(opts, client.WithAuthFunc(authFn))
	}
	opts = append(opts, s.clientOpts...)

	var doer npm.Doer = client.NewClient(opts...)
	if s.useBreaker {
		doer = client.NewBreakerClient(doer)
	}

	reg := npm.New(base, doer)
	s.registries[key] = reg
	return reg
}

// transportFromOptions maps the resolved rc options onto the client's
// transport configuration.
func transportFromOptions(o rc.Options) client.TransportConfig {
	cfg := client.TransportConfig{}
	if v, ok := stringOption(o, "proxy"); ok {
		cfg.Proxy = v
	}
	if v, ok := stringOption(o, "noProxy"); ok {
		cfg.NoProxy = v
	}
	if v, ok := boolOption(o, "strictSSL"); ok {
		cfg.StrictSSL = &v
	}
	if v, ok := stringOption(o, "ca"); ok {
		cfg.CA = v
	}
	if v, ok := stringOption(o, "localAddress"); ok {
		cfg.LocalAddress = v
	}
	if v, ok := intOption(o, "maxSockets"); ok {
		cfg.MaxSockets = int(v)
	}
	return cfg
}

// authFromOptions builds the auth header function from rc options:
// _authToken becomes a bearer token, _auth a pre-encoded basic credential.
func authFromOptions(o rc.Options) func(string) (string, string) {
	token, _ := stringOption(o, "_authToken")
	basic, _ := stringOption(o, "_auth")
	if token == "" && basic == "" {
		return nil
	}
	return func(string) (string, string) {
		if token != "" {
			return "Authorization", "Bearer " + token
		}
		return "Authorization", "Basic " + basic
	}
}

func stringOption(o rc.Options, key string) (string, bool) {
	v, ok := o[key].(string)
	return v, ok
}

// boolOption accepts real booleans and their string spellings, which appear
// when a value came through ${NAME} substitution.
func boolOption(o rc.Options, key string) (bool, bool) {
	switch v := o[key].(type) {
	case bool:
		return v, true
	case string:
		if v == "true" || v == "false" {
			return v == "true", true
		}
	}
	return false, false
}

func intOption(o rc.Options, key string) (int64, bool) {
	v, ok := o[key].(int64)
	return v, ok
}

func orDefault(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return log.Default()
}
