// Package rc discovers and merges npm- and yarn-style configuration files
// into a single options map for the registry client.
package rc

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/git-pkgs/packument/internal/core"
)

// Mode selects which package manager's configuration files to resolve.
type Mode string

const (
	Npm  Mode = "npm"
	Yarn Mode = "yarn"
)

// Options maps normalized option names to values. Values are strings, int64
// or bool depending on how the source file spelled them.
type Options map[string]any

// Merge returns a copy of o with overlay's keys written on top.
func (o Options) Merge(overlay Options) Options {
	merged := make(Options, len(o)+len(overlay))
	for k, v := range o {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Resolver locates configuration files in the global tier (environment
// overrides or computed defaults) and the project tier (the working
// directory and its ancestors) and folds them into an Options map.
// All inputs are injectable for tests; zero-value fields fall back to the
// process environment.
type Resolver struct {
	env      func(string) string
	home     string
	cwd      string
	execPath string
	goos     string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnv replaces the environment lookup used for overrides and for
// ${NAME} substitution inside values.
func WithEnv(fn func(string) string) ResolverOption {
	return func(r *Resolver) { r.env = fn }
}

// WithHomeDir sets the directory searched for the per-user rc file.
func WithHomeDir(dir string) ResolverOption {
	return func(r *Resolver) { r.home = dir }
}

// WithWorkingDir sets the directory whose ancestor chain forms the project
// tier.
func WithWorkingDir(dir string) ResolverOption {
	return func(r *Resolver) { r.cwd = dir }
}

// WithExecPath sets the executable path the install prefix is derived from.
func WithExecPath(path string) ResolverOption {
	return func(r *Resolver) { r.execPath = path }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		env:  os.Getenv,
		goos: runtime.GOOS,
	}
	if home, err := os.UserHomeDir(); err == nil {
		r.home = home
	}
	if cwd, err := os.Getwd(); err == nil {
		r.cwd = cwd
	}
	if exe, err := os.Executable(); err == nil {
		r.execPath = exe
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reads every candidate configuration file for mode in deterministic
// order (global tier first, then project files outermost ancestor to working
// directory) and folds their normalized key/value pairs together,
// last writer wins. Files that are absent or unparseable contribute nothing;
// resolution itself never fails.
func (r *Resolver) Resolve(mode Mode, logger core.Logger, verbose bool) Options {
	opts := Options{}
	for _, path := range r.candidates(mode) {
		entries, ok := loadFile(mode, path)
		if !ok {
			continue
		}
		if verbose && logger != nil {
			logger.Info("using configuration file", "path", path)
		}
		dir := filepath.Dir(path)
		for _, e := range entries {
			key, value, keep := r.normalize(dir, e.key, e.value)
			if keep {
				opts[key] = value
			}
		}
	}
	return opts
}

// candidates returns every path Resolve will consider, in merge order.
func (r *Resolver) candidates(mode Mode) []string {
	base := "npmrc"
	if mode == Yarn {
		base = "yarnrc"
	}

	var paths []string
	appendRC := func(p string) {
		paths = append(paths, p)
		if mode == Yarn {
			// Yarn berry keeps its configuration next to the classic file.
			paths = append(paths, p+".yml")
		}
	}

	// Global tier. Environment overrides apply to npm only; yarn always uses
	// the computed locations.
	if global := r.env("NPM_CONFIG_GLOBALCONFIG"); mode == Npm && global != "" {
		appendRC(global)
	} else {
		appendRC(filepath.Join(r.prefix(), "etc", base))
	}
	if user := r.env("NPM_CONFIG_USERCONFIG"); mode == Npm && user != "" {
		appendRC(user)
	} else {
		appendRC(filepath.Join(r.home, "."+base))
	}

	// Project tier, outermost ancestor first so inner directories override.
	for _, dir := range ancestors(r.cwd) {
		appendRC(filepath.Join(dir, "."+base))
	}
	return paths
}

// prefix returns the install prefix the global rc file lives under: the
// PREFIX environment variable when set, otherwise the executable's
// directory, stripped one extra level on non-Windows platforms.
func (r *Resolver) prefix() string {
	if p := r.env("PREFIX"); p != "" {
		return p
	}
	dir := filepath.Dir(r.execPath)
	if r.goos != "windows" {
		dir = filepath.Dir(dir)
	}
	return dir
}

// ancestors returns dir and every parent up to, but not including, the
// filesystem root, ordered outermost first.
func ancestors(dir string) []string {
	if dir == "" {
		return nil
	}
	var chain []string
	for d := filepath.Clean(dir); ; {
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		chain = append([]string{d}, chain...)
		d = parent
	}
	return chain
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv rewrites ${NAME} references with the value of NAME, empty when
// unset. Only the first occurrence of each distinct reference is rewritten.
func (r *Resolver) expandEnv(value string) string {
	seen := map[string]struct{}{}
	for _, match := range envPattern.FindAllString(value, -1) {
		if _, done := seen[match]; done {
			continue
		}
		seen[match] = struct{}{}
		name := match[2 : len(match)-1]
		value = strings.Replace(value, match, r.env(name), 1)
	}
	return value
}

// normalize substitutes environment references in textual values and maps
// raw config keys to their canonical names. cafile is resolved relative to
// the rc file's directory and loaded into the ca option; an unreadable
// certificate file drops the entry. Unrecognized keys pass through.
func (r *Resolver) normalize(dir, key string, value any) (string, any, bool) {
	if s, ok := value.(string); ok {
		value = r.expandEnv(s)
	}

	switch key {
	case "noproxy", "no-proxy":
		return "noProxy", value, true
	case "maxsockets":
		return "maxSockets", value, true
	case "https-proxy", "proxy":
		return "proxy", value, true
	case "strict-ssl":
		return "strictSSL", value, true
	case "local-address":
		return "localAddress", value, true
	case "_authtoken":
		// The ini parser lowercases keys; restore the canonical spelling.
		return "_authToken", value, true
	case "cafile":
		path, ok := value.(string)
		if !ok || path == "" {
			return "", nil, false
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			return "", nil, false
		}
		return "ca", strings.ReplaceAll(string(pem), "\r\n", "\n"), true
	default:
		return key, value, true
	}
}

// loadFile reads and parses one candidate file. The second return is false
// when the file is absent or cannot be parsed; both cases contribute
// nothing to the merge.
func loadFile(mode Mode, path string) ([]entry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entries []entry
	switch {
	case strings.HasSuffix(path, ".yml"):
		entries, err = parseYAML(data)
	case mode == Yarn:
		entries, err = parseYarn(data)
	default:
		entries, err = parseIni(data)
	}
	if err != nil {
		return nil, false
	}
	return entries, true
}
