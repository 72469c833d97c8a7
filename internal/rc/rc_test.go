package rc

import (
	"os"
	"path/filepath"
	"testing"
)

func noEnv(string) string { return "" }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestResolver(t *testing.T, home, cwd string, env func(string) string) *Resolver {
	t.Helper()
	if env == nil {
		env = noEnv
	}
	return NewResolver(
		WithEnv(env),
		WithHomeDir(home),
		WithWorkingDir(cwd),
		WithExecPath(filepath.Join(home, "lib", "bin", "node")),
	)
}

func TestResolveMergeOrder(t *testing.T) {
	home := t.TempDir()
	project := filepath.Join(home, "project")
	sub := filepath.Join(project, "sub")

	// Global tier sets both keys, project files override proxy from the
	// outside in.
	writeFile(t, filepath.Join(home, ".npmrc"), "registry=https://global.example.com\nproxy=http://global:8080\n")
	writeFile(t, filepath.Join(project, ".npmrc"), "proxy=http://outer:8080\n")
	writeFile(t, filepath.Join(sub, ".npmrc"), "proxy=http://inner:8080\n")

	r := newTestResolver(t, home, sub, nil)
	opts := r.Resolve(Npm, nil, false)

	if got := opts["registry"]; got != "https://global.example.com" {
		t.Errorf("registry = %v, want global value", got)
	}
	if got := opts["proxy"]; got != "http://inner:8080" {
		t.Errorf("proxy = %v, want innermost value", got)
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	home := t.TempDir()
	custom := filepath.Join(home, "custom-user-rc")
	writeFile(t, custom, "registry=https://from-userconfig.example.com\n")
	writeFile(t, filepath.Join(home, ".npmrc"), "registry=https://from-home.example.com\n")

	env := func(name string) string {
		if name == "NPM_CONFIG_USERCONFIG" {
			return custom
		}
		return ""
	}

	// The working directory lives outside home so the home rc file is not
	// re-read as a project-tier ancestor.
	r := newTestResolver(t, home, t.TempDir(), env)
	opts := r.Resolve(Npm, nil, false)

	if got := opts["registry"]; got != "https://from-userconfig.example.com" {
		t.Errorf("registry = %v, want userconfig override", got)
	}
}

func TestResolveEnvOverridesIgnoredForYarn(t *testing.T) {
	home := t.TempDir()
	custom := filepath.Join(home, "custom-user-rc")
	writeFile(t, custom, "registry=https://from-userconfig.example.com\n")
	writeFile(t, filepath.Join(home, ".yarnrc"), `registry "https://from-yarn-home.example.com"`+"\n")

	env := func(name string) string {
		if name == "NPM_CONFIG_USERCONFIG" {
			return custom
		}
		return ""
	}

	r := newTestResolver(t, home, filepath.Join(home, "project"), env)
	opts := r.Resolve(Yarn, nil, false)

	if got := opts["registry"]; got != "https://from-yarn-home.example.com" {
		t.Errorf("registry = %v, want yarn home value", got)
	}
}

func TestResolveSkipsMissingAndUnreadable(t *testing.T) {
	home := t.TempDir()
	project := filepath.Join(home, "project")

	// An rc "file" that is actually a directory must be skipped silently.
	if err := os.MkdirAll(filepath.Join(project, ".npmrc"), 0o755); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(project, "sub")
	writeFile(t, filepath.Join(sub, ".npmrc"), "registry=https://ok.example.com\n")

	r := newTestResolver(t, home, sub, nil)
	opts := r.Resolve(Npm, nil, false)

	if got := opts["registry"]; got != "https://ok.example.com" {
		t.Errorf("registry = %v, want value from readable file", got)
	}
}

func TestEnvSubstitution(t *testing.T) {
	env := func(name string) string {
		if name == "HOST" {
			return "example.com"
		}
		return ""
	}
	r := NewResolver(WithEnv(env))

	tests := []struct {
		in   string
		want string
	}{
		{"http://${HOST}/x", "http://example.com/x"},
		{"http://${UNSET}/x", "http:///x"},
		{"no pattern here", "no pattern here"},
		{"${HOST} and ${HOST}", "example.com and ${HOST}"},
	}
	for _, tt := range tests {
		if got := r.expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeKeys(t *testing.T) {
	r := NewResolver(WithEnv(noEnv))

	tests := []struct {
		key  string
		want string
	}{
		{"noproxy", "noProxy"},
		{"no-proxy", "noProxy"},
		{"maxsockets", "maxSockets"},
		{"https-proxy", "proxy"},
		{"proxy", "proxy"},
		{"strict-ssl", "strictSSL"},
		{"local-address", "localAddress"},
		{"registry", "registry"},
		{"_authtoken", "_authToken"},
		{"_auth", "_auth"},
	}
	for _, tt := range tests {
		got, _, keep := r.normalize("/tmp", tt.key, "value")
		if !keep {
			t.Errorf("normalize(%q) dropped the entry", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNormalizeCafile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ca.pem"), "line one\r\nline two\r\n")

	r := NewResolver(WithEnv(noEnv))
	key, value, keep := r.normalize(dir, "cafile", "./ca.pem")
	if !keep {
		t.Fatal("cafile entry was dropped")
	}
	if key != "ca" {
		t.Errorf("key = %q, want %q", key, "ca")
	}
	if value != "line one\nline two\n" {
		t.Errorf("ca = %q, want LF-normalized contents", value)
	}
}

func TestNormalizeCafileUnreadable(t *testing.T) {
	r := NewResolver(WithEnv(noEnv))
	_, _, keep := r.normalize(t.TempDir(), "cafile", "./does-not-exist.pem")
	if keep {
		t.Error("unreadable cafile should drop the entry")
	}
}

func TestPrefix(t *testing.T) {
	r := NewResolver(WithEnv(noEnv), WithExecPath("/usr/local/lib/bin/node"))
	r.goos = "linux"
	if got := r.prefix(); got != "/usr/local/lib" {
		t.Errorf("prefix = %q, want %q", got, "/usr/local/lib")
	}

	r.goos = "windows"
	if got := r.prefix(); got != "/usr/local/lib/bin" {
		t.Errorf("windows prefix = %q, want %q", got, "/usr/local/lib/bin")
	}

	r = NewResolver(WithEnv(func(name string) string {
		if name == "PREFIX" {
			return "/opt/node"
		}
		return ""
	}))
	if got := r.prefix(); got != "/opt/node" {
		t.Errorf("PREFIX prefix = %q, want %q", got, "/opt/node")
	}
}

func TestAncestors(t *testing.T) {
	got := ancestors("/a/b/c")
	want := []string{"/a", "/a/b", "/a/b/c"}
	if len(got) != len(want) {
		t.Fatalf("ancestors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ancestors[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got := ancestors("/"); len(got) != 0 {
		t.Errorf("ancestors(/) = %v, want empty", got)
	}
}

func TestMerge(t *testing.T) {
	base := Options{"registry": "a", "proxy": "p"}
	merged := base.Merge(Options{"registry": "b"})

	if merged["registry"] != "b" {
		t.Errorf("registry = %v, want overlay value", merged["registry"])
	}
	if merged["proxy"] != "p" {
		t.Errorf("proxy = %v, want base value", merged["proxy"])
	}
	if base["registry"] != "a" {
		t.Error("Merge mutated the base options")
	}
}
