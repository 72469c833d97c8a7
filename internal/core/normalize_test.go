package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// recordLogger captures warnings for assertions.
type recordLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *recordLogger) Info(msg any, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprint(msg))
}

func (l *recordLogger) Warn(msg any, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(msg))
}

func (l *recordLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

func TestNormalizeManifestDefaultsDependencyMaps(t *testing.T) {
	m, err := NormalizeManifest([]byte(`{"name":"left-pad","version":"1.3.0"}`))
	if err != nil {
		t.Fatalf("NormalizeManifest failed: %v", err)
	}

	if m.Name != "left-pad" || m.Version != "1.3.0" {
		t.Errorf("unexpected identity: %s@%s", m.Name, m.Version)
	}
	for field, deps := range map[string]map[string]string{
		"dependencies":         m.Dependencies,
		"devDependencies":      m.DevDependencies,
		"peerDependencies":     m.PeerDependencies,
		"optionalDependencies": m.OptionalDependencies,
	} {
		if deps == nil {
			t.Errorf("%s is nil, want empty map", field)
		}
		if len(deps) != 0 {
			t.Errorf("%s = %v, want empty", field, deps)
		}
	}
}

func TestNormalizeManifestKeepsDependencies(t *testing.T) {
	m, err := NormalizeManifest([]byte(`{
		"name": "express",
		"version": "4.19.0",
		"dependencies": {"body-parser": "1.20.2"},
		"devDependencies": {"mocha": "10.4.0"}
	}`))
	if err != nil {
		t.Fatalf("NormalizeManifest failed: %v", err)
	}
	if m.Dependencies["body-parser"] != "1.20.2" {
		t.Errorf("dependencies = %v", m.Dependencies)
	}
	if m.DevDependencies["mocha"] != "10.4.0" {
		t.Errorf("devDependencies = %v", m.DevDependencies)
	}
}

func TestNormalizeManifestRestPassthrough(t *testing.T) {
	m, err := NormalizeManifest([]byte(`{
		"name": "pkg",
		"version": "1.0.0",
		"description": "a package",
		"ng-update": {"migrations": "./migrations.json"}
	}`))
	if err != nil {
		t.Fatalf("NormalizeManifest failed: %v", err)
	}

	var desc string
	if err := json.Unmarshal(m.Rest["description"], &desc); err != nil || desc != "a package" {
		t.Errorf("description passthrough = %q, %v", desc, err)
	}
	if _, ok := m.Rest["ng-update"]; !ok {
		t.Error("tool-specific extension block missing from Rest")
	}
	if _, ok := m.Rest["name"]; ok {
		t.Error("modeled field leaked into Rest")
	}
}

func TestNormalizeManifestHeterogeneousFields(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		license string
	}{
		{"string", `{"license":"MIT"}`, "MIT"},
		{"object", `{"license":{"type":"BSD-3-Clause"}}`, "BSD-3-Clause"},
		{"array", `{"license":[{"type":"MIT"},"Apache-2.0"]}`, "MIT,Apache-2.0"},
		{"absent", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeManifest([]byte(tt.raw))
			if err != nil {
				t.Fatalf("NormalizeManifest failed: %v", err)
			}
			if m.License != tt.license {
				t.Errorf("license = %q, want %q", m.License, tt.license)
			}
		})
	}

	m, err := NormalizeManifest([]byte(`{"deprecated":"use other-pkg instead","private":true}`))
	if err != nil {
		t.Fatalf("NormalizeManifest failed: %v", err)
	}
	if m.Deprecated != "use other-pkg instead" {
		t.Errorf("deprecated = %q", m.Deprecated)
	}
	if !m.Private {
		t.Error("private = false, want true")
	}
}

func packumentFixture() *Packument {
	return &Packument{
		Name: "pkg",
		DistTags: map[string]string{
			"latest": "2.0.0",
			"beta":   "9.9.9",
		},
		Versions: map[string]json.RawMessage{
			"1.0.0": json.RawMessage(`{"name":"pkg","version":"1.0.0"}`),
			"2.0.0": json.RawMessage(`{"name":"pkg","version":"2.0.0","dependencies":{"dep":"^1.0.0"}}`),
		},
	}
}

func TestBuildMetadataResolvesTags(t *testing.T) {
	md := BuildMetadata(packumentFixture(), nil, false)

	if md.Name != "pkg" {
		t.Errorf("name = %q", md.Name)
	}
	if len(md.Versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(md.Versions))
	}
	latest, ok := md.Tags["latest"]
	if !ok {
		t.Fatal("latest tag missing")
	}
	if latest.Version != "2.0.0" {
		t.Errorf("latest = %q, want 2.0.0", latest.Version)
	}
	if latest != md.Versions["2.0.0"] {
		t.Error("tag does not point at the normalized version manifest")
	}
	if _, ok := md.Tags["beta"]; ok {
		t.Error("beta tag references a missing version and must be dropped")
	}
}

func TestBuildMetadataWarnsOnInvalidTagWhenVerbose(t *testing.T) {
	logger := &recordLogger{}
	BuildMetadata(packumentFixture(), logger, true)
	if logger.warnCount() != 1 {
		t.Errorf("warnings = %d, want 1", logger.warnCount())
	}

	quiet := &recordLogger{}
	BuildMetadata(packumentFixture(), quiet, false)
	if quiet.warnCount() != 0 {
		t.Errorf("warnings = %d, want 0 without verbose", quiet.warnCount())
	}
}

func TestBuildMetadataSkipsUndecodableVersion(t *testing.T) {
	p := packumentFixture()
	p.Versions["3.0.0"] = json.RawMessage(`{not json`)

	md := BuildMetadata(p, nil, false)
	if _, ok := md.Versions["3.0.0"]; ok {
		t.Error("undecodable version must be skipped")
	}
	if len(md.Versions) != 2 {
		t.Errorf("versions = %d, want 2", len(md.Versions))
	}
}
