// Package core provides the shared types for packuments, manifests and
// normalized package metadata.
package core

import "encoding/json"

// Logger is the leveled sink used for diagnostics. It is satisfied by
// *log.Logger from github.com/charmbracelet/log. Implementations must not
// panic; logging is never used for control flow.
type Logger interface {
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// Packument is the raw registry record for a package: the response of
// GET <registry>/<name>. Version manifests are kept as raw JSON until
// normalized.
type Packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]json.RawMessage `json:"versions"`
	Time     map[string]string          `json:"time"`
}

// Dist describes the tarball of a published version.
type Dist struct {
	Shasum    string `json:"shasum,omitempty"`
	Tarball   string `json:"tarball,omitempty"`
	Integrity string `json:"integrity,omitempty"`
}

// Manifest is one resolved version of a package. The four dependency maps
// are always non-nil after normalization, even when the raw manifest omitted
// them. Fields the normalizer does not model are carried in Rest unchanged.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	License              string            `json:"license,omitempty"`
	Private              bool              `json:"private,omitempty"`
	Deprecated           string            `json:"deprecated,omitempty"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Dist                 Dist              `json:"dist,omitempty"`
	Engines              map[string]string `json:"engines,omitempty"`

	// Rest holds the raw manifest fields not covered above.
	Rest map[string]json.RawMessage `json:"-"`
}

// Metadata is a package's normalized registry record. Every tag in Tags
// points at a manifest that is also present in Versions; dist-tags naming a
// missing version are dropped during construction.
type Metadata struct {
	Name     string
	Tags     map[string]*Manifest
	Versions map[string]*Manifest
}
