package core

import (
	"encoding/json"
	"strings"
)

// manifestFields are the raw keys the normalizer models directly; everything
// else lands in Manifest.Rest.
var manifestFields = map[string]struct{}{
	"name":                 {},
	"version":              {},
	"license":              {},
	"private":              {},
	"deprecated":           {},
	"dependencies":         {},
	"devDependencies":      {},
	"peerDependencies":     {},
	"optionalDependencies": {},
	"dist":                 {},
	"engines":              {},
}

// NormalizeManifest converts a raw registry manifest into a Manifest with
// all four dependency maps present. It does not validate field contents
// beyond what decoding requires; registries accept fairly loose manifests
// and rejecting them here would break packages that installed fine before.
func NormalizeManifest(data []byte) (*Manifest, error) {
	var raw struct {
		Name                 string            `json:"name"`
		Version              string            `json:"version"`
		License              any               `json:"license"`
		Private              any               `json:"private"`
		Deprecated           any               `json:"deprecated"`
		Dependencies         map[string]string `json:"dependencies"`
		DevDependencies      map[string]string `json:"devDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
		Dist                 Dist              `json:"dist"`
		Engines              map[string]string `json:"engines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var rest map[string]json.RawMessage
	if err := json.Unmarshal(data, &rest); err != nil {
		return nil, err
	}
	for k := range manifestFields {
		delete(rest, k)
	}

	m := &Manifest{
		Name:                 raw.Name,
		Version:              raw.Version,
		License:              extractLicense(raw.License),
		Private:              extractBool(raw.Private),
		Deprecated:           extractString(raw.Deprecated),
		Dependencies:         raw.Dependencies,
		DevDependencies:      raw.DevDependencies,
		PeerDependencies:     raw.PeerDependencies,
		OptionalDependencies: raw.OptionalDependencies,
		Dist:                 raw.Dist,
		Engines:              raw.Engines,
		Rest:                 rest,
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.DevDependencies == nil {
		m.DevDependencies = map[string]string{}
	}
	if m.PeerDependencies == nil {
		m.PeerDependencies = map[string]string{}
	}
	if m.OptionalDependencies == nil {
		m.OptionalDependencies = map[string]string{}
	}
	return m, nil
}

// BuildMetadata normalizes every version of a packument and resolves its
// dist-tags against the normalized version map. Tags naming a version that
// is not present are dropped; when verbose is set the drop is reported
// through the logger. Construction never fails outright.
func BuildMetadata(p *Packument, logger Logger, verbose bool) *Metadata {
	md := &Metadata{
		Name:     p.Name,
		Tags:     make(map[string]*Manifest, len(p.DistTags)),
		Versions: make(map[string]*Manifest, len(p.Versions)),
	}

	for version, raw := range p.Versions {
		m, err := NormalizeManifest(raw)
		if err != nil {
			if verbose && logger != nil {
				logger.Warn("skipping undecodable version", "package", p.Name, "version", version, "err", err)
			}
			continue
		}
		md.Versions[version] = m
	}

	for tag, version := range p.DistTags {
		m, ok := md.Versions[version]
		if !ok {
			if verbose && logger != nil {
				logger.Warn("package has invalid dist-tag", "package", p.Name, "tag", tag, "version", version)
			}
			continue
		}
		md.Tags[tag] = m
	}

	return md
}

func extractLicense(v any) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]any:
		if t, ok := l["type"].(string); ok {
			return t
		}
	case []any:
		var licenses []string
		for _, item := range l {
			switch li := item.(type) {
			case string:
				licenses = append(licenses, li)
			case map[string]any:
				if t, ok := li["type"].(string); ok {
					licenses = append(licenses, t)
				}
			}
		}
		return strings.Join(licenses, ",")
	}
	return ""
}

func extractString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func extractBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}
