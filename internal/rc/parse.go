package rc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// entry is one key/value pair from a configuration file, in file order so
// later lines override earlier ones during the merge.
type entry struct {
	key   string
	value any
}

// parseIni parses the npm rc dialect: one key=value pair per line, `#` or
// `;` comments, bare keys meaning true. Keys are lowercased the way npm
// does. Section headers carry no registry options and are skipped.
func parseIni(data []byte) ([]entry, error) {
	var entries []entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(line, "=")
		key := strings.ToLower(strings.TrimSpace(rawKey))
		if key == "" {
			continue
		}
		if !hasValue {
			entries = append(entries, entry{key, true})
			continue
		}
		entries = append(entries, entry{key, coerce(unquote(strings.TrimSpace(rawValue)))})
	}
	return entries, nil
}

// parseYarn parses the classic .yarnrc lockfile grammar: top-level
// `key value` lines with optional quoting. Indented blocks hold nested
// structures (registry scopes, lastUpdateCheck history) that carry no
// client options, so they are skipped along with their headers.
func parseYarn(data []byte) ([]entry, error) {
	var entries []entry
	for _, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSuffix(raw, "\r")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if raw[0] == ' ' || raw[0] == '\t' {
			continue
		}
		if strings.HasSuffix(trimmed, ":") {
			continue
		}
		key, rawValue, err := splitYarnLine(trimmed)
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		if rawValue == "" {
			entries = append(entries, entry{key, true})
			continue
		}
		entries = append(entries, entry{key, coerce(unquote(rawValue))})
	}
	return entries, nil
}

// splitYarnLine splits a top-level yarnrc line into key and value, where the
// key itself may be quoted.
func splitYarnLine(line string) (key, value string, err error) {
	if strings.HasPrefix(line, `"`) {
		end := strings.Index(line[1:], `"`)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted key: %s", line)
		}
		return line[1 : end+1], strings.TrimSpace(line[end+2:]), nil
	}
	key, value, _ = strings.Cut(line, " ")
	return key, strings.TrimSpace(value), nil
}

// parseYAML parses a .yarnrc.yml file. Only top-level scalar values map onto
// client options; nested structures are skipped. Keys are emitted in sorted
// order so the merge stays deterministic.
func parseYAML(data []byte) ([]entry, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []entry
	for _, k := range keys {
		switch v := doc[k].(type) {
		case string:
			entries = append(entries, entry{k, v})
		case bool:
			entries = append(entries, entry{k, v})
		case int:
			entries = append(entries, entry{k, int64(v)})
		case int64:
			entries = append(entries, entry{k, v})
		}
	}
	return entries, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}

// coerce applies npm's value coercion: booleans and integers become typed
// values, everything else stays a string.
func coerce(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
