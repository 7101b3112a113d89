// Copyright (c) 2024 The Board of Trustees of the Leland Stanford Junior University
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// package profiles resolves record type names against the portal's JSON
// schema listing and answers questions about schema properties. The listing
// is fetched lazily on first use and cached for the life of the registry.
package profiles

import (
	"strings"
	"sync"
	"unicode"
)

// RecordGetter fetches a portal resource as generic JSON. It is satisfied by
// the portal client.
type RecordGetter interface {
	Get(id, frame string) (map[string]any, error)
}

// profile names whose plural forms don't follow the usual English rules
var irregularNames = map[string]string{
	"antibody":          "antibody_lot",
	"antibodies":        "antibody_lot",
	"publication_datum": "publication_data",
}

// a registry of the portal's schemas, keyed by canonical profile name
// (lowercase with underscores, e.g. "genetic_modification")
type Registry struct {
	client RecordGetter

	mutex   sync.Mutex
	schemas map[string]*Schema
}

// NewRegistry creates a schema registry backed by the given portal client.
// No network traffic occurs until the first lookup.
func NewRegistry(client RecordGetter) *Registry {
	return &Registry{client: client}
}

// Lookup resolves the given profile name to its schema. Names are forgiving:
// "/experiments/", "Experiment", "experiments" and "experiment" all resolve
// to the experiment profile.
func (r *Registry) Lookup(name string) (*Schema, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.load(); err != nil {
		return nil, err
	}
	for _, candidate := range candidateNames(name) {
		if schema, found := r.schemas[candidate]; found {
			return schema, nil
		}
	}
	return nil, &UnknownProfileError{Name: name}
}

// CollapseAssociation reduces a path-qualified record identifier such as
// "/documents/wgEncode.pdf/" to its bare identifier when the leading path
// segment names a known profile collection. Identifiers that don't look like
// record paths pass through untouched.
func (r *Registry) CollapseAssociation(value string) string {
	trimmed := strings.Trim(value, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || !strings.HasPrefix(value, "/") {
		return value
	}
	if _, err := r.Lookup(parts[0]); err != nil {
		return value
	}
	return parts[1]
}

// CollapseAssociations deduplicates a list of record identifiers, treating a
// path-qualified identifier and its bare form as the same entry. The first
// occurrence of each identifier survives, in its original spelling and
// position.
func (r *Registry) CollapseAssociations(values []string) []string {
	seen := make(map[string]bool)
	collapsed := make([]string, 0, len(values))
	for _, value := range values {
		key := r.CollapseAssociation(value)
		if !seen[key] {
			seen[key] = true
			collapsed = append(collapsed, value)
		}
	}
	return collapsed
}

// fetches and indexes the portal's schema listing if we haven't yet
// (callers must hold the mutex)
func (r *Registry) load() error {
	if r.schemas != nil {
		return nil
	}
	listing, err := r.client.Get("profiles/", "")
	if err != nil {
		return err
	}
	schemas := make(map[string]*Schema)
	for key, value := range listing {
		// the listing carries bookkeeping keys alongside the schemas
		if strings.HasPrefix(key, "@") || strings.HasPrefix(key, "_") {
			continue
		}
		raw, ok := value.(map[string]any)
		if !ok {
			continue
		}
		schema := parseSchema(camelToSnake(key), raw)
		schemas[schema.Name] = schema
	}
	r.schemas = schemas
	return nil
}

// produces the canonical name candidates for a user-supplied profile name,
// most specific first
func candidateNames(name string) []string {
	normalized := strings.Trim(name, "/")
	if idx := strings.IndexByte(normalized, '/'); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = camelToSnake(normalized)
	normalized = strings.ReplaceAll(normalized, "-", "_")

	candidates := []string{normalized}
	if irregular, found := irregularNames[normalized]; found {
		candidates = append(candidates, irregular)
	}
	if strings.HasSuffix(normalized, "ies") {
		candidates = append(candidates, strings.TrimSuffix(normalized, "ies")+"y")
	}
	if strings.HasSuffix(normalized, "s") && !strings.HasSuffix(normalized, "ss") {
		candidates = append(candidates, strings.TrimSuffix(normalized, "s"))
	}
	return candidates
}

// converts a CamelCase schema listing key like "GeneticModification" to its
// canonical snake_case form (runs of capitals such as "RNAExpression" become
// a single word, matching the portal's own naming)
func camelToSnake(name string) string {
	runes := []rune(name)
	var builder strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			startsWord := i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1])))
			if startsWord {
				builder.WriteByte('_')
			}
			builder.WriteRune(unicode.ToLower(r))
		} else {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
