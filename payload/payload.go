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

// package payload prepares user-supplied record payloads for submission:
// alias hygiene, attachment expansion, ownership defaults, file checksum
// enrichment, and runtime shape checks against the record's schema.
package payload

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/stanfordbioinformatics/encsubmit/profiles"
	"github.com/stanfordbioinformatics/encsubmit/storage"
)

// reserved payload keys that steer submission and are stripped before any
// data reaches the portal
const (
	// names the profile the record belongs to (e.g. "experiment")
	ProfileKey = "_profile"
	// carries an explicit portal identifier for the record
	IdKey = "_enc_id"
)

// Profile extracts the record's profile name from its reserved key.
func Profile(record map[string]any) (string, bool) {
	name, ok := record[ProfileKey].(string)
	return name, ok && name != ""
}

// RecordId extracts the record's explicit portal identifier, if any.
func RecordId(record map[string]any) (string, bool) {
	id, ok := record[IdKey].(string)
	return id, ok && id != ""
}

// StripReserved returns a copy of the record without the reserved keys.
func StripReserved(record map[string]any) map[string]any {
	stripped := make(map[string]any, len(record))
	for key, value := range record {
		if key == ProfileKey || key == IdKey {
			continue
		}
		stripped[key] = value
	}
	return stripped
}

// CleanAlias scrubs characters the portal can't tolerate in an alias: both
// slash flavors become underscores and pound signs are dropped.
func CleanAlias(alias string) string {
	alias = strings.ReplaceAll(alias, "/", "_")
	alias = strings.ReplaceAll(alias, "\\", "_")
	return strings.ReplaceAll(alias, "#", "")
}

// Aliases returns the record's aliases as a string slice, tolerating both
// []string and the []any that JSON decoding produces.
func Aliases(record map[string]any) []string {
	switch aliases := record["aliases"].(type) {
	case []string:
		return aliases
	case []any:
		result := make([]string, 0, len(aliases))
		for _, item := range aliases {
			if alias, ok := item.(string); ok {
				result = append(result, alias)
			}
		}
		return result
	}
	return nil
}

// NormalizeAliases cleans every alias in the record, namespaces the ones
// that lack a lab prefix with the given one, and leaves the list sorted and
// deduplicated. The record is modified in place. An alias without a prefix
// is an error when no prefix is configured, since the portal would reject it
// anyway.
func NormalizeAliases(record map[string]any, prefix string) error {
	aliases := Aliases(record)
	if aliases == nil {
		return nil
	}
	seen := make(map[string]bool)
	normalized := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		alias = CleanAlias(alias)
		if !strings.Contains(alias, ":") {
			if prefix == "" {
				return &MissingPrefixError{Alias: alias}
			}
			alias = fmt.Sprintf("%s:%s", strings.TrimSuffix(prefix, ":"), alias)
		}
		if !seen[alias] {
			seen[alias] = true
			normalized = append(normalized, alias)
		}
	}
	sort.Strings(normalized)
	record["aliases"] = normalized
	return nil
}

// ApplyOwnershipDefaults fills in the award and lab properties from the
// given defaults on records whose schema calls for them. Records that
// already carry explicit values keep them.
func ApplyOwnershipDefaults(record map[string]any, schema *profiles.Schema, lab, award string) error {
	if !schema.HasAward() {
		return nil
	}
	if _, present := record["award"]; !present {
		if award == "" {
			return &AwardPropertyMissingError{Profile: schema.Name}
		}
		record["award"] = award
	}
	if _, present := record["lab"]; !present {
		if lab == "" {
			return &LabPropertyMissingError{Profile: schema.Name}
		}
		record["lab"] = lab
	}
	return nil
}

// EnrichFile fills in the md5sum and file_size properties of a file record
// from its data, which is located via the submitted_file_name property. The
// record is left alone when it already carries non-empty values for both
// properties or when its data isn't reachable (a portal-side path, for
// instance).
func EnrichFile(ctx context.Context, record map[string]any) error {
	path, ok := record["submitted_file_name"].(string)
	if !ok || path == "" {
		return nil
	}
	if !storage.IsS3URI(path) {
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	if md5sum, _ := record["md5sum"].(string); md5sum == "" {
		md5sum, err := storage.MD5Sum(ctx, path)
		if err != nil {
			return err
		}
		if md5sum != "" {
			record["md5sum"] = md5sum
		}
	}
	if !positiveNumber(record["file_size"]) {
		size, err := storage.FileSize(ctx, path)
		if err != nil {
			return err
		}
		record["file_size"] = size
	}
	return nil
}

// reports whether the value is a number greater than zero
func positiveNumber(value any) bool {
	switch n := value.(type) {
	case int:
		return n > 0
	case int64:
		return n > 0
	case float64:
		return n > 0
	}
	return false
}

// ValidateKinds checks that each property's value takes the shape its schema
// declares (scalar, array, or object). Properties the schema doesn't know
// about pass through so the portal gets the final say on them.
func ValidateKinds(record map[string]any, schema *profiles.Schema) error {
	for name, value := range record {
		if name == ProfileKey || name == IdKey {
			continue
		}
		declared, known := schema.Properties[name]
		if !known {
			continue
		}
		actual := kindOfValue(value)
		if actual != declared.Kind {
			return &SchemaError{
				Profile:  schema.Name,
				Property: name,
				Expected: kindName(declared.Kind),
				Actual:   kindName(actual),
			}
		}
	}
	return nil
}

// classifies a payload value's shape
func kindOfValue(value any) profiles.PropertyKind {
	switch value.(type) {
	case []any, []string, []map[string]any:
		return profiles.KindArray
	case map[string]any:
		return profiles.KindObject
	default:
		return profiles.KindScalar
	}
}

func kindName(kind profiles.PropertyKind) string {
	switch kind {
	case profiles.KindArray:
		return "an array"
	case profiles.KindObject:
		return "an object"
	default:
		return "a scalar"
	}
}
