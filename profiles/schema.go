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

package profiles

// the shape a schema property expects its values to take
type PropertyKind int

const (
	KindScalar PropertyKind = iota // strings, numbers, booleans
	KindArray
	KindObject
)

// a single property within a schema
type Property struct {
	Kind PropertyKind
	// properties the portal maintains itself and refuses edits to
	ReadOnly       bool
	NotSubmittable bool
	// for array properties, the kind of each element
	ItemKind PropertyKind
}

// a portal JSON schema, reduced to the parts submission cares about
type Schema struct {
	// canonical profile name (e.g. "genetic_modification")
	Name string
	// properties by name
	Properties map[string]Property
	// names of properties the portal requires on creation
	Required []string
}

// HasProperty reports whether the schema defines the named property.
func (s *Schema) HasProperty(name string) bool {
	_, found := s.Properties[name]
	return found
}

// HasAliases reports whether records of this profile carry an aliases list.
// A few profiles (notably the admin-facing ones) don't.
func (s *Schema) HasAliases() bool {
	return s.HasProperty("aliases")
}

// HasAward reports whether records of this profile are associated with a
// grant award (and, by extension, a lab).
func (s *Schema) HasAward() bool {
	return s.HasProperty("award")
}

// Writable reports whether the named property accepts values from
// submitters. Unknown properties are considered writable so that the portal
// itself gets the final say in rejecting them.
func (s *Schema) Writable(name string) bool {
	prop, found := s.Properties[name]
	if !found {
		return true
	}
	return !prop.ReadOnly && !prop.NotSubmittable
}

// FilterNonWritable returns a copy of the given record with every read-only
// and non-submittable property removed, making a fetched record safe to send
// back in an edit.
func (s *Schema) FilterNonWritable(record map[string]any) map[string]any {
	filtered := make(map[string]any)
	for name, value := range record {
		if s.Writable(name) {
			filtered[name] = value
		}
	}
	return filtered
}

// builds a Schema from raw schema JSON
func parseSchema(name string, raw map[string]any) *Schema {
	schema := &Schema{
		Name:       name,
		Properties: make(map[string]Property),
	}
	if required, ok := raw["required"].([]any); ok {
		for _, item := range required {
			if propName, ok := item.(string); ok {
				schema.Required = append(schema.Required, propName)
			}
		}
	}
	props, ok := raw["properties"].(map[string]any)
	if !ok {
		return schema
	}
	for propName, propValue := range props {
		rawProp, ok := propValue.(map[string]any)
		if !ok {
			continue
		}
		prop := Property{Kind: kindOf(rawProp["type"])}
		if readOnly, ok := rawProp["readonly"].(bool); ok {
			prop.ReadOnly = readOnly
		}
		if notSubmittable, ok := rawProp["notSubmittable"].(bool); ok {
			prop.NotSubmittable = notSubmittable
		}
		if prop.Kind == KindArray {
			if items, ok := rawProp["items"].(map[string]any); ok {
				prop.ItemKind = kindOf(items["type"])
			}
		}
		schema.Properties[propName] = prop
	}
	return schema
}

// maps a JSON schema type declaration (a string, or a list of alternatives)
// to a PropertyKind
func kindOf(declared any) PropertyKind {
	switch t := declared.(type) {
	case string:
		switch t {
		case "array":
			return KindArray
		case "object":
			return KindObject
		default:
			return KindScalar
		}
	case []any:
		// a list of alternatives is scalar unless every choice agrees
		for _, alternative := range t {
			if name, ok := alternative.(string); ok && name != "array" && name != "object" {
				return KindScalar
			}
		}
		if len(t) > 0 {
			if name, ok := t[0].(string); ok {
				return kindOf(name)
			}
		}
	}
	return KindScalar
}
