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

package submit

import "reflect"

// mergeArrays extends each array property in the payload with the values the
// portal already holds for it, so an edit adds to a list instead of wiping
// it. Payload values come first and the result is deduplicated in first-seen
// order. String lists treat a path-qualified identifier and its bare form as
// the same entry; object lists compare deeply.
func (e *Engine) mergeArrays(work, snapshot map[string]any) {
	for key, value := range work {
		payloadItems, ok := asList(value)
		if !ok {
			continue
		}
		// a property the portal doesn't hold yet merges against nothing,
		// which still deduplicates the payload's own values
		remoteItems, ok := asList(snapshot[key])
		if !ok {
			if _, present := snapshot[key]; present {
				continue
			}
			remoteItems = nil
		}
		combined := append(payloadItems, remoteItems...)
		if strings, allStrings := asStringList(combined); allStrings {
			work[key] = e.registry.CollapseAssociations(strings)
		} else {
			work[key] = dedupeDeep(combined)
		}
	}
}

// normalizes the list types a payload can hold to []any
func asList(value any) ([]any, bool) {
	switch list := value.(type) {
	case []any:
		return list, true
	case []string:
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item
		}
		return items, true
	case []map[string]any:
		items := make([]any, len(list))
		for i, item := range list {
			items[i] = item
		}
		return items, true
	}
	return nil, false
}

// returns the list as strings if every element is one
func asStringList(items []any) ([]string, bool) {
	strings := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		strings[i] = s
	}
	return strings, true
}

// deduplicates a mixed or object list by deep equality, keeping the first
// occurrence of each entry
func dedupeDeep(items []any) []any {
	deduped := make([]any, 0, len(items))
	for _, item := range items {
		duplicate := false
		for _, kept := range deduped {
			if reflect.DeepEqual(item, kept) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			deduped = append(deduped, item)
		}
	}
	return deduped
}
