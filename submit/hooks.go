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

import (
	"context"

	"github.com/stanfordbioinformatics/encsubmit/profiles"
	"github.com/stanfordbioinformatics/encsubmit/upload"
)

// A Hook runs after the portal accepts a mutation. Hooks never run during a
// dry run, and a hook error propagates to the caller without undoing the
// write that triggered it. The schema is nil when the payload didn't name
// its profile (possible on edits, which only need an identifier).
type Hook func(ctx context.Context, e *Engine, schema *profiles.Schema, record map[string]any) error

// RegisterHook adds a hook that fires after mutations using the given HTTP
// method.
func (e *Engine) RegisterHook(method string, hook Hook) {
	e.hooks[method] = append(e.hooks[method], hook)
}

// runs every hook registered for the given method, in registration order
func (e *Engine) runHooks(ctx context.Context, method string, schema *profiles.Schema, record map[string]any) error {
	for _, hook := range e.hooks[method] {
		if err := hook(ctx, e, schema, record); err != nil {
			return err
		}
	}
	return nil
}

// the built-in hook: a freshly created file record gets its data uploaded
// right away when an uploader is wired in and the data's location is known
func uploadFileData(ctx context.Context, e *Engine, schema *profiles.Schema, record map[string]any) error {
	if e.uploader == nil || schema == nil || schema.Name != "file" {
		return nil
	}
	sourcePath, _ := record["submitted_file_name"].(string)
	if sourcePath == "" {
		return nil
	}
	fileId := recordIdentifier(record, "")
	if fileId == "" {
		return nil
	}
	e.logger.Debugf("Uploading the data for the new file record %s.", fileId)
	return e.uploader.Upload(ctx, fileId, upload.Options{SourcePath: sourcePath})
}
