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

package payload

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// extensions the standard mime tables don't know about
var extraMimeTypes = map[string]string{
	".as": "text/autosql",
}

// ExpandAttachment rewrites an attachment given in the shorthand form
//
//	{"attachment": {"path": "/docs/protocol.pdf"}}
//
// into the full portal form with the file's contents inlined as a base64
// data URL. Attachments already in the full form (or absent) are left
// alone. The record is modified in place.
func ExpandAttachment(record map[string]any) error {
	attachment, ok := record["attachment"].(map[string]any)
	if !ok {
		return nil
	}
	path, ok := attachment["path"].(string)
	if !ok || path == "" {
		return nil
	}

	mimeType, ok := attachment["type"].(string)
	if !ok || mimeType == "" {
		ext := strings.ToLower(filepath.Ext(path))
		mimeType = extraMimeTypes[ext]
		if mimeType == "" {
			mimeType = mime.TypeByExtension(ext)
		}
		if mimeType == "" {
			return &UnknownMimeTypeError{Path: path}
		}
		// strip any charset parameter the mime tables tack on
		if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
			mimeType = mimeType[:idx]
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	record["attachment"] = map[string]any{
		"download": filepath.Base(path),
		"type":     mimeType,
		"href": fmt.Sprintf("data:%s;base64,%s", mimeType,
			base64.StdEncoding.EncodeToString(data)),
	}
	return nil
}
