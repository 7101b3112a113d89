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

package main

import (
	"github.com/spf13/cobra"

	"github.com/stanfordbioinformatics/encsubmit/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var sourcePath string
	var rehash bool

	cmd := &cobra.Command{
		Use:   "upload <file-id>",
		Short: "Upload a file record's data to the portal's bucket",
		Long: `Asks the portal for fresh upload credentials and moves the file's data
into its designated bucket location. The data may live on the local
filesystem, in S3, or in Google Cloud Storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.connect(); err != nil {
				return err
			}
			return ctx.uploader().Upload(cmd.Context(), args[0], upload.Options{
				SourcePath:  sourcePath,
				ForceRehash: rehash,
			})
		},
	}

	cmd.Flags().StringVar(&sourcePath, "path", "",
		"location of the data (default: the record's submitted_file_name)")
	cmd.Flags().BoolVar(&rehash, "rehash", false,
		"recompute the record's md5sum and file_size before uploading")

	return cmd
}
