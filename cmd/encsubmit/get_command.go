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
)

func newGetCommand(ctx *commandContext) *cobra.Command {
	var frame string
	var fromDatabase bool

	cmd := &cobra.Command{
		Use:   "get <id>...",
		Short: "Fetch portal records by any identifier",
		Long: `Fetches one record per identifier and prints each as JSON. Identifiers
may be accessions, UUIDs, aliases, @ids, or md5:<checksum> for files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.connect(); err != nil {
				return err
			}
			if !fromDatabase {
				ctx.client.Datastore = ""
			}
			for _, id := range args {
				record, err := ctx.client.Get(id, frame)
				if err != nil {
					return err
				}
				if err := printRecord(cmd, record); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&frame, "frame", "",
		"record frame to request (e.g. object, edit, embedded)")
	cmd.Flags().BoolVar(&fromDatabase, "database", true,
		"read from the authoritative database instead of the search index")

	return cmd
}
