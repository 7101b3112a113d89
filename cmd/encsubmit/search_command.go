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
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// turns field=value arguments into search query parameters
func searchParams(args []string) (url.Values, error) {
	params := url.Values{}
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%q isn't a field=value pair.", arg)
		}
		params.Add(field, value)
	}
	return params, nil
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <field=value>...",
		Short: "Search the portal for records matching query parameters",
		Long: `Runs a portal search and prints each matching record as JSON, e.g.

  encsubmit search type=Experiment assay_term_name=ChIP-seq

A search with no matches prints nothing and succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := searchParams(args)
			if err != nil {
				return err
			}
			if err := ctx.connect(); err != nil {
				return err
			}
			records, err := ctx.client.Search(params)
			if err != nil {
				return err
			}
			for _, record := range records {
				if err := printRecord(cmd, record); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
