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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stanfordbioinformatics/encsubmit/payload"
	"github.com/stanfordbioinformatics/encsubmit/submit"
)

// reads one JSON object or a list of them from the given file
func readPayloads(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err == nil {
		return []map[string]any{single}, nil
	}
	var many []map[string]any
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("%s holds neither a JSON object nor a list of them: %s", path, err)
	}
	return many, nil
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var patchOnly, noUpload, noAliases bool
	var removeProps []string

	cmd := &cobra.Command{
		Use:   "register <payloads.json>",
		Short: "Create or update portal records from a JSON payload file",
		Long: `Reads one JSON object (or a list of them) and reconciles each against
the portal: records that already exist are edited, the rest are created.
Each object names its record type under the "_profile" key and may pin an
explicit portal identifier under "_enc_id".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readPayloads(args[0])
			if err != nil {
				return err
			}
			engine, err := ctx.engine()
			if err != nil {
				return err
			}

			opts := submit.UpsertOptions{
				Create: submit.CreateOptions{NoUpload: noUpload, NoAliases: noAliases},
			}
			for i, record := range records {
				if patchOnly || len(removeProps) > 0 {
					if _, ok := payload.RecordId(record); !ok {
						return fmt.Errorf("Payload %d carries no %s key, which editing requires.",
							i+1, payload.IdKey)
					}
				}
				var result map[string]any
				switch {
				case len(removeProps) > 0:
					result, err = engine.RemoveAndPatch(cmd.Context(), removeProps, record, opts.Update)
				case patchOnly:
					result, err = engine.Update(cmd.Context(), record, opts.Update)
				default:
					result, err = engine.Upsert(cmd.Context(), record, opts)
				}
				if err != nil {
					return fmt.Errorf("Payload %d: %w", i+1, err)
				}
				if err := printRecord(cmd, result); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&patchOnly, "patch", false,
		"only edit existing records, never create")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false,
		"don't upload file data after creating file records")
	cmd.Flags().BoolVar(&noAliases, "no-aliases", false,
		"waive the alias requirement for new records")
	cmd.Flags().StringSliceVar(&removeProps, "remove-props", nil,
		"properties to remove from each record while patching")

	return cmd
}

// writes a record to the command's stdout as indented JSON
func printRecord(cmd *cobra.Command, record map[string]any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
