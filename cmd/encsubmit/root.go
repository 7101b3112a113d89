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
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stanfordbioinformatics/encsubmit/config"
	"github.com/stanfordbioinformatics/encsubmit/journal"
	"github.com/stanfordbioinformatics/encsubmit/logging"
	"github.com/stanfordbioinformatics/encsubmit/portal"
	"github.com/stanfordbioinformatics/encsubmit/profiles"
	"github.com/stanfordbioinformatics/encsubmit/submit"
	"github.com/stanfordbioinformatics/encsubmit/upload"
)

// commandContext holds the pieces the subcommands share, built lazily so
// commands like help never touch the network or the filesystem.
type commandContext struct {
	configFlag, modeFlag string
	dryRun, noLogFile    bool

	logger   *logging.Logger
	client   *portal.Client
	registry *profiles.Registry
}

// reads and applies the configuration file, honoring the flag overrides
func (ctx *commandContext) loadConfig() error {
	configPath := ctx.configFlag
	if configPath == "" {
		configPath = os.Getenv("ENCSUBMIT_CONFIG")
	}
	if configPath != "" {
		yamlData, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("Couldn't read the config file %s: %s", configPath, err)
		}
		if err := config.Init(yamlData); err != nil {
			return err
		}
	} else if err := config.Init(nil); err != nil {
		return err
	}
	if ctx.modeFlag != "" {
		config.Portal.Mode = ctx.modeFlag
	}
	if ctx.noLogFile {
		config.Logging.Files = false
	}
	return nil
}

// builds the shared logger, portal client, and schema registry
func (ctx *commandContext) connect() error {
	if ctx.client != nil {
		return nil
	}
	if err := ctx.loadConfig(); err != nil {
		return err
	}
	logDir := ""
	if config.Logging.Files {
		logDir = config.Logging.Directory
	}
	logger, err := logging.New(config.Portal.Mode, logDir)
	if err != nil {
		return err
	}
	ctx.logger = logger
	ctx.client = portal.NewClient(config.PortalURL(),
		time.Duration(config.Portal.Timeout)*time.Second, logger)
	ctx.registry = profiles.NewRegistry(ctx.client)
	return nil
}

// builds a reconciliation engine wired with the journal and the uploader
func (ctx *commandContext) engine() (*submit.Engine, error) {
	if err := ctx.connect(); err != nil {
		return nil, err
	}
	options := []submit.Option{
		submit.WithDefaults(config.Submission.Lab, config.Submission.Award,
			config.Submission.AliasPrefix),
		submit.WithLogger(ctx.logger),
		submit.WithDryRun(ctx.dryRun),
		submit.WithUploader(ctx.uploader()),
	}
	if config.Journal.Path != "" && !ctx.dryRun {
		if err := journal.Init(config.Journal.Path); err != nil {
			return nil, err
		}
		options = append(options, submit.WithJournal())
	}
	return submit.NewEngine(ctx.client, ctx.registry, options...), nil
}

func (ctx *commandContext) uploader() *upload.Coordinator {
	return upload.NewCoordinator(ctx.client, ctx.logger, ctx.dryRun)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "encsubmit",
		Short:         "Submit metadata and file data to an ENCODE-style portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return journal.Finalize()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "",
		"configuration file path (also $ENCSUBMIT_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&ctx.modeFlag, "mode", "m", "",
		"portal instance: prod, dev, or an explicit hostname")
	rootCmd.PersistentFlags().BoolVarP(&ctx.dryRun, "dry-run", "n", false,
		"plan and log every action without changing the portal")
	rootCmd.PersistentFlags().BoolVar(&ctx.noLogFile, "no-log-file", false,
		"log to the terminal only")

	rootCmd.AddCommand(newRegisterCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newGetCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))

	return rootCmd
}
