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

// package upload moves file data into the portal's bucket using credentials
// the portal mints per file. Local files and Google Cloud Storage objects
// travel through the aws and gsutil command line tools; transfers from S3
// run in process as a chunked multipart copy.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/dustin/go-humanize"

	"github.com/stanfordbioinformatics/encsubmit/logging"
	"github.com/stanfordbioinformatics/encsubmit/portal"
	"github.com/stanfordbioinformatics/encsubmit/storage"
)

// the parts of the portal client the coordinator relies on
type portalAPI interface {
	Get(id, frame string) (map[string]any, error)
	Patch(id string, properties map[string]any) (map[string]any, error)
	MintUploadCredentials(fileId string) (*portal.UploadCredentials, error)
}

// Options steer a single upload.
type Options struct {
	// explicit location of the data; when empty, the file record's
	// submitted_file_name property is consulted
	SourcePath string
	// recompute the checksum even when the record already carries one
	ForceRehash bool
}

// Coordinator drives file data uploads against a single portal instance.
type Coordinator struct {
	Client portalAPI
	Logger *logging.Logger
	// when set, uploads are planned and logged but no data moves and no
	// portal state changes
	DryRun bool

	// runs a shell pipeline with the given extra environment, swappable
	// for testing
	runCommand func(ctx context.Context, env []string, script string) (stdout, stderr string, err error)
}

// NewCoordinator creates an upload coordinator backed by the given portal
// client.
func NewCoordinator(client portalAPI, logger *logging.Logger, dryRun bool) *Coordinator {
	return &Coordinator{
		Client:     client,
		Logger:     logger,
		DryRun:     dryRun,
		runCommand: runShell,
	}
}

// Upload moves the data for the identified file record into the portal's
// bucket. A portal that refuses to mint credentials (because the file's data
// is already validated) ends the upload quietly.
func (c *Coordinator) Upload(ctx context.Context, fileId string, opts Options) error {
	// resolve the data's location first so dry runs report something useful
	sourcePath := opts.SourcePath
	if sourcePath == "" {
		record, err := c.Client.Get(fileId, "")
		if err != nil {
			return err
		}
		sourcePath, _ = record["submitted_file_name"].(string)
		if sourcePath == "" {
			return &NoSourceError{FileId: fileId}
		}
	}

	if c.DryRun {
		c.Logger.Debugf("Dry run: would upload %s for file record %s.", sourcePath, fileId)
		return nil
	}

	creds, err := c.Client.MintUploadCredentials(fileId)
	if err != nil {
		if _, forbidden := err.(*portal.ForbiddenError); forbidden {
			c.Logger.Errorf("The portal won't mint upload credentials for %s; "+
				"its data may already be validated. Skipping the upload.", fileId)
			return nil
		}
		return err
	}

	if err := c.refreshFileFacts(ctx, fileId, sourcePath, opts.ForceRehash); err != nil {
		return err
	}

	c.Logger.Debugf("Uploading %s to %s.", sourcePath, creds.UploadUrl)
	switch {
	case storage.IsS3URI(sourcePath):
		err = c.copyFromS3(ctx, creds, sourcePath)
	case storage.IsGSURI(sourcePath):
		err = c.copyFromGS(ctx, creds, sourcePath)
	default:
		err = c.copyFromLocal(ctx, creds, sourcePath)
	}
	if err != nil {
		return err
	}
	c.Logger.Debugf("Uploaded %s for file record %s.", sourcePath, fileId)
	return nil
}

// brings the record's md5sum and file_size properties in line with the data
// actually being uploaded. The record is left alone when it already carries
// a checksum, unless a rehash is forced. GCS objects are skipped, since
// their checksums aren't MD5-comparable without downloading the data.
func (c *Coordinator) refreshFileFacts(ctx context.Context, fileId, sourcePath string, force bool) error {
	if storage.IsGSURI(sourcePath) {
		return nil
	}
	record, err := c.Client.Get(fileId, "")
	if err != nil {
		return err
	}
	if recorded, _ := record["md5sum"].(string); recorded != "" && !force {
		return nil
	}

	md5sum, err := storage.MD5Sum(ctx, sourcePath)
	if err != nil {
		return err
	}
	size, err := storage.FileSize(ctx, sourcePath)
	if err != nil {
		return err
	}
	facts := make(map[string]any)
	if md5sum != "" && record["md5sum"] != md5sum {
		facts["md5sum"] = md5sum
	}
	if recorded, ok := numberAsInt64(record["file_size"]); !ok || recorded != size {
		facts["file_size"] = size
	}
	if len(facts) == 0 {
		return nil
	}
	c.Logger.Debugf("Updating %s: the data is %s and its recorded facts disagree.",
		fileId, humanize.Bytes(uint64(size)))
	_, err = c.Client.Patch(fileId, facts)
	return err
}

// uploads a local file with the aws command line tool
func (c *Coordinator) copyFromLocal(ctx context.Context, creds *portal.UploadCredentials, sourcePath string) error {
	script := fmt.Sprintf("aws s3 cp %q %q", sourcePath, creds.UploadUrl)
	return c.runUploadCommand(ctx, creds, script)
}

// streams a Google Cloud Storage object through gsutil into the portal's
// bucket without staging it locally
func (c *Coordinator) copyFromGS(ctx context.Context, creds *portal.UploadCredentials, sourcePath string) error {
	script := fmt.Sprintf("set -o pipefail; gsutil -q cp %q - | aws s3 cp - %q",
		sourcePath, creds.UploadUrl)
	return c.runUploadCommand(ctx, creds, script)
}

// runs an upload shell command with the minted credentials in its
// environment
func (c *Coordinator) runUploadCommand(ctx context.Context, creds *portal.UploadCredentials, script string) error {
	env := []string{
		"AWS_ACCESS_KEY_ID=" + creds.AccessKey,
		"AWS_SECRET_ACCESS_KEY=" + creds.SecretKey,
		"AWS_SESSION_TOKEN=" + creds.SessionToken,
		"AWS_SECURITY_TOKEN=" + creds.SessionToken,
	}
	stdout, stderr, err := c.runCommand(ctx, env, script)
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &FileUploadFailedError{
			Command:  script,
			ExitCode: exitCode,
			Stdout:   stdout,
			Stderr:   stderr,
			Cause:    err,
		}
	}
	return nil
}

// the default command runner
func runShell(ctx context.Context, env []string, script string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "bash", "-c", script)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// coerces the number types JSON decoding can produce to an int64
func numberAsInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
