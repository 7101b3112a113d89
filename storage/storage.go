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

// package storage answers questions about file data wherever it lives: on
// the local filesystem, in S3, or in Google Cloud Storage. Paths are
// dispatched on their URI scheme.
package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// IsS3URI reports whether the given path names an S3 object.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// IsGSURI reports whether the given path names a Google Cloud Storage object.
func IsGSURI(path string) bool {
	return strings.HasPrefix(path, "gs://")
}

// ParseS3URI splits an s3://bucket/key URI into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", fmt.Errorf("%s is not an s3:// URI", uri)
	}
	trimmed := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("The S3 URI %s has no bucket or no key.", uri)
	}
	return parts[0], parts[1], nil
}

// S3Object is a handle on a single object in S3.
type S3Object struct {
	Bucket, Key string

	client *s3.Client
}

// NewS3Object creates a handle on the object named by the given s3:// URI,
// authenticating with the ambient AWS configuration.
func NewS3Object(ctx context.Context, uri string) (*S3Object, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("Couldn't load AWS configuration: %w", err)
	}
	return &S3Object{
		Bucket: bucket,
		Key:    key,
		client: s3.NewFromConfig(cfg),
	}, nil
}

// Head fetches the object's size and, when available, its MD5 checksum. The
// checksum comes from the object's ETag, which only encodes an MD5 digest
// for objects uploaded in a single part; for multipart objects the returned
// checksum is empty.
func (o *S3Object) Head(ctx context.Context) (md5sum string, size int64, err error) {
	output, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &o.Bucket,
		Key:    &o.Key,
	})
	if err != nil {
		return "", 0, err
	}
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	if output.ETag != nil {
		etag := strings.Trim(*output.ETag, `"`)
		if !strings.Contains(etag, "-") {
			md5sum = etag
		}
	}
	return md5sum, size, nil
}

// MD5Sum computes the MD5 checksum of the file at the given path, which may
// be a local path or an s3:// URI. An empty checksum with no error means the
// checksum couldn't be determined without downloading the data.
func MD5Sum(ctx context.Context, path string) (string, error) {
	if IsS3URI(path) {
		object, err := NewS3Object(ctx, path)
		if err != nil {
			return "", err
		}
		md5sum, _, err := object.Head(ctx)
		return md5sum, err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileSize reports the size in bytes of the file at the given path, which
// may be a local path or an s3:// URI.
func FileSize(ctx context.Context, path string) (int64, error) {
	if IsS3URI(path) {
		object, err := NewS3Object(ctx, path)
		if err != nil {
			return 0, err
		}
		_, size, err := object.Head(ctx)
		return size, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
