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

package upload

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stanfordbioinformatics/encsubmit/portal"
	"github.com/stanfordbioinformatics/encsubmit/storage"
)

// the base part size for bucket-to-bucket copies
const copyPartSize int64 = 8_388_608 // 8 MiB

// S3 caps a multipart upload at this many parts
const maxCopyParts int64 = 10_000

// the region the portal's buckets live in, used when the ambient AWS
// configuration names none
const fallbackRegion = "us-west-2"

// copyChunkSize picks a part size for a bucket-to-bucket copy of the given
// total size: the base part size, scaled up just enough to keep the part
// count under the S3 limit.
func copyChunkSize(totalSize int64) int64 {
	excess := totalSize - 1
	if excess < 0 {
		excess = 0
	}
	return copyPartSize * (excess/(maxCopyParts*copyPartSize) + 1)
}

// moves an S3 object into the portal's bucket in process: ranged reads from
// the source (with the ambient credentials) feed a multipart upload to the
// destination (with the minted ones). No temporary files are staged.
func (c *Coordinator) copyFromS3(ctx context.Context, creds *portal.UploadCredentials, sourcePath string) error {
	srcBucket, srcKey, err := storage.ParseS3URI(sourcePath)
	if err != nil {
		return err
	}
	destBucket, destKey, err := storage.ParseS3URI(creds.UploadUrl)
	if err != nil {
		return err
	}

	srcConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithDefaultRegion(fallbackRegion))
	if err != nil {
		return fmt.Errorf("Couldn't load AWS configuration: %w", err)
	}
	srcClient := s3.NewFromConfig(srcConfig)

	destConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKey, creds.SecretKey, creds.SessionToken)),
		awsconfig.WithDefaultRegion(fallbackRegion),
	)
	if err != nil {
		return fmt.Errorf("Couldn't load AWS configuration: %w", err)
	}
	destClient := s3.NewFromConfig(destConfig)

	head, err := srcClient.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &srcBucket,
		Key:    &srcKey,
	})
	if err != nil {
		return err
	}
	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	chunkSize := copyChunkSize(size)

	// small objects move in a single request
	if size <= chunkSize {
		object, err := srcClient.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &srcBucket,
			Key:    &srcKey,
		})
		if err != nil {
			return err
		}
		defer object.Body.Close()
		_, err = destClient.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        &destBucket,
			Key:           &destKey,
			Body:          object.Body,
			ContentLength: aws.Int64(size),
		})
		return err
	}

	created, err := destClient.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &destBucket,
		Key:    &destKey,
	})
	if err != nil {
		return err
	}
	abort := func() {
		destClient.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   &destBucket,
			Key:      &destKey,
			UploadId: created.UploadId,
		})
	}

	var parts []types.CompletedPart
	partNumber := int32(1)
	for offset := int64(0); offset < size; offset += chunkSize {
		end := offset + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		byteRange := fmt.Sprintf("bytes=%d-%d", offset, end)
		object, err := srcClient.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &srcBucket,
			Key:    &srcKey,
			Range:  &byteRange,
		})
		if err != nil {
			abort()
			return err
		}
		uploaded, err := destClient.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        &destBucket,
			Key:           &destKey,
			UploadId:      created.UploadId,
			PartNumber:    aws.Int32(partNumber),
			Body:          object.Body,
			ContentLength: aws.Int64(end - offset + 1),
		})
		object.Body.Close()
		if err != nil {
			abort()
			return err
		}
		parts = append(parts, types.CompletedPart{
			ETag:       uploaded.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++
	}

	_, err = destClient.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &destBucket,
		Key:      &destKey,
		UploadId: created.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		abort()
	}
	return err
}
