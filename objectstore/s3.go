/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the connection parameters for an S3-compatible bucket
// (AWS S3 or a MinIO-style endpoint).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // non-empty selects a custom endpoint (MinIO, etc.)
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3 is a production Store backed by an S3-compatible bucket. The client
// is created lazily on first use so construction never touches the
// network.
type S3 struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3 returns an S3-backed Store for the given configuration.
func NewS3(cfg S3Config) *S3 {
	return &S3{cfg: cfg}
}

func (st *S3) ensureOpen(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if st.cfg.Region != "" {
		opts = append(opts, config.WithRegion(st.cfg.Region))
	}
	if st.cfg.AccessKeyID != "" && st.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(st.cfg.AccessKeyID, st.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return &IoError{Key: "s3:config", Err: err}
	}

	var s3Opts []func(*s3.Options)
	if st.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(st.cfg.Endpoint) })
	}
	if st.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	st.client = s3.NewFromConfig(awsCfg, s3Opts...)
	st.opened = true
	return nil
}

func (st *S3) key(name string) string {
	pfx := strings.TrimSuffix(st.cfg.Prefix, "/")
	if pfx == "" {
		return name
	}
	return pfx + "/" + name
}

func (st *S3) Put(ctx context.Context, key string, data []byte) error {
	if err := st.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := st.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(st.key(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return &IoError{Key: key, Err: err}
	}
	return nil
}

func (st *S3) Get(ctx context.Context, key string) ([]byte, error) {
	if err := st.ensureOpen(ctx); err != nil {
		return nil, err
	}
	resp, err := st.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(st.key(key)),
	})
	if err != nil {
		return nil, &NotFoundError{Key: key}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &IoError{Key: key, Err: err}
	}
	return data, nil
}

func (st *S3) Head(ctx context.Context, key string) (Meta, error) {
	if err := st.ensureOpen(ctx); err != nil {
		return Meta{}, err
	}
	resp, err := st.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(st.key(key)),
	})
	if err != nil {
		return Meta{}, &NotFoundError{Key: key}
	}
	m := Meta{Key: key}
	if resp.ContentLength != nil {
		m.SizeBytes = *resp.ContentLength
	}
	if resp.LastModified != nil {
		m.CreatedAtMs = uint64(resp.LastModified.UnixMilli())
	}
	if resp.ETag != nil {
		m.ETag = *resp.ETag
	}
	return m, nil
}

func (st *S3) List(ctx context.Context, prefix string, continuationToken string) (ListResult, error) {
	if err := st.ensureOpen(ctx); err != nil {
		return ListResult{}, err
	}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(st.cfg.Bucket),
		Prefix: aws.String(st.key(prefix)),
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}
	resp, err := st.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ListResult{}, &IoError{Key: prefix, Err: err}
	}

	stripPrefix := strings.TrimSuffix(st.cfg.Prefix, "/")
	out := make([]Meta, 0, len(resp.Contents))
	for _, obj := range resp.Contents {
		k := aws.ToString(obj.Key)
		if stripPrefix != "" {
			k = strings.TrimPrefix(k, stripPrefix+"/")
		}
		m := Meta{Key: k}
		if obj.Size != nil {
			m.SizeBytes = *obj.Size
		}
		if obj.LastModified != nil {
			m.CreatedAtMs = uint64(obj.LastModified.UnixMilli())
		}
		out = append(out, m)
	}
	result := ListResult{Objects: out}
	if resp.NextContinuationToken != nil {
		result.ContinuationToken = *resp.NextContinuationToken
	}
	return result, nil
}

func (st *S3) Delete(ctx context.Context, key string) error {
	if err := st.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := st.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(st.key(key)),
	})
	if err != nil {
		return &IoError{Key: key, Err: err}
	}
	return nil
}

// Rename on S3 is implemented as copy-then-delete, since S3 has no native
// rename: the destination is guaranteed to hold the source's bytes once
// CopyObject returns, but a crash between copy and delete leaves both
// objects present (documented limitation, spec §9 open question 2 —
// recovery is keyed off the manifest, so a stray un-deleted source
// segment is harmless, merely unreclaimed until the next compaction).
func (st *S3) Rename(ctx context.Context, from, to string) error {
	if err := st.ensureOpen(ctx); err != nil {
		return err
	}
	src := fmt.Sprintf("%s/%s", st.cfg.Bucket, st.key(from))
	_, err := st.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(st.cfg.Bucket),
		CopySource: aws.String(src),
		Key:        aws.String(st.key(to)),
	})
	if err != nil {
		return &IoError{Key: to, Err: err}
	}
	_, err = st.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(st.cfg.Bucket),
		Key:    aws.String(st.key(from)),
	})
	if err != nil {
		return &IoError{Key: from, Err: err}
	}
	return nil
}

