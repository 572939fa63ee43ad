// Package s3 implements [objectstore.Store] over any S3-compatible endpoint
// using github.com/aws/aws-sdk-go-v2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/MrWong99/chatgw/pkg/objectstore"
)

// Config configures a [Store].
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Region is the AWS region. Required for real AWS S3; any non-empty
	// value is accepted for S3-compatible endpoints such as MinIO.
	Region string

	// Endpoint overrides the default AWS endpoint resolution, for
	// S3-compatible services (MinIO, etc). Empty uses AWS's default resolver.
	Endpoint string

	// AccessKeyID and SecretAccessKey supply static credentials. When both are
	// empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// PathStyle selects path-style addressing (bucket in the URL path rather
	// than the hostname), typical for MinIO deployments.
	PathStyle bool
}

// Store is a [objectstore.Store] backed by a real (or S3-compatible) bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New constructs a [Store] and ensures the configured bucket exists,
// creating it if necessary — mirroring the original mock S3 service's
// idempotent bucket bootstrap.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	store := &Store{client: client, bucket: cfg.Bucket}
	if err := store.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("s3: create bucket %q: %w", s.bucket, err)
	}
	slog.Info("s3 bucket created", "bucket", s.bucket)
	return nil
}

// Upload stores body under a newly generated key.
func (s *Store) Upload(ctx context.Context, userEmail, filename string, body []byte, contentType string, source objectstore.Source, tags map[string]string) (objectstore.Object, error) {
	mergedTags := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		mergedTags[k] = v
	}
	mergedTags["source"] = string(source)

	key := objectstore.NewKey(userEmail, filename, source, time.Now())
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"filename": filename},
		Tagging:     aws.String(encodeTagging(mergedTags)),
	})
	if err != nil {
		return objectstore.Object{}, fmt.Errorf("s3: put object %q: %w", key, err)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return objectstore.Object{}, fmt.Errorf("s3: head object %q: %w", key, err)
	}

	return objectstore.Object{
		Key:          key,
		Filename:     filename,
		ContentType:  contentType,
		Size:         aws.ToInt64(head.ContentLength),
		ETag:         strings.Trim(aws.ToString(head.ETag), `"`),
		Tags:         mergedTags,
		LastModified: aws.ToTime(head.LastModified),
		UserEmail:    userEmail,
	}, nil
}

// Get retrieves an object's content.
func (s *Store) Get(ctx context.Context, userEmail, key string) (objectstore.Content, error) {
	if err := objectstore.ValidateKey(userEmail, key); err != nil {
		return objectstore.Content{}, err
	}

	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return objectstore.Content{}, objectstore.ErrNotFound
		}
		return objectstore.Content{}, fmt.Errorf("s3: get object %q: %w", key, err)
	}
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return objectstore.Content{}, fmt.Errorf("s3: read object %q: %w", key, err)
	}

	filename := obj.Metadata["filename"]
	if filename == "" {
		parts := strings.Split(key, "/")
		filename = parts[len(parts)-1]
	}

	return objectstore.Content{
		Object: objectstore.Object{
			Key:          key,
			Filename:     filename,
			ContentType:  aws.ToString(obj.ContentType),
			Size:         aws.ToInt64(obj.ContentLength),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			LastModified: aws.ToTime(obj.LastModified),
			UserEmail:    userEmail,
		},
		Body: body,
	}, nil
}

// List enumerates objects under userEmail's namespace.
func (s *Store) List(ctx context.Context, userEmail string, opts objectstore.ListOptions) ([]objectstore.Object, error) {
	prefix := "users/" + userEmail + "/"
	switch opts.Source {
	case objectstore.SourceTool:
		prefix += "generated/"
	case objectstore.SourceUser:
		prefix += "uploads/"
	}

	limit := int32(opts.Limit)
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: list objects: %w", err)
	}

	out := make([]objectstore.Object, 0, len(resp.Contents))
	for _, item := range resp.Contents {
		key := aws.ToString(item.Key)
		parts := strings.Split(key, "/")
		out = append(out, objectstore.Object{
			Key:          key,
			Filename:     parts[len(parts)-1],
			Size:         aws.ToInt64(item.Size),
			ETag:         strings.Trim(aws.ToString(item.ETag), `"`),
			LastModified: aws.ToTime(item.LastModified),
			UserEmail:    userEmail,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, userEmail, key string) (bool, error) {
	if err := objectstore.ValidateKey(userEmail, key); err != nil {
		return false, err
	}

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3: head object %q: %w", key, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return false, fmt.Errorf("s3: delete object %q: %w", key, err)
	}
	return true, nil
}

// Stats aggregates usage for userEmail's namespace by listing (bounded) up
// to 1000 objects rather than maintaining a separate running counter.
func (s *Store) Stats(ctx context.Context, userEmail string) (objectstore.Stats, error) {
	objs, err := s.List(ctx, userEmail, objectstore.ListOptions{Limit: 1000})
	if err != nil {
		return objectstore.Stats{}, err
	}
	var stats objectstore.Stats
	for _, o := range objs {
		stats.TotalFiles++
		stats.TotalSize += o.Size
		switch {
		case strings.Contains(o.Key, "/uploads/"):
			stats.UploadCount++
		case strings.Contains(o.Key, "/generated/"):
			stats.GeneratedCount++
		}
	}
	return stats, nil
}

func encodeTagging(tags map[string]string) string {
	var parts []string
	for k, v := range tags {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	var nb *types.NotFound
	return errors.As(err, &nb)
}

// Ensure Store implements objectstore.Store at compile time.
var _ objectstore.Store = (*Store)(nil)
