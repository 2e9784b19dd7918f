// Package objectstore is the Object Store Gateway: issues upload URLs,
// tests object presence, downloads to a temp path, deletes one or many
// keys. A stateless adapter over Amazon S3 / an S3-compatible endpoint.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ContentTypeByExtension is the fixed extension → MIME map (spec §6). Any
// other extension is rejected at admission time.
var ContentTypeByExtension = map[string]string{
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".json": "application/json",
	".xml":  "application/xml",
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".md":   "text/markdown",
}

// ErrUnsupportedExtension is returned when the extension is not in
// ContentTypeByExtension.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// Gateway wraps an S3 client with the fixed bucket this deployment uses.
type Gateway struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	lifetime time.Duration
}

// Config configures a Gateway.
type Config struct {
	Bucket              string
	Region              string
	Endpoint            string
	AccessKeyID         string
	SecretAccessKey     string
	PresignedURLLifetime time.Duration
}

// New constructs a Gateway, resolving AWS credentials/region the standard
// SDK way (env, shared config, or the explicit static keys in cfg).
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	lifetime := cfg.PresignedURLLifetime
	if lifetime <= 0 {
		lifetime = 15 * time.Minute
	}

	return &Gateway{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		lifetime: lifetime,
	}, nil
}

// Ping verifies the bucket is reachable, for readiness checks.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.bucket)})
	if err != nil {
		return fmt.Errorf("pinging object store bucket %q: %w", g.bucket, err)
	}
	return nil
}

// PresignUpload issues a presigned PUT URL for objectKey, valid for the
// gateway's configured lifetime.
func (g *Gateway) PresignUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	req, err := g.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(g.lifetime))
	if err != nil {
		return "", fmt.Errorf("presigning upload for %q: %w", objectKey, err)
	}
	return req.URL, nil
}

// Exists reports whether objectKey is present in the bucket.
func (g *Gateway) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return false, nil
		}
		return false, fmt.Errorf("checking object %q: %w", objectKey, err)
	}
	return true, nil
}

// Download fetches objectKey into a unique temp file under dir (or the OS
// default temp dir if empty) and returns its path.
func (g *Gateway) Download(ctx context.Context, objectKey, dir string) (string, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return "", fmt.Errorf("downloading object %q: %w", objectKey, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp(dir, "ingestord-*"+filepath.Ext(objectKey))
	if err != nil {
		return "", fmt.Errorf("creating temp file for %q: %w", objectKey, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing object %q to temp file: %w", objectKey, err)
	}

	return f.Name(), nil
}

// Delete removes a single object key.
func (g *Gateway) Delete(ctx context.Context, objectKey string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("deleting object %q: %w", objectKey, err)
	}
	return nil
}

// DeleteMany removes up to 1000 object keys in one S3 DeleteObjects call.
func (g *Gateway) DeleteMany(ctx context.Context, objectKeys []string) error {
	if len(objectKeys) == 0 {
		return nil
	}

	objects := make([]s3types.ObjectIdentifier, 0, len(objectKeys))
	for _, key := range objectKeys {
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(key)})
	}

	_, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(g.bucket),
		Delete: &s3types.Delete{Objects: objects},
	})
	if err != nil {
		return fmt.Errorf("deleting %d objects: %w", len(objectKeys), err)
	}
	return nil
}
