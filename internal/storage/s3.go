package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/portfolio-globe/backend/internal/config"
	"github.com/portfolio-globe/backend/pkg/logger"
)

const imagePrefix = "images/"

// Image is a cached upstream response body.
type Image struct {
	Data        []byte
	ContentType string
}

// ImageCache stores proxied images by their source URL.
type ImageCache interface {
	Get(ctx context.Context, url string) (Image, bool, error)
	Put(ctx context.Context, url string, img Image) error
	Purge(ctx context.Context) (int, error)
}

// ObjectAPI is the subset of the S3 client the cache needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// NewS3Client builds a path-style client from the storage settings.
func NewS3Client(ctx context.Context, cfg config.Storage) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.Access != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Access,
			cfg.Secret,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// NewImageCache returns an S3Cache when a bucket is configured and a
// MemoryCache bounded by cfg.Memory bytes otherwise.
func NewImageCache(ctx context.Context, cfg config.Storage) (ImageCache, error) {
	if cfg.Bucket == "" {
		return NewMemoryCache(cfg.Memory), nil
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	logger.Info("[Storage] caching proxied images in S3", "bucket", cfg.Bucket)
	return NewS3Cache(client, cfg.Bucket), nil
}

// ImageKey is the object key of a source URL.
func ImageKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return imagePrefix + hex.EncodeToString(sum[:])
}

// S3Cache keeps proxied images in a bucket.
type S3Cache struct {
	client ObjectAPI
	bucket string
}

func NewS3Cache(client ObjectAPI, bucket string) *S3Cache {
	return &S3Cache{client: client, bucket: bucket}
}

func (c *S3Cache) Get(ctx context.Context, url string) (Image, bool, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ImageKey(url)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return Image{}, false, nil
		}
		return Image{}, false, fmt.Errorf("get cached image: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return Image{}, false, fmt.Errorf("read cached image: %w", err)
	}
	return Image{Data: buf.Bytes(), ContentType: aws.ToString(result.ContentType)}, true, nil
}

func (c *S3Cache) Put(ctx context.Context, url string, img Image) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ImageKey(url)),
		Body:   bytes.NewReader(img.Data),
	}
	if img.ContentType != "" {
		in.ContentType = aws.String(img.ContentType)
	}
	if _, err := c.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put cached image: %w", err)
	}
	return nil
}

// Purge deletes every cached image and reports how many were removed.
func (c *S3Cache) Purge(ctx context.Context) (int, error) {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(imagePrefix),
	}

	deleted := 0
	for {
		listOutput, err := c.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return deleted, fmt.Errorf("list cached images: %w", err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		var objects []types.ObjectIdentifier
		for _, obj := range listOutput.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete cached images: %w", err)
		}
		deleted += len(objects)

		if aws.ToBool(listOutput.IsTruncated) {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}
	return deleted, nil
}
