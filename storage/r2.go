// Package storage uploads finished videos to Cloudflare R2 and issues
// presigned download URLs. R2 speaks the S3 protocol with path-style
// addressing and a fixed "auto" region.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const r2Region = "auto"

// presignClient is the slice of the presigner API the client uses.
// *s3.PresignClient satisfies it.
type presignClient interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures the R2 client.
type Options struct {
	Bucket          string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	UploadDirectory string
	PresignExpiry   time.Duration
}

// Client wraps the S3 API for a single R2 bucket.
type Client struct {
	s3Client  *s3.Client
	presigner presignClient

	bucket    string
	endpoint  string
	uploadDir string
	expiry    time.Duration
}

func New(ctx context.Context, opts Options) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(r2Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading storage credentials: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.EndpointURL)
		o.UsePathStyle = true
	})

	return &Client{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    opts.Bucket,
		endpoint:  strings.TrimSuffix(opts.EndpointURL, "/"),
		uploadDir: opts.UploadDirectory,
		expiry:    opts.PresignExpiry,
	}, nil
}

// Upload streams the file at filePath into the bucket under a fresh
// UUID-based key and returns the key.
func (c *Client) Upload(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening upload file: %w", err)
	}
	defer f.Close()

	ext := filepath.Ext(filePath)
	if ext == "" {
		ext = ".mp4"
	}
	key := path.Join(c.uploadDir, uuid.NewString()+ext)

	slog.Info("Uploading video", slog.String("bucket", c.bucket), slog.String("key", key))

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFor(ext)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading to r2://%s/%s: %w", c.bucket, key, err)
	}

	return key, nil
}

// PresignDownload returns a time-limited GET URL for key. When presigning
// fails it falls back to the unsigned endpoint URL, which only works for
// public buckets.
func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.expiry))
	if err != nil {
		slog.Error("Failed to presign download URL",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key), nil
	}
	return req.URL, nil
}

func contentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
