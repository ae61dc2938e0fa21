// Package storage issues presigned upload tickets for large audio files and
// reads the uploaded objects back when a request references them by key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// UploadExpiry is how long a presigned PUT URL stays valid.
const UploadExpiry = 10 * time.Minute

// KeyPrefix is the folder every uploaded object lands in.
const KeyPrefix = "uploads/"

// MaxObjectBytes caps how much of an object Fetch reads into memory.
const MaxObjectBytes = 512 << 20

var ErrInvalidKey = errors.New("storage: invalid object key")

type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint is a custom S3-compatible endpoint (e.g. MinIO). Path-style
	// addressing is used when set.
	Endpoint string
}

// UploadTicket is a single-use, time-bounded write credential.
type UploadTicket struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

type Object struct {
	Key         string
	Data        []byte
	ContentType string
}

type objectAPI interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

type Client struct {
	objects objectAPI
	presign *awss3.PresignClient
	bucket  string
	now     func() time.Time
	random  func() string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("storage: region, bucket, access key and secret are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)
	return &Client{
		objects: client,
		presign: awss3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		now:     time.Now,
		random:  randomToken,
	}, nil
}

// SignUpload returns a presigned PUT URL for a fresh key derived from filename.
func (c *Client) SignUpload(ctx context.Context, filename, contentType string) (UploadTicket, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return UploadTicket{}, errors.New("storage: filename is required")
	}

	now := c.now()
	key := NewKey(now, c.random(), filename)
	input := &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := c.presign.PresignPutObject(ctx, input, awss3.WithPresignExpires(UploadExpiry))
	if err != nil {
		return UploadTicket{}, fmt.Errorf("storage: presign put: %w", err)
	}
	return UploadTicket{URL: req.URL, Key: key, ExpiresAt: now.Add(UploadExpiry)}, nil
}

// Fetch reads the object stored under key.
func (c *Client) Fetch(ctx context.Context, key string) (Object, error) {
	if !ValidKey(key) {
		return Object{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	out, err := c.objects.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("storage: get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectBytes+1))
	if err != nil {
		return Object{}, fmt.Errorf("storage: read object %s: %w", key, err)
	}
	if len(data) > MaxObjectBytes {
		return Object{}, fmt.Errorf("storage: object %s exceeds %d bytes", key, MaxObjectBytes)
	}
	return Object{Key: key, Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

// NewKey builds uploads/<unix-millis>_<random>.<ext>.
func NewKey(now time.Time, random, filename string) string {
	return fmt.Sprintf("%s%d_%s.%s", KeyPrefix, now.UnixMilli(), random, extension(filename))
}

// ValidKey accepts only keys this service could have issued.
func ValidKey(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) {
		return false
	}
	name := strings.TrimPrefix(key, KeyPrefix)
	return name != "" && !strings.Contains(name, "/") && !strings.Contains(name, "..")
}

func extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		return "bin"
	}
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "bin"
	}
	return b.String()
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
