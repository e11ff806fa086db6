package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/groupfiles/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Deriver schedules asynchronous derivations of a stored object and
// returns the keys the derived objects will be stored under.
type Deriver interface {
	Derive(ctx context.Context, req DeriveRequest) ([]string, error)
}

// DeriveRequest describes a stored object to derive from.
type DeriveRequest struct {
	Folder      string
	ObjectID    string
	ContentType string
	Tags        []string
	Data        []byte
	Transform   Transform
}

// Discarder is implemented by derivers that can drop a scheduled
// derivation. Discard reports whether objectID was still pending; its
// output is then removed as soon as it is produced.
type Discarder interface {
	Discard(objectID string) bool
}

type S3Config struct {
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	BaseEndpoint  string
	PublicBaseURL string
}

// S3Store implements ObjectStore on top of S3 or MinIO.
type S3Store struct {
	client  s3API
	presign presignAPI
	cfg     S3Config
	deriver Deriver
	logger  logging.Logger
}

func NewS3Store(ctx context.Context, c S3Config, l logging.Logger) (*S3Store, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey,
			c.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Store{
		client:  client,
		presign: newS3PresignClient(client),
		cfg:     c,
		logger:  l.With("module", "storage"),
	}, nil
}

// SetDeriver installs the handler for Transform requests.
func (s *S3Store) SetDeriver(d Deriver) {
	s.deriver = d
}

// Put streams data to the bucket under Folder/ObjectID.
func (s *S3Store) Put(ctx context.Context, data []byte, opts PutOptions) (*PutResult, error) {
	if opts.ObjectID == "" {
		return nil, errors.New("s3: object id is required")
	}
	key := objectKey(opts.Folder, opts.ObjectID)
	meta := map[string]string{"kind": opts.ResourceKind}
	if len(opts.Tags) > 0 {
		meta["tags"] = strings.Join(opts.Tags, ",")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(data, opts.Progress),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(opts.ContentType),
		Metadata:      meta,
	}, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug(ctx, "object stored", "object_id", key, "kind", opts.ResourceKind, "bytes", len(data))

	return &PutResult{
		URL:      s.objectURL(key),
		ObjectID: key,
		Bytes:    int64(len(data)),
		Format:   formatOf(opts),
	}, nil
}

// Derive hands req to the installed deriver, if any.
func (s *S3Store) Derive(ctx context.Context, req DeriveRequest) ([]DerivedObject, error) {
	if s.deriver == nil || req.Transform.StreamingProfile == "" {
		return nil, nil
	}
	keys, err := s.deriver.Derive(ctx, req)
	if err != nil {
		return nil, err
	}
	derived := make([]DerivedObject, 0, len(keys))
	for _, k := range keys {
		derived = append(derived, DerivedObject{ObjectID: k, URL: s.objectURL(k)})
	}
	return derived, nil
}

// Delete removes objectID. A derivation still pending under that key is
// discarded first so it cannot recreate the object later.
func (s *S3Store) Delete(ctx context.Context, objectID string) error {
	if d, ok := s.deriver.(Discarder); ok && d.Discard(objectID) {
		s.logger.Debug(ctx, "pending derivation discarded", "object_id", objectID)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", objectID, err)
	}
	return nil
}

// PresignGet returns a time-limited download URL for objectID.
func (s *S3Store) PresignGet(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectID),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectID, err)
	}
	return req.URL, nil
}

// objectURL is the public locator of key. Without a public base URL the
// path-style endpoint URL is used, or the virtual-hosted AWS one.
func (s *S3Store) objectURL(key string) string {
	base := s.cfg.PublicBaseURL
	switch {
	case base != "":
	case s.cfg.BaseEndpoint != "":
		base = strings.TrimRight(s.cfg.BaseEndpoint, "/") + "/" + s.cfg.Bucket
	default:
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.Bucket, s.cfg.Region)
	}
	return strings.TrimRight(base, "/") + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
