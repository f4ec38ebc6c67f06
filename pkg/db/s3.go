package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"voice-dashboard/pkg/domain"
)

// S3Client abstracts the S3 API operations used by S3BlobStore.
// The *s3.Client type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Config holds the settings of an S3-compatible object store (AWS, MinIO, R2).
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL is where objects are publicly served from. Defaults to
	// <Endpoint>/<Bucket>.
	PublicBaseURL string
}

// NewS3Client builds an *s3.Client with static credentials and path-style addressing.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// S3BlobStore keeps files in one bucket of an S3-compatible object store.
type S3BlobStore struct {
	client        S3Client
	bucket        string
	publicBaseURL string
}

// NewS3BlobStore creates a blob store. publicBaseURL is prepended to object
// keys to build public URLs.
func NewS3BlobStore(client S3Client, bucket, publicBaseURL string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// NewS3BlobStoreFromConfig wires a real S3 client from cfg.
func NewS3BlobStoreFromConfig(cfg S3Config) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	base := cfg.PublicBaseURL
	if base == "" {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("s3 endpoint or public base URL is required")
		}
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return NewS3BlobStore(NewS3Client(cfg), cfg.Bucket, base), nil
}

func (s *S3BlobStore) Put(ctx context.Context, path string, r io.Reader, contentType string) error {
	// Never overwrite an existing object.
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}); err == nil {
		return fmt.Errorf("upload %s: %w", path, ErrDuplicate)
	} else if !isS3NotFound(err) {
		return &domain.BackendError{Message: "upload " + path + ": " + err.Error()}
	}

	// PutObject needs a seekable body to sign the payload.
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(path),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(fmt.Sprintf("max-age=%d", DefaultCacheControl)),
	})
	if err != nil {
		return &domain.BackendError{Message: "upload " + path + ": " + err.Error()}
	}
	return nil
}

func (s *S3BlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("download %s: %w", path, domain.ErrNotFound)
		}
		return nil, &domain.BackendError{Message: "download " + path + ": " + err.Error()}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Remove deletes paths. S3 DeleteObject already succeeds for missing keys.
func (s *S3BlobStore) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(p),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *S3BlobStore) PublicURL(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + strings.Join(segments, "/")
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var (
	_ BlobStore    = (*S3BlobStore)(nil)
	_ BlobStore    = (*SupabaseBlobStore)(nil)
	_ RecordStore  = (*SupabaseRecordStore)(nil)
	_ RecordStore  = (*PostgresRecordStore)(nil)
	_ RecordStore  = (*MongoRecordStore)(nil)
	_ ProfileStore = (*SupabaseProfileStore)(nil)
)
