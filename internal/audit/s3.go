package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of the S3 API used by S3Sink. *s3.Client
// satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ S3Client = (*s3.Client)(nil)

// S3Sink stores one object per request under an optional key prefix.
// Objects are written with If-None-Match so an existing record is never
// overwritten; a second write for the same request fails with ErrExists.
type S3Sink struct {
	client S3Client
	bucket string
	prefix string
}

var _ Sink = (*S3Sink)(nil)

// NewS3Sink creates an S3-backed sink. The client must be configured with
// credentials, region and endpoint by the caller.
func NewS3Sink(client S3Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Sink) key(requestID string) string {
	if s.prefix == "" {
		return objectName(requestID)
	}
	return path.Join(s.prefix, objectName(requestID))
}

// Write uploads rows and returns the s3:// URI of the object.
func (s *S3Sink) Write(ctx context.Context, requestID string, rows []Row) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, rows, true); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAudit, err)
	}

	key := s.key(requestID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isPreconditionFailed(err) {
			return "", fmt.Errorf("%w: s3://%s/%s", ErrExists, s.bucket, key)
		}
		return "", fmt.Errorf("%w: put s3://%s/%s: %v", ErrAudit, s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region       string
	Endpoint     string // empty for AWS; set for MinIO, R2 and other compatibles
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3Client builds an *s3.Client from static credentials.
func NewS3Client(o S3Options) *s3.Client {
	opts := s3.Options{
		Region:       o.Region,
		UsePathStyle: o.UsePathStyle,
		Credentials:  credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""),
	}
	if o.Endpoint != "" {
		opts.BaseEndpoint = aws.String(o.Endpoint)
	}
	return s3.New(opts)
}
