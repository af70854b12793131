package sheetstore

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
)

// S3Blob stores the workbook in an S3 (or S3-compatible) object, using ETags as preconditions.
type S3Blob struct {
	client *s3.Client
	bucket string
	key    string
}

var _ Blob = (*S3Blob)(nil)

type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // optional, for MinIO or LocalStack
}

func NewS3Blob(ctx context.Context, cfg S3Config) (*S3Blob, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, core.NewStoreError("open", errors.Wrap(err, "loading aws config"), true)
	}
	if awsCfg.Credentials != nil {
		awsCfg.Credentials = markedCredentials{awsCfg.Credentials}
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Blob{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

func (b *S3Blob) Read(ctx context.Context) ([]byte, string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrNotExist
		}
		return nil, "", classifyS3("load", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", classifyS3("load", err)
	}
	return data, aws.ToString(out.ETag), nil
}

func (b *S3Blob) Write(ctx context.Context, data []byte, gen string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if gen == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(gen)
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return classifyS3("save", err)
	}
	return nil
}

func (b *S3Blob) Close() error { return nil }

// credentialsError marks a failure of the credential chain, as opposed to a failure of S3 itself.
type credentialsError struct {
	err error
}

func (e *credentialsError) Error() string { return "resolving aws credentials: " + e.err.Error() }
func (e *credentialsError) Unwrap() error { return e.err }

type markedCredentials struct {
	aws.CredentialsProvider
}

func (m markedCredentials) Retrieve(ctx context.Context) (aws.Credentials, error) {
	creds, err := m.CredentialsProvider.Retrieve(ctx)
	if err != nil {
		return creds, &credentialsError{err: err}
	}
	return creds, nil
}

var fatalS3Codes = map[string]bool{
	"AccessDenied":                 true,
	"AllAccessDisabled":            true,
	"AuthorizationHeaderMalformed": true,
	"InvalidAccessKeyId":           true,
	"InvalidBucketName":            true,
	"NoSuchBucket":                 true,
	"SignatureDoesNotMatch":        true,
}

// classifyS3 turns an S3 failure into ErrPrecondition or a StoreError.
// Credential, permission and bucket errors are fatal; anything else is retryable.
func classifyS3(op string, err error) error {
	var credErr *credentialsError
	if errors.As(err, &credErr) {
		return core.NewStoreError(op, err, true)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "PreconditionFailed" || code == "ConditionalRequestConflict":
			return ErrPrecondition
		case fatalS3Codes[code]:
			return core.NewStoreError(op, err, true)
		}
	}
	return core.NewStoreError(op, err, false)
}
