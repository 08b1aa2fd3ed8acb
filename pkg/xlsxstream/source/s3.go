package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

// s3API is the subset of *s3.Client this package calls, narrowed for
// testability (a fake can satisfy this without standing up aws-sdk-go-v2's
// full client).
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type s3Source struct {
	bucket string
	key    string
	region string
	client s3API
}

// S3Option configures an S3 Source.
type S3Option func(*s3Source)

// WithRegion pins the AWS region, overriding SDK auto-discovery.
func WithRegion(region string) S3Option {
	return func(s *s3Source) { s.region = region }
}

// WithS3Client overrides the S3 client entirely, primarily for tests or for
// callers pointing at an S3-compatible store via a custom endpoint resolver.
func WithS3Client(client s3API) S3Option {
	return func(s *s3Source) { s.client = client }
}

// S3 returns a Source that streams an object from an S3-compatible object
// store. Credentials are discovered via the AWS SDK's standard chain
// (environment variables, shared config/credentials files, EC2/ECS instance
// role) unless WithS3Client supplies a preconfigured client.
func S3(bucket, key string, opts ...S3Option) Source {
	s := &s3Source{bucket: bucket, key: key}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *s3Source) resolveClient(ctx context.Context) (s3API, error) {
	if s.client != nil {
		return s.client, nil
	}
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if s.region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(s.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindAuth, "failed to load AWS credentials", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (s *s3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	client, err := s.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, mapS3Err(s.bucket, s.key, err)
	}
	return out.Body, nil
}

func (s *s3Source) Metadata(ctx context.Context) (Metadata, error) {
	client, err := s.resolveClient(ctx)
	if err != nil {
		return Metadata{}, err
	}

	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return Metadata{}, mapS3Err(s.bucket, s.key, err)
	}

	md := Metadata{Origin: OriginS3, Size: out.ContentLength}
	if out.ContentType != nil {
		md.ContentType = *out.ContentType
	} else {
		md.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return md, nil
}

func mapS3Err(bucket, key string, err error) error {
	loc := fmt.Sprintf("s3://%s/%s", bucket, key)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return xerrors.Wrap(xerrors.KindNotFound, fmt.Sprintf("not found: %s", loc), err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return xerrors.Wrap(xerrors.KindAuth, fmt.Sprintf("access denied: %s", loc), err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() >= 500 {
		return xerrors.Wrap(xerrors.KindServiceError, fmt.Sprintf("object store error: %s", loc), err)
	}

	return xerrors.Wrap(xerrors.KindNetwork, fmt.Sprintf("failed to read %s", loc), err)
}
