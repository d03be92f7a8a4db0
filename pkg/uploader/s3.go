package uploader

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/heyjunin/HLSdrop/pkg/errors"
)

// S3Options configures the S3 host.
type S3Options struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	// Endpoint points at an S3-compatible service (MinIO, R2). Empty uses AWS.
	Endpoint string `yaml:"endpoint"`
	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
	// PublicBaseURL is where objects are readable, e.g. https://cdn.example.com.
	PublicBaseURL string `yaml:"public_base_url"`
	UsePathStyle  bool   `yaml:"use_path_style"`
}

// ObjectPutter is the part of the S3 client the host needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores artifacts as objects under <prefix>/<run>/<name>.
type S3 struct {
	client ObjectPutter
	opts   S3Options
	run    string
}

// NewS3 builds an S3 host from the default AWS credential chain.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New(errors.ValidationError, "S3 bucket is required", "", errors.ErrInvalidOption)
	}
	if opts.PublicBaseURL == "" {
		return nil, errors.New(errors.ValidationError, "S3 public base URL is required", "", errors.ErrInvalidOption)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.UploadError, "Failed to load AWS configuration", errors.ErrInvalidOption)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewS3WithClient(client, opts), nil
}

// NewS3WithClient builds an S3 host around an existing client.
func NewS3WithClient(client ObjectPutter, opts S3Options) *S3 {
	return &S3{client: client, opts: opts}
}

// ForRun returns a copy of the host that writes under a run-specific directory.
func (s *S3) ForRun(id string) Host {
	c := *s
	c.run = id
	return &c
}

// Name implements Host.
func (s *S3) Name() string { return "S3" }

// Upload implements Host.
func (s *S3) Upload(ctx context.Context, art Artifact) (string, error) {
	key := path.Join(strings.Trim(s.opts.Prefix, "/"), s.run, art.Name)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        art.Body,
		ContentType: aws.String(art.Kind.ContentType()),
	}
	if art.Size >= 0 {
		input.ContentLength = aws.Int64(art.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", errors.Wrap(err, errors.UploadError, errors.GetErrorMessage(errors.ErrUploadRequestFailed), errors.ErrUploadRequestFailed)
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(s.opts.PublicBaseURL, "/"), key), nil
}
