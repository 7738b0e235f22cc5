package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for S3 artifact uploads.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Publisher wraps LocalPublisher and additionally uploads each published
// artifact to S3, filling Artifact.RemoteURL.
type S3Publisher struct {
	*LocalPublisher
	client *s3.Client
	bucket string
	region string
}

// Compile-time check that S3Publisher implements Publisher.
var _ Publisher = (*S3Publisher)(nil)

// NewS3Publisher creates an S3Publisher. Local publication uses publicDir;
// cfg configures the S3 upload.
func NewS3Publisher(publicDir string, cfg S3Config) (*S3Publisher, error) {
	local, err := NewLocalPublisher(publicDir)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Publisher{
		LocalPublisher: local,
		client:         client,
		bucket:         cfg.Bucket,
		region:         cfg.Region,
	}, nil
}

// Publish publishes locally, then uploads the published file to S3.
// A failed upload does not undo the local publication; the local artifact
// stays valid and the error is returned.
func (p *S3Publisher) Publish(ctx context.Context, srcPath, base, suffix string) (Artifact, error) {
	artifact, err := p.LocalPublisher.Publish(ctx, srcPath, base, suffix)
	if err != nil {
		return Artifact{}, err
	}

	f, err := os.Open(artifact.AbsolutePath) // #nosec G304 - path produced by LocalPublisher
	if err != nil {
		return artifact, fmt.Errorf("open published artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(artifact.Name),
		Body:   f,
	})
	if err != nil {
		return artifact, fmt.Errorf("upload to S3: %w", err)
	}

	artifact.RemoteURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, artifact.Name)
	return artifact, nil
}
