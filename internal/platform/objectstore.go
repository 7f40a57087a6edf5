package platform

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStoreConfig holds the parameters for connecting to the
// S3-compatible object store.
type ObjectStoreConfig struct {
	Endpoint  string // full URL, e.g. http://localhost:9000
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client creates an S3 client against an S3-compatible endpoint.
// Path-style addressing is forced so bucket names resolve against
// self-hosted stores like MinIO.
func NewS3Client(ctx context.Context, cfg ObjectStoreConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &cfg.Endpoint
		o.UsePathStyle = true
	})
	return client, nil
}
