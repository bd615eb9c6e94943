package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Lister enumerates an S3 or S3-compatible mirror of the dataset
// bucket.
type S3Lister struct {
	client  *s3.Client
	bucket  string
	prefix  string
	baseURL string
}

func NewS3Lister(ctx context.Context, bucket, region, prefix, endpoint, baseURL string, maxRetryAttempts int) (*S3Lister, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(region))

	if maxRetryAttempts > 0 {
		configOpts = append(configOpts,
			awsconfig.WithRetryMaxAttempts(maxRetryAttempts),
			awsconfig.WithRetryMode(aws.RetryModeStandard),
		)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if endpoint != "" {
		if accessKey := os.Getenv("AWS_ACCESS_KEY_ID"); accessKey != "" {
			if secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY"); secretKey != "" {
				cfg.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
			}
		}
	}

	var client *s3.Client
	if endpoint != "" {
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		slog.Info("S3 client initialized with custom endpoint", "endpoint", endpoint)
	} else {
		client = s3.NewFromConfig(cfg)
	}

	if baseURL == "" {
		if endpoint != "" {
			baseURL = strings.TrimSuffix(endpoint, "/") + "/" + bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
		}
	}

	return &S3Lister{
		client:  client,
		bucket:  bucket,
		prefix:  strings.TrimPrefix(prefix, "/"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (l *S3Lister) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", l.bucket, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(strings.TrimPrefix(key, l.prefix), "/")
			// List results carry no declared content type; the server
			// is authoritative at import time anyway.
			objects = append(objects, Object{
				Name:      name,
				URL:       l.baseURL + "/" + key,
				SizeBytes: aws.ToInt64(obj.Size),
			})
		}
	}

	slog.Debug("Listed S3 objects", "bucket", l.bucket, "count", len(objects))
	return objects, nil
}

// VerifyCredentials confirms the mirror bucket is reachable before a
// run commits to it.
func (l *S3Lister) VerifyCredentials(ctx context.Context) error {
	_, err := l.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(l.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to verify AWS credentials or bucket access: %w", err)
	}
	return nil
}
