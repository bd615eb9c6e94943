package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSLister enumerates a Google Cloud Storage bucket. The public
// dataset bucket needs no credentials; authenticated mirrors use
// application default credentials.
type GCSLister struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewGCSLister(ctx context.Context, bucket, baseURL string, public bool) (*GCSLister, error) {
	var opts []option.ClientOption
	if public {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	slog.Info("GCS lister initialized", "bucket", bucket, "public", public)

	return &GCSLister{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (l *GCSLister) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	it := l.client.Bucket(l.bucket).Objects(ctx, &storage.Query{})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate bucket %s: %w", l.bucket, err)
		}

		objects = append(objects, Object{
			Name:        attrs.Name,
			URL:         l.baseURL + "/" + attrs.Name,
			ContentType: attrs.ContentType,
			SizeBytes:   attrs.Size,
		})
	}

	slog.Debug("Listed GCS objects", "bucket", l.bucket, "count", len(objects))
	return objects, nil
}

func (l *GCSLister) Close() error {
	return l.client.Close()
}
