package persist

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketConfig holds the object store connection used for s3:// targets.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether an object store is configured.
func (c BucketConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Bucket is an object store prefix used as a frame folder.
type Bucket struct {
	client *miniogo.Client
	bucket string
	prefix string
}

// OpenBucket connects to the object store and checks that bucket exists.
func OpenBucket(ctx context.Context, cfg BucketConfig, bucket, prefix string) (*Bucket, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		if resp := miniogo.ToErrorResponse(err); resp.Code == "AccessDenied" {
			return nil, fmt.Errorf("bucket %s: %w", bucket, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	return &Bucket{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (b *Bucket) Name() string {
	if b.prefix == "" {
		return "s3://" + b.bucket
	}
	return "s3://" + b.bucket + "/" + b.prefix
}

func (b *Bucket) Write(ctx context.Context, name string, blob []byte) error {
	key := path.Join(b.prefix, name)
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(blob), int64(len(blob)), miniogo.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
