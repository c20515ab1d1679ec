package persist

import (
	"context"
	"fmt"
	"strings"
)

const bucketScheme = "s3://"

// Grant resolves a location typed by the user into a Target. An empty
// location is a cancelled selection. s3:// locations need an object store
// in cfg, otherwise the capability is reported as unsupported.
func Grant(ctx context.Context, location string, cfg BucketConfig) (Target, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrCancelled
	}

	if rest, ok := strings.CutPrefix(location, bucketScheme); ok {
		if !cfg.Enabled() {
			return nil, fmt.Errorf("object store folders: %w", ErrUnsupported)
		}
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("missing bucket name in '%s'", location)
		}
		b, err := OpenBucket(ctx, cfg, bucket, prefix)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	if strings.Contains(location, "://") {
		return nil, fmt.Errorf("folder '%s': %w", location, ErrUnsupported)
	}

	dir, err := OpenDirectory(location)
	if err != nil {
		return nil, err
	}
	return dir, nil
}
