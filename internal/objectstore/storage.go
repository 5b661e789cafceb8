// Package objectstore defines the remote object-storage contract the upload
// pipeline drives. The gateway is stateless and never retries; retry
// decisions belong to the caller (the upload queue or an explicit user
// retry).
package objectstore

import "context"

type ObjectInfo struct {
	Path string
	Size int64
}

type Gateway interface {
	// Put stores data under bucket/path and returns the stored path.
	Put(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	// PublicURL resolves the public URL for a stored object.
	PublicURL(bucket, path string) string
	Remove(ctx context.Context, bucket, path string) error
	// List returns objects under prefix with their sizes. An empty prefix
	// lists the whole bucket.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// BucketStats aggregates List results for user-facing storage accounting.
type BucketStats struct {
	Count int
	Bytes int64
}

func Stats(ctx context.Context, gw Gateway, buckets ...string) (map[string]BucketStats, error) {
	stats := make(map[string]BucketStats, len(buckets))
	for _, bucket := range buckets {
		objects, err := gw.List(ctx, bucket, "")
		if err != nil {
			return nil, err
		}
		var s BucketStats
		for _, obj := range objects {
			s.Count++
			s.Bytes += obj.Size
		}
		stats[bucket] = s
	}
	return stats, nil
}
