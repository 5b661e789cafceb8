package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local is a filesystem-backed gateway: one directory per bucket under a
// root, with per-bucket size ceilings mirroring the remote buckets'
// file-size limits.
type Local struct {
	root       string
	baseURL    string
	sizeLimits map[string]int64
}

func NewLocal(root, publicBaseURL string, sizeLimits map[string]int64) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{
		root:       root,
		baseURL:    strings.TrimSuffix(publicBaseURL, "/"),
		sizeLimits: sizeLimits,
	}, nil
}

func (l *Local) resolve(bucket, path string) (string, error) {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid path")
	}
	if bucket == "" || strings.ContainsAny(bucket, "/\\.") {
		return "", fmt.Errorf("invalid bucket")
	}
	return filepath.Join(l.root, bucket, clean), nil
}

func (l *Local) Put(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if limit, ok := l.sizeLimits[bucket]; ok && int64(len(data)) > limit {
		return "", fmt.Errorf("object exceeds bucket %s size limit (%d > %d bytes)", bucket, len(data), limit)
	}

	fullPath, err := l.resolve(bucket, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return path, nil
}

func (l *Local) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", l.baseURL, bucket, path)
}

func (l *Local) Remove(ctx context.Context, bucket, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := l.resolve(bucket, path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (l *Local) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucketDir := filepath.Join(l.root, bucket)
	if _, err := os.Stat(bucketDir); os.IsNotExist(err) {
		return nil, nil
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(bucketDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
	}
	return objects, nil
}
