package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrAssetNotFound is returned by Open when the referenced asset is gone.
var ErrAssetNotFound = errors.New("asset not found")

// AssetStore holds the normalized audio behind each sound. The reference
// returned by Put is what the catalog records as the sound's file_path.
type AssetStore interface {
	// Put moves the file at localPath into the store under id.
	Put(ctx context.Context, id, localPath string) (ref string, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Remove deletes the asset. Removing a missing asset is not an error.
	Remove(ctx context.Context, ref string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BucketStats 存储统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Stats summarises a listing.
func Stats(objects []ObjectInfo) BucketStats {
	var s BucketStats
	for _, o := range objects {
		s.TotalObjects++
		s.TotalSize += o.Size
		if o.LastModified.After(s.LastModified) {
			s.LastModified = o.LastModified
		}
	}
	return s
}

// assetName is the file or object name for a sound's normalized audio.
func assetName(id string) string {
	return id + ".mp3"
}
