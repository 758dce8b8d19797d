package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore persists flow memory as one JSON object per flow in a
// gocloud.dev bucket. The bucket driver must be registered by the caller,
// e.g. by importing gocloud.dev/blob/fileblob or gocloud.dev/blob/s3blob.
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
	closed atomic.Bool
}

// NewBlobStore wraps an open bucket. Close closes the bucket.
func NewBlobStore(bucket *blob.Bucket, prefix string) *BlobStore {
	return &BlobStore{bucket: bucket, prefix: prefix}
}

// OpenBlobStore opens the bucket named by bucketURL.
func OpenBlobStore(ctx context.Context, bucketURL, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return NewBlobStore(bucket, prefix), nil
}

func (s *BlobStore) keyFor(flowID string) string {
	return s.prefix + url.PathEscape(flowID) + ".json"
}

// Load implements Store.
func (s *BlobStore) Load(ctx context.Context, flowID string) (map[string]any, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := s.bucket.ReadAll(ctx, s.keyFor(flowID))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("load memory for %s: %w", flowID, err)
	}
	return decode(data)
}

// Save implements Store.
func (s *BlobStore) Save(ctx context.Context, flowID string, data map[string]any) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	encoded, err := encode(flowID, data)
	if err != nil {
		return err
	}
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := s.bucket.WriteAll(ctx, s.keyFor(flowID), encoded, opts); err != nil {
		return fmt.Errorf("save memory for %s: %w", flowID, err)
	}
	return nil
}

// Delete implements Store.
func (s *BlobStore) Delete(ctx context.Context, flowID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	err := s.bucket.Delete(ctx, s.keyFor(flowID))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete memory for %s: %w", flowID, err)
	}
	return nil
}

// Close implements Store.
func (s *BlobStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.bucket.Close()
}
