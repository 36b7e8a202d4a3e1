package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobReader reads objects and object listings from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// Archiver exports settled listings to blob storage for bookkeeping.
type Archiver interface {
	// ArchiveSettlements writes every unarchived listing sold strictly
	// before the cutoff, together with its full tender set, as JSONL. It
	// returns the number of listings archived.
	ArchiveSettlements(ctx context.Context, before time.Time) (int64, error)
}
