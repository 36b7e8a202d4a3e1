package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/refmet/catmarket/internal/domain"
)

// archiveBatchLimit caps the number of listings exported per sweep so one
// run cannot hold the upload open indefinitely.
const archiveBatchLimit = 500

// ListingArchiveStore provides the listing queries the archiver needs. The
// Postgres ListingStore satisfies it implicitly.
type ListingArchiveStore interface {
	ListSoldBefore(ctx context.Context, before time.Time, limit int) ([]domain.Listing, error)
	MarkArchived(ctx context.Context, id string, at time.Time) error
}

// TenderArchiveStore provides read access to a listing's tender set.
type TenderArchiveStore interface {
	ListByListing(ctx context.Context, listingID string) ([]domain.Tender, error)
}

// ArchiveImpl implements domain.Archiver by exporting settled listings with
// their full tender sets as JSONL to blob storage. Listings are marked
// archived only after the upload succeeds, so a failed run is simply
// retried by the next sweep.
type ArchiveImpl struct {
	writer   *Writer
	listings ListingArchiveStore
	tenders  TenderArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer *Writer,
	listings ListingArchiveStore,
	tenders TenderArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		listings: listings,
		tenders:  tenders,
		audit:    audit,
	}
}

// ArchiveSettlements exports every unarchived listing sold strictly before
// the cutoff. The export is one JSONL object per run under
// archive/settlements/, one SettlementRecord per line. It returns the number
// of listings archived.
func (a *ArchiveImpl) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	listings, err := a.listings.ListSoldBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, listing := range listings {
		tenders, err := a.tenders.ListByListing(ctx, listing.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive tenders for %s: %w", listing.ID, err)
		}
		record := domain.SettlementRecord{
			Listing: listing,
			Tenders: tenders,
		}
		if err := enc.Encode(record); err != nil {
			return 0, fmt.Errorf("s3blob: encode settlement record %s: %w", listing.ID, err)
		}
	}

	now := time.Now().UTC()
	path := fmt.Sprintf("archive/settlements/%s/%s.jsonl",
		now.Format("2006-01"), now.Format("20060102T150405Z"))

	if int64(buf.Len()) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, &buf, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: upload settlement archive: %w", err)
	}

	archivedAt := time.Now().UTC()
	for _, listing := range listings {
		if err := a.listings.MarkArchived(ctx, listing.ID, archivedAt); err != nil {
			return 0, fmt.Errorf("s3blob: mark listing %s archived: %w", listing.ID, err)
		}
	}

	if a.audit != nil {
		_ = a.audit.Log(ctx, "settlements_archived", map[string]any{
			"count":  len(listings),
			"path":   path,
			"cutoff": before.UTC().Format(time.RFC3339),
		})
	}

	return int64(len(listings)), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
