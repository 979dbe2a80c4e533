// Package vectorstore persists vehicle embeddings and answers hybrid
// nearest-neighbor queries: cosine ranking over candidates that pass a set of
// conjunctive structured predicates. It is deliberately quiet — no logging in
// the library, callers decide how/what to log — and all ranking is
// deterministic (stable order for score ties).
//
// Above a configurable catalog size an in-memory approximate index
// accelerates unfiltered searches; it is rebuilt opportunistically (a cron
// job, never per write) and any index failure degrades to an exact scan
// rather than an error.
package vectorstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// ErrMissingKey is returned when an item lacks the (dealer, vehicle) pair
// that keys the catalog.
var ErrMissingKey = errors.New("vectorstore: dealer id and vehicle id are required")

const defaultTopK = 5

// Match pairs a catalog row with its similarity to the query vector.
type Match struct {
	Item  domain.VehicleEmbedding
	Score float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*Store)

// WithIndexMinRows sets the catalog size below which no approximate index is
// built and every search scans exactly.
func WithIndexMinRows(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.indexMinRows = n
		}
	}
}

// ----------------------------------------------------------------------------
// Store

// Store is the embedding catalog over a GORM handle. Safe for concurrent use.
type Store struct {
	db           *gorm.DB
	indexMinRows int

	// indexes maps dealer id to an immutable *annIndex. Rebuilds store a
	// fresh instance; BulkReplace deletes the entry so searches fall back
	// to exact scans until the next rebuild.
	indexes sync.Map
}

// New creates a Store. The default index threshold matches
// config.VectorConfig.IndexRebuildMinRows.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, indexMinRows: 256}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upsert inserts or updates one catalog row keyed by (dealer, vehicle).
// Re-sending the same item is a no-op apart from the refreshed timestamp.
func (s *Store) Upsert(ctx context.Context, item *domain.VehicleEmbedding) error {
	if item.DealerID == "" || item.VehicleID == "" {
		return ErrMissingKey
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dealer_id"}, {Name: "vehicle_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content", "vector", "make", "model", "year", "price",
			"fuel_type", "transmission", "body_type", "mileage",
			"available", "featured", "updated_at",
		}),
	}).Create(item).Error
}

// BulkReplace swaps a dealer's whole catalog for items inside one
// transaction. Any insert failure rolls the delete back too, so concurrent
// readers only ever observe the old or the new catalog, never a partial one.
func (s *Store) BulkReplace(ctx context.Context, dealerID string, items []domain.VehicleEmbedding) error {
	if dealerID == "" {
		return ErrMissingKey
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dealer_id = ?", dealerID).Delete(&domain.VehicleEmbedding{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range items {
			if items[i].VehicleID == "" {
				return ErrMissingKey
			}
			items[i].DealerID = dealerID
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
			}
			items[i].UpdatedAt = now
			if err := tx.Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// The old index still describes the pre-replace catalog; drop it.
	s.indexes.Delete(dealerID)
	return nil
}

// HybridSearch returns the topK available items closest to queryVec among
// those passing every set predicate, ranked by cosine similarity, ties broken
// by id. Unfiltered searches use the dealer's approximate index when one is
// built; filtered searches and any index-path failure scan exactly.
func (s *Store) HybridSearch(ctx context.Context, dealerID string, queryVec []float32, f Filter, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	if f.Empty() {
		if v, ok := s.indexes.Load(dealerID); ok {
			if out, err := s.searchIndexed(ctx, v.(*annIndex), queryVec, topK); err == nil {
				return out, nil
			}
		}
	}
	return s.searchExact(ctx, dealerID, queryVec, f, topK)
}

func (s *Store) searchExact(ctx context.Context, dealerID string, queryVec []float32, f Filter, topK int) ([]Match, error) {
	q := s.db.WithContext(ctx).
		Where("dealer_id = ? AND available = ?", dealerID, true)
	q = f.apply(q)

	var rows []domain.VehicleEmbedding
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rankRows(rows, queryVec, topK), nil
}

func (s *Store) searchIndexed(ctx context.Context, ix *annIndex, queryVec []float32, topK int) ([]Match, error) {
	candidates, err := ix.search(queryVec, topK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	var rows []domain.VehicleEmbedding
	// Availability is re-checked here: the index lags writes.
	if err := s.db.WithContext(ctx).
		Where("id IN ? AND available = ?", ids, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]domain.VehicleEmbedding, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if row, ok := byID[c.id]; ok {
			out = append(out, Match{Item: row, Score: c.score})
		}
	}
	return out, nil
}

func rankRows(rows []domain.VehicleEmbedding, queryVec []float32, topK int) []Match {
	buf := make([]Match, 0, len(rows))
	for _, r := range rows {
		v, err := DecodeVector(r.Vector)
		if err != nil || len(v) != len(queryVec) {
			continue // degenerate row, never fails the query
		}
		buf = append(buf, Match{Item: r, Score: cosineSimilarity(v, queryVec)})
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].Item.ID < buf[b].Item.ID
	})
	if topK > len(buf) {
		topK = len(buf)
	}
	return buf[:topK]
}

// ----------------------------------------------------------------------------
// Index maintenance

// RebuildIndex reconstructs the approximate index for one dealer. Catalogs
// below the threshold drop their index (exact scans are cheap enough) and a
// failed build does the same, returning the error for the caller to log —
// search itself never surfaces index trouble.
func (s *Store) RebuildIndex(ctx context.Context, dealerID string) error {
	type rowKey struct {
		ID     string
		Vector []byte
	}
	var rows []rowKey
	err := s.db.WithContext(ctx).
		Model(&domain.VehicleEmbedding{}).
		Select("id", "vector").
		Where("dealer_id = ? AND available = ?", dealerID, true).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return err
	}
	if len(rows) < s.indexMinRows {
		s.indexes.Delete(dealerID)
		return nil
	}

	ids := make([]string, len(rows))
	blobs := make([][]byte, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		blobs[i] = r.Vector
	}
	ix, err := buildANNIndex(ids, blobs)
	if err != nil {
		s.indexes.Delete(dealerID)
		return err
	}
	s.indexes.Store(dealerID, ix)
	return nil
}

// RebuildAll rebuilds every dealer's index. Per-dealer failures are joined
// rather than aborting the sweep.
func (s *Store) RebuildAll(ctx context.Context) error {
	var dealers []string
	err := s.db.WithContext(ctx).
		Model(&domain.VehicleEmbedding{}).
		Distinct("dealer_id").
		Pluck("dealer_id", &dealers).Error
	if err != nil {
		return err
	}
	var errs []error
	for _, d := range dealers {
		if err := s.RebuildIndex(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasIndex reports whether an approximate index is currently loaded for the
// dealer. Exposed for observability; search behavior does not depend on it.
func (s *Store) HasIndex(dealerID string) bool {
	_, ok := s.indexes.Load(dealerID)
	return ok
}

// ----------------------------------------------------------------------------
// Catalog reads for the REST surface

// ListAvailable returns up to limit available items, stable order.
func (s *Store) ListAvailable(ctx context.Context, dealerID string, limit int) ([]domain.VehicleEmbedding, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.VehicleEmbedding
	err := s.db.WithContext(ctx).
		Where("dealer_id = ? AND available = ?", dealerID, true).
		Order("make, model, year DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListFeatured returns up to limit featured, available items.
func (s *Store) ListFeatured(ctx context.Context, dealerID string, limit int) ([]domain.VehicleEmbedding, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.VehicleEmbedding
	err := s.db.WithContext(ctx).
		Where("dealer_id = ? AND available = ? AND featured = ?", dealerID, true, true).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountAvailable returns the size of a dealer's available catalog.
func (s *Store) CountAvailable(ctx context.Context, dealerID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&domain.VehicleEmbedding{}).
		Where("dealer_id = ? AND available = ?", dealerID, true).
		Count(&total).Error
	return total, err
}
