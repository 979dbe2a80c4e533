// Package services – VehicleService
//
// Thin orchestration over the embedding store for the REST surface and the
// dispatch pipeline: embed the query text, extract structured predicates from
// it, and run the hybrid search.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/autoconversa/go-dealer-chat/internal/assistant"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

// VehicleService answers catalog queries.
type VehicleService struct {
	Store    *vectorstore.Store
	Embedder assistant.Embedder
	// TopK bounds result sizes when the caller passes none.
	TopK int
}

// NewVehicleService constructs a VehicleService.
func NewVehicleService(store *vectorstore.Store, emb assistant.Embedder, topK int) *VehicleService {
	if topK <= 0 {
		topK = 5
	}
	return &VehicleService{Store: store, Embedder: emb, TopK: topK}
}

// Search embeds the free-text query, extracts structured predicates from it,
// and runs the hybrid search. The returned filter is what was extracted, for
// callers that track qualification signals.
func (s *VehicleService) Search(ctx context.Context, dealerID, query string, limit int) ([]vectorstore.Match, vectorstore.Filter, error) {
	tr := otel.Tracer("services/VehicleService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("dealer.id", dealerID)),
	)
	defer span.End()

	if limit <= 0 {
		limit = s.TopK
	}
	f, _ := assistant.ParseSearchQuery(query)
	vec, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, f, err
	}
	matches, err := s.Store.HybridSearch(ctx, dealerID, vec, f, limit)
	return matches, f, err
}

// List returns up to limit available vehicles for a dealer.
func (s *VehicleService) List(ctx context.Context, dealerID string, limit int) ([]domain.VehicleEmbedding, error) {
	return s.Store.ListAvailable(ctx, dealerID, limit)
}

// Featured returns up to limit featured vehicles for a dealer.
func (s *VehicleService) Featured(ctx context.Context, dealerID string, limit int) ([]domain.VehicleEmbedding, error) {
	return s.Store.ListFeatured(ctx, dealerID, limit)
}
