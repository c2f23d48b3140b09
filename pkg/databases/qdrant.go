// Package databases provides the vector-store contract and its Qdrant
// implementation.
package databases

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/cogitoproject/cogito/pkg/config"
)

// QueryRequest is one nearest-neighbor search: a query vector, a hit limit
// and an optional exact-match filter (conjunction over string payload keys).
type QueryRequest struct {
	Vector []float32
	Limit  int
	Filter map[string]string
}

// SearchHit is one scored point returned from the store.
type SearchHit struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
	Score    float32
}

// VectorDatabase is the opaque query backend the source adapters depend on.
// Implementations must be safe for concurrent use.
type VectorDatabase interface {
	// BatchQuery runs all requests in a single round trip and returns one
	// hit list per request, in request order.
	BatchQuery(ctx context.Context, requests []QueryRequest) ([][]SearchHit, error)

	Close() error
}

type qdrantDatabase struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantDatabaseFromConfig(cfg *config.VectorStoreConfig) (VectorDatabase, error) {
	useTLS := false
	if cfg.EnableTLS != nil {
		useTLS = *cfg.EnableTLS
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &qdrantDatabase{
		client:     client,
		collection: cfg.Collection,
	}, nil
}

func (db *qdrantDatabase) BatchQuery(ctx context.Context, requests []QueryRequest) ([][]SearchHit, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	searchPoints := make([]*qdrant.SearchPoints, 0, len(requests))
	for _, req := range requests {
		sp := &qdrant.SearchPoints{
			CollectionName: db.collection,
			Vector:         req.Vector,
			Limit:          uint64(req.Limit),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		}
		if len(req.Filter) > 0 {
			sp.Filter = buildQdrantFilter(req.Filter)
		}
		searchPoints = append(searchPoints, sp)
	}

	pointsClient := db.client.GetPointsClient()
	response, err := pointsClient.SearchBatch(ctx, &qdrant.SearchBatchPoints{
		CollectionName: db.collection,
		SearchPoints:   searchPoints,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to batch search points: %w", err)
	}

	results := make([][]SearchHit, len(requests))
	for i, batch := range response.GetResult() {
		if i >= len(results) {
			break
		}
		results[i] = convertQdrantHits(batch.GetResult())
	}

	return results, nil
}

func (db *qdrantDatabase) Close() error {
	return db.client.Close()
}

func buildQdrantFilter(filter map[string]string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))

	for key, value := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{
							Keyword: value,
						},
					},
				},
			},
		})
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

func convertQdrantHits(points []*qdrant.ScoredPoint) []SearchHit {
	var hits []SearchHit
	for _, point := range points {

		var id string
		if point.Id != nil && point.Id.PointIdOptions != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", idType.Num)
			}
		}

		metadata := make(map[string]interface{})
		for key, value := range point.GetPayload() {
			switch v := value.Kind.(type) {
			case *qdrant.Value_StringValue:
				metadata[key] = v.StringValue
			case *qdrant.Value_IntegerValue:
				metadata[key] = v.IntegerValue
			case *qdrant.Value_DoubleValue:
				metadata[key] = v.DoubleValue
			case *qdrant.Value_BoolValue:
				metadata[key] = v.BoolValue
			default:
				metadata[key] = value
			}
		}

		content := ""
		if textValue, exists := metadata["text"]; exists {
			if textStr, ok := textValue.(string); ok {
				content = textStr
			}
		}

		hits = append(hits, SearchHit{
			ID:       id,
			Content:  content,
			Metadata: metadata,
			Score:    point.Score,
		})
	}

	return hits
}
