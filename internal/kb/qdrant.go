/**
 * Qdrant Vector Index for ErrorScope Solutions
 *
 * Derived semantic index over the solutions table. Points are keyed by the
 * relational id so search results can be resolved back to authoritative
 * rows; the collection is rebuildable and never the source of truth.
 */

package kb

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const embeddingDimensions = 1024

// QdrantIndex implements VectorIndex over Qdrant's gRPC API
type QdrantIndex struct {
	points         qdrant.PointsClient
	collections    qdrant.CollectionsClient
	conn           *grpc.ClientConn
	collectionName string
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists
func NewQdrantIndex(address string, collectionName string) (*QdrantIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	index := &QdrantIndex{
		points:         qdrant.NewPointsClient(conn),
		collections:    qdrant.NewCollectionsClient(conn),
		conn:           conn,
		collectionName: collectionName,
	}

	if err := index.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return index, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	listResp, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     embeddingDimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert stores or replaces a solution's search vector
func (q *QdrantIndex) Upsert(ctx context.Context, id int64, vector []float32, payload map[string]string) error {
	if id <= 0 {
		return fmt.Errorf("positive solution id is required")
	}
	if len(vector) != embeddingDimensions {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d", embeddingDimensions, len(vector))
	}

	qdrantPayload := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		qdrantPayload[k] = &qdrant.Value{
			Kind: &qdrant.Value_StringValue{StringValue: v},
		}
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Num{Num: uint64(id)},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: vector},
			},
		},
		Payload: qdrantPayload,
	}

	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

// Query returns solution ids ranked by similarity, optionally filtered by
// application type
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, applicationType string, limit int) ([]int64, error) {
	if len(vector) != embeddingDimensions {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", embeddingDimensions, len(vector))
	}
	if limit <= 0 {
		limit = 10
	}

	searchReq := &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         vector,
		Limit:          uint64(limit),
	}

	if applicationType != "" {
		searchReq.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key: "application_type",
							Match: &qdrant.Match{
								MatchValue: &qdrant.Match_Keyword{Keyword: applicationType},
							},
						},
					},
				},
			},
		}
	}

	results, err := q.points.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	ids := make([]int64, 0, len(results.Result))
	for _, result := range results.Result {
		if result.Id == nil {
			continue
		}
		if num := result.Id.GetNum(); num > 0 {
			ids = append(ids, int64(num))
		}
	}
	return ids, nil
}

// Delete removes a solution's vector
func (q *QdrantIndex) Delete(ctx context.Context, id int64) error {
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{
						{PointIdOptions: &qdrant.PointId_Num{Num: uint64(id)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	return nil
}

// Close closes the gRPC connection
func (q *QdrantIndex) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ VectorIndex = (*QdrantIndex)(nil)
