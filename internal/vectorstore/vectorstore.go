// Package vectorstore is the Vector Store Gateway: creates/drops named
// collections with a fixed schema, upserts entities, deletes by predicate.
// Backed by Qdrant (github.com/qdrant/go-client), substituting for the
// spec's Milvus-flavored schema description — see DESIGN.md for the
// substitution rationale.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Entity is one chunk-level record upserted into a collection (spec §6).
// It has no sparse-vector field: the caller never sends one — Qdrant derives it
// server-side from TextContent via the collection's IDF modifier (spec §9
// Open Question (b)).
type Entity struct {
	ID          string
	DenseVector []float32
	TextContent string
	ObjectKey   string
	Category    string
	FileName    string
	UserID      int64
	FileID      int64
	ParentID    int64
}

const (
	denseVectorName  = "text_dense_vector"
	sparseVectorName = "text_sparse_vector"
)

// Gateway wraps a Qdrant gRPC client.
type Gateway struct {
	client         *qdrant.Client
	modelDimension uint64
}

// Config configures a Gateway.
type Config struct {
	URL            string
	APIKey         string
	ModelDimension int
}

// New constructs a Gateway from host:port.
func New(cfg Config) (*Gateway, error) {
	host, port, err := splitHostPort(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing vector store url %q: %w", cfg.URL, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	return &Gateway{client: client, modelDimension: uint64(cfg.ModelDimension)}, nil
}

// Ping verifies the vector store is reachable, for readiness checks.
func (g *Gateway) Ping(ctx context.Context) error {
	if _, err := g.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("pinging vector store: %w", err)
	}
	return nil
}

// CreateCollection creates a named collection with the fixed schema: a
// single dense vector (COSINE, size ModelDimension) plus a named sparse
// vector using Qdrant's IDF modifier, and payload indexes on user_id,
// file_id (keyword) and category (keyword).
func (g *Gateway) CreateCollection(ctx context.Context, name string) error {
	err := g.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     g.modelDimension,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:              qdrant.PtrOf(uint64(32)),
				EfConstruct:    qdrant.PtrOf(uint64(400)),
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {
				Modifier: qdrant.Modifier_Idf.Enum(),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", name, err)
	}

	for _, field := range []string{"user_id", "file_id"} {
		if err := g.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return fmt.Errorf("indexing %s on collection %q: %w", field, name, err)
		}
	}
	if err := g.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      "category",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	}); err != nil {
		return fmt.Errorf("indexing category on collection %q: %w", name, err)
	}

	return nil
}

// DropCollection deletes a named collection.
func (g *Gateway) DropCollection(ctx context.Context, name string) error {
	if _, err := g.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	return nil
}

// Upsert writes entities into the named collection. Only the dense vector is
// sent; text_content is stored as a payload field with no payload index.
func (g *Gateway) Upsert(ctx context.Context, collection string, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(entities))
	for _, e := range entities {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(e.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{denseVectorName: qdrant.NewVector(e.DenseVector...)}),
			Payload: qdrant.NewValueMap(map[string]any{
				"text_content": e.TextContent,
				"object_key":   e.ObjectKey,
				"category":     e.Category,
				"file_name":    e.FileName,
				"user_id":      e.UserID,
				"file_id":      e.FileID,
				"parent_id":    e.ParentID,
			}),
		})
	}

	_, err := g.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d entities into %q: %w", len(entities), collection, err)
	}
	return nil
}

// DeleteByFileID deletes all entities with payload file_id == fileID
// (spec's deleteOne predicate). A filter matching nothing is success (spec
// §9 Open Question (c)).
func (g *Gateway) DeleteByFileID(ctx context.Context, collection string, fileID int64) error {
	_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt("file_id", fileID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("deleting entities with file_id=%d from %q: %w", fileID, collection, err)
	}
	return nil
}
