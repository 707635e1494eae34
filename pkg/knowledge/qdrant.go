package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the remote vector backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
	Collection string `yaml:"collection"`
}

// QdrantSearcher is the remote vector backend for deployments whose
// knowledge base outgrows a single process. Embeddings are computed
// locally and queried against a Qdrant collection over gRPC.
type QdrantSearcher struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
}

// NewQdrantSearcher connects to Qdrant and ensures the collection exists.
func NewQdrantSearcher(ctx context.Context, cfg QdrantConfig, embedder Embedder) (*QdrantSearcher, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334 // gRPC port
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge"
	}
	if embedder == nil {
		embedder = NewHashEmbedder()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	s := &QdrantSearcher{
		client:     client,
		embedder:   embedder,
		collection: cfg.Collection,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantSearcher) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimension()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create collection %q: %w", s.collection, err)
	}
	return nil
}

// Index upserts articles into the collection.
func (s *QdrantSearcher) Index(ctx context.Context, articles []IndexedArticle) error {
	points := make([]*qdrant.PointStruct, 0, len(articles))
	for _, article := range articles {
		vector, err := s.embedder.Embed(ctx, article.Title+"\n"+article.Content)
		if err != nil {
			return fmt.Errorf("embed article %s: %w", article.ID, err)
		}
		payload := map[string]*qdrant.Value{
			"title":      qdrant.NewValueString(article.Title),
			"content":    qdrant.NewValueString(article.Content),
			"category":   qdrant.NewValueString(article.Category),
			"tags":       qdrant.NewValueString(strings.Join(article.Tags, ",")),
			"updated_at": qdrant.NewValueString(article.UpdatedAt.Format(time.RFC3339)),
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(article.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Search embeds the query locally and runs a similarity search.
func (s *QdrantSearcher) Search(ctx context.Context, query string, limit int) ([]VectorHit, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	hits := make([]VectorHit, 0, len(points))
	for _, point := range points {
		hit := VectorHit{
			ID:         pointID(point.Id),
			Similarity: float64(point.Score),
		}
		if payload := point.Payload; payload != nil {
			hit.Title = payload["title"].GetStringValue()
			hit.Content = payload["content"].GetStringValue()
			hit.Category = payload["category"].GetStringValue()
			if tags := payload["tags"].GetStringValue(); tags != "" {
				hit.Tags = strings.Split(tags, ",")
			}
			if raw := payload["updated_at"].GetStringValue(); raw != "" {
				if ts, err := time.Parse(time.RFC3339, raw); err == nil {
					hit.UpdatedAt = ts
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases the gRPC connection.
func (s *QdrantSearcher) Close() error {
	return s.client.Close()
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}
