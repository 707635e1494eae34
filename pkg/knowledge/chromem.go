package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "knowledge"

// ChromemSearcher is an embedded in-memory vector index built on chromem-go.
// It needs no external services, which makes it the zero-config default:
// articles are indexed at startup and searched with cosine similarity.
type ChromemSearcher struct {
	collection *chromem.Collection
}

// NewChromemSearcher creates the in-memory index. The embedder is used for
// both indexing and querying so similarities stay comparable.
func NewChromemSearcher(embedder Embedder) (*ChromemSearcher, error) {
	if embedder == nil {
		embedder = NewHashEmbedder()
	}
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(chromemCollection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("create knowledge collection: %w", err)
	}
	return &ChromemSearcher{collection: collection}, nil
}

// Index adds or replaces articles in the collection.
func (s *ChromemSearcher) Index(ctx context.Context, articles []IndexedArticle) error {
	if len(articles) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(articles))
	for _, article := range articles {
		docs = append(docs, chromem.Document{
			ID:      article.ID,
			Content: article.Content,
			Metadata: map[string]string{
				"title":      article.Title,
				"category":   article.Category,
				"tags":       strings.Join(article.Tags, ","),
				"updated_at": article.UpdatedAt.Format(time.RFC3339),
			},
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("index articles: %w", err)
	}
	slog.Info("Indexed knowledge articles", "count", len(docs))
	return nil
}

// Search queries the collection, clamping the limit to what is indexed.
func (s *ChromemSearcher) Search(ctx context.Context, query string, limit int) ([]VectorHit, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	matches, err := s.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]VectorHit, 0, len(matches))
	for _, match := range matches {
		hit := VectorHit{
			ID:         match.ID,
			Title:      match.Metadata["title"],
			Content:    match.Content,
			Category:   match.Metadata["category"],
			Similarity: float64(match.Similarity),
		}
		if tags := match.Metadata["tags"]; tags != "" {
			hit.Tags = strings.Split(tags, ",")
		}
		if raw := match.Metadata["updated_at"]; raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				hit.UpdatedAt = ts
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// IndexedArticle is the input to Index.
type IndexedArticle struct {
	ID        string
	Title     string
	Content   string
	Category  string
	Tags      []string
	UpdatedAt time.Time
}
