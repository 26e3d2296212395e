package vector

import "context"

// Provider is the nearest-neighbor index for knowledge chunks.
type Provider interface {
	// Initialize opens the connection.
	Initialize(ctx context.Context) error

	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error

	// Upsert inserts or updates points. Repeating an ID overwrites.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns the nearest points by cosine distance, restricted by
	// the match conditions.
	Search(ctx context.Context, collection string, query []float32, limit int, match []MatchCondition) ([]SearchResult, error)

	// Delete removes points by ID.
	Delete(ctx context.Context, collection string, ids []string) error

	// Close closes the connection.
	Close() error
}

// Point is a vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// MatchCondition is an exact-match payload filter (AND-combined).
type MatchCondition struct {
	Key   string
	Value string
}

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	GetDimensions() int
}
