package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// FieldCreatedAt is the pseudo-field for the store-assigned creation
// timestamp. Usable in filters and ordering.
const FieldCreatedAt = "createdAt"

// ServerTimestamp is a sentinel value: any field set to it is replaced with
// the store's current time at write.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

// Increment returns a sentinel that atomically adds delta to a numeric field
// (missing field counts as zero).
func Increment(delta int64) IncrementValue {
	return IncrementValue{Delta: delta}
}

type IncrementValue struct {
	Delta int64
}

// Document is one row returned from a collection query.
type Document struct {
	ID        string
	Path      string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// Filter is a single query predicate. Supported ops: "==", "in", "<".
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

// Query describes a collection read.
type Query struct {
	Filters []Filter
	OrderBy string // field name or FieldCreatedAt; empty means unordered
	Desc    bool
	Limit   int // 0 means no limit
}

// Op is a single operation inside a batched write.
type Op struct {
	Kind  string // "set" or "delete"
	Path  string
	Data  map[string]interface{}
	Merge bool
}

const (
	OpSet    = "set"
	OpDelete = "delete"
)

// DocumentStore is a hierarchical collection/document database. Paths
// alternate collection and document segments, e.g.
// tenant/{id}/conversation/{key}.
type DocumentStore interface {
	// Get returns the document data at path, or ErrNotFound.
	Get(ctx context.Context, path string) (map[string]interface{}, error)

	// Set writes data at path. With merge=true existing fields not present
	// in data are preserved; otherwise the document is replaced.
	Set(ctx context.Context, path string, data map[string]interface{}, merge bool) error

	// Delete removes the document at path. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, path string) error

	// Query lists documents directly under a collection path.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// BatchWrite applies ops as a single batch.
	BatchWrite(ctx context.Context, ops []Op) error

	// RunTransaction runs fn against a transactional view of the store.
	RunTransaction(ctx context.Context, fn func(tx DocumentStore) error) error
}
