package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory DocumentStore. Used by tests and local
// development without a database.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]*memDoc

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

type memDoc struct {
	data      map[string]interface{}
	createdAt time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		docs: make(map[string]*memDoc),
		Now:  time.Now,
	}
}

func (s *MemStore) Get(ctx context.Context, path string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMap(doc.data), nil
}

func (s *MemStore) Set(ctx context.Context, path string, data map[string]interface{}, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(path, data, merge)
}

func (s *MemStore) setLocked(path string, data map[string]interface{}, merge bool) error {
	now := s.Now()

	doc, exists := s.docs[path]
	if !exists {
		doc = &memDoc{data: make(map[string]interface{}), createdAt: now}
		s.docs[path] = doc
	} else if !merge {
		doc.data = make(map[string]interface{})
	}

	for k, v := range data {
		switch val := v.(type) {
		case serverTimestamp:
			doc.data[k] = now
		case IncrementValue:
			doc.data[k] = numericValue(doc.data[k]) + val.Delta
		default:
			doc.data[k] = copyValue(v)
		}
	}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

func (s *MemStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := collection + "/"
	var results []Document
	for path, doc := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := strings.TrimPrefix(path, prefix)
		if strings.Contains(id, "/") {
			continue // nested document, not a direct child
		}
		if !matchesFilters(doc, q.Filters) {
			continue
		}
		results = append(results, Document{
			ID:        id,
			Path:      path,
			Data:      copyMap(doc.data),
			CreatedAt: doc.createdAt,
		})
	}

	if q.OrderBy != "" {
		sort.Slice(results, func(i, j int) bool {
			less := compareValues(fieldValue(results[i], q.OrderBy), fieldValue(results[j], q.OrderBy)) < 0
			if q.Desc {
				return !less
			}
			return less
		})
	} else {
		// Stable output for callers that do not order.
		sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	}

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *MemStore) BatchWrite(ctx context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			if err := s.setLocked(op.Path, op.Data, op.Merge); err != nil {
				return err
			}
		case OpDelete:
			delete(s.docs, op.Path)
		default:
			return fmt.Errorf("unknown batch op kind %q", op.Kind)
		}
	}
	return nil
}

func (s *MemStore) RunTransaction(ctx context.Context, fn func(tx DocumentStore) error) error {
	// Single-process store: the global mutex already serializes writers, so
	// a transaction is just the function run against the store itself.
	return fn(s)
}

func matchesFilters(doc *memDoc, filters []Filter) bool {
	for _, f := range filters {
		var val interface{}
		if f.Field == FieldCreatedAt {
			val = doc.createdAt
		} else {
			val = doc.data[f.Field]
		}

		switch f.Op {
		case "==":
			if !valuesEqual(val, f.Value) {
				return false
			}
		case "in":
			if !valueIn(val, f.Value) {
				return false
			}
		case "<":
			if compareValues(val, f.Value) >= 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func fieldValue(d Document, field string) interface{} {
	if field == FieldCreatedAt {
		return d.CreatedAt
	}
	return d.Data[field]
}

func valuesEqual(a, b interface{}) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func valueIn(val, set interface{}) bool {
	switch s := set.(type) {
	case []string:
		for _, item := range s {
			if valuesEqual(val, item) {
				return true
			}
		}
	case []interface{}:
		for _, item := range s {
			if valuesEqual(val, item) {
				return true
			}
		}
	}
	return false
}

func compareValues(a, b interface{}) int {
	if ta, okA := a.(time.Time); okA {
		if tb, okB := b.(time.Time); okB {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(sa, sb)
}

func numericValue(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
