// Package content provides a keyword-searchable store of localized documents
// used for retrieval-grounded answers and internal link suggestions.
package content

import (
	"context"
	"sync"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// DefaultLimit caps results when a query sets no limit.
const DefaultLimit = 3

// InMemoryStore is a naive process-local ContentSearcher.
//
// Concurrency: protected by RWMutex.
// Search: linear scan in insertion order; a document matches when any
// keyword occurs (case-insensitive, Turkish aware) in its TR or EN title or
// body. Suitable for tests, demos and small catalogs.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  []core.Document
	index map[string]int
}

var _ core.ContentSearcher = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store seeded with docs.
func NewInMemoryStore(docs ...core.Document) *InMemoryStore {
	s := &InMemoryStore{index: make(map[string]int)}
	for _, d := range docs {
		s.Put(d)
	}
	return s
}

// Put inserts or replaces a document. Documents without an id get one.
func (s *InMemoryStore) Put(doc core.Document) core.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = util.NewID()
	}
	if i, ok := s.index[doc.ID]; ok {
		s.docs[i] = doc
		return doc
	}
	s.index[doc.ID] = len(s.docs)
	s.docs = append(s.docs, doc)
	return doc
}

// Len returns the number of stored documents.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search returns up to q.Limit documents matching any keyword. An empty
// keyword list matches nothing.
func (s *InMemoryStore) Search(ctx context.Context, q core.ContentQuery) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	results := make([]core.Document, 0, limit)
	if len(q.Keywords) == 0 {
		return results, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if len(results) >= limit {
			break
		}
		if Matches(doc, q.Keywords) {
			results = append(results, doc)
		}
	}
	return results, nil
}

// Matches reports whether any keyword occurs in the document's localized title or body.
func Matches(doc core.Document, keywords []string) bool {
	fields := [...]string{doc.Title.TR, doc.Title.EN, doc.Body.TR, doc.Body.EN}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		for _, f := range fields {
			if f != "" && util.ContainsFold(f, kw) {
				return true
			}
		}
	}
	return false
}
