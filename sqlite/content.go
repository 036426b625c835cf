package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/content"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// PutDocument indexes doc, replacing a document with the same id. An empty
// id is generated.
func (s *Store) PutDocument(ctx context.Context, doc core.Document) (core.Document, error) {
	if doc.ID == "" {
		doc.ID = util.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, doc_type, title_tr, title_en, body_tr, body_en, search_text) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc_type = excluded.doc_type, title_tr = excluded.title_tr,
		   title_en = excluded.title_en, body_tr = excluded.body_tr, body_en = excluded.body_en,
		   search_text = excluded.search_text`,
		doc.ID, doc.Type, doc.Title.TR, doc.Title.EN, doc.Body.TR, doc.Body.EN,
		searchText(doc.Title.TR, doc.Title.EN, doc.Body.TR, doc.Body.EN))
	if err != nil {
		return core.Document{}, fmt.Errorf("index document: %w", err)
	}
	return doc, nil
}

// Search returns up to q.Limit documents in which any keyword occurs in a
// localized title or body. Keywords and text are compared folded, the same
// way the in-memory store compares them.
func (s *Store) Search(ctx context.Context, q core.ContentQuery) ([]core.Document, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = content.DefaultLimit
	}
	results := make([]core.Document, 0, limit)

	var (
		clauses []string
		args    []any
	)
	for _, kw := range q.Keywords {
		if kw == "" {
			continue
		}
		clauses = append(clauses, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(util.Fold(kw))+"%")
	}
	if len(clauses) == 0 {
		return results, nil
	}

	query := `SELECT id, doc_type, title_tr, title_en, body_tr, body_en FROM documents WHERE ` +
		strings.Join(clauses, " OR ") + ` ORDER BY rowid LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var d core.Document
		if err := rows.Scan(&d.ID, &d.Type, &d.Title.TR, &d.Title.EN, &d.Body.TR, &d.Body.EN); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
