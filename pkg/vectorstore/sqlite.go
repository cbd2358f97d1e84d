package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/fathomdata/fathom/pkg/fault"
)

// SQLiteStore keeps training material in a local SQLite file. Similarity
// is keyword overlap over a LIKE prefilter, which is enough for few-shot
// retrieval without an embedding service.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the store at path. Use ":memory:" for
// an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fault.Wrap(fault.KindConfiguration, err, "failed to create store directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to open store")
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS qa_pairs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		code TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_qa_question ON qa_pairs(question);

	CREATE TABLE IF NOT EXISTS docs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fault.Wrap(fault.KindConfiguration, err, "failed to create store schema")
	}
	return nil
}

// AddQuestionAnswers stores question/code pairs. The slices must be the
// same length; pairs are matched by index.
func (s *SQLiteStore) AddQuestionAnswers(ctx context.Context, questions, codes []string) error {
	if len(questions) != len(codes) {
		return fault.New(fault.KindConfiguration,
			"questions and codes must pair up (%d questions, %d codes)", len(questions), len(codes))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range questions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO qa_pairs (question, code) VALUES (?, ?)",
			questions[i], codes[i]); err != nil {
			return fmt.Errorf("failed to insert pair: %w", err)
		}
	}
	return tx.Commit()
}

// AddDocs stores reference documents.
func (s *SQLiteStore) AddDocs(ctx context.Context, docs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO docs (content) VALUES (?)", doc); err != nil {
			return fmt.Errorf("failed to insert doc: %w", err)
		}
	}
	return tx.Commit()
}

// SimilarQuestionAnswers returns up to limit stored pairs ranked by
// keyword overlap with the question.
func (s *SQLiteStore) SimilarQuestionAnswers(ctx context.Context, question string, limit int) ([]QA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 3
	}
	keywords := tokenize(question)
	if len(keywords) == 0 {
		return nil, nil
	}

	conditions, args := likeConditions("question", keywords)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, question, code FROM qa_pairs WHERE "+conditions+" ORDER BY created_at DESC LIMIT 100",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer rows.Close()

	var candidates []QA
	for rows.Next() {
		var qa QA
		if err := rows.Scan(&qa.ID, &qa.Question, &qa.Code); err != nil {
			return nil, err
		}
		candidates = append(candidates, qa)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return overlap(keywords, candidates[i].Question) > overlap(keywords, candidates[j].Question)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// SimilarDocs returns up to limit docs ranked by keyword overlap.
func (s *SQLiteStore) SimilarDocs(ctx context.Context, question string, limit int) ([]Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 3
	}
	keywords := tokenize(question)
	if len(keywords) == 0 {
		return nil, nil
	}

	conditions, args := likeConditions("content", keywords)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content FROM docs WHERE "+conditions+" ORDER BY created_at DESC LIMIT 100",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query docs: %w", err)
	}
	defer rows.Close()

	var candidates []Doc
	for rows.Next() {
		var doc Doc
		if err := rows.Scan(&doc.ID, &doc.Content); err != nil {
			return nil, err
		}
		candidates = append(candidates, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return overlap(keywords, candidates[i].Content) > overlap(keywords, candidates[j].Content)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, `.,!?"'`)
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

func likeConditions(column string, keywords []string) (string, []any) {
	conditions := make([]string, len(keywords))
	args := make([]any, len(keywords))
	for i, kw := range keywords {
		conditions[i] = "LOWER(" + column + ") LIKE ?"
		args[i] = "%" + kw + "%"
	}
	return strings.Join(conditions, " OR "), args
}

func overlap(keywords []string, text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
