// Package vectorstore persists training material (question/code pairs
// and reference docs) and retrieves the entries most similar to a new
// question for few-shot prompting.
package vectorstore

import "context"

// QA is a stored question with the code that answered it.
type QA struct {
	ID       int64
	Question string
	Code     string
}

// Doc is a stored reference document.
type Doc struct {
	ID      int64
	Content string
}

// Store is the retrieval interface the agent trains against.
type Store interface {
	AddQuestionAnswers(ctx context.Context, questions, codes []string) error
	AddDocs(ctx context.Context, docs []string) error
	SimilarQuestionAnswers(ctx context.Context, question string, limit int) ([]QA, error)
	SimilarDocs(ctx context.Context, question string, limit int) ([]Doc, error)
	Close() error
}
