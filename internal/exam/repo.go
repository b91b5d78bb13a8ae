package exam

import (
	"context"
	"time"
)

type AttemptListOpts struct {
	UserID string // filter by owner; required for students, optional for admins
	Status string // optional: in_progress|finished|expired
	Limit  int
	Offset int
}

// Store is the persistence boundary for the exam flow. Lookups that take a
// userID are ownership-scoped: a row owned by someone else is reported as
// ErrNotFound, indistinguishable from a missing row.
type Store interface {
	GetTemplate(ctx context.Context, id string) (ExamTemplate, error)
	ListActiveTemplates(ctx context.Context) ([]ExamTemplate, error)

	// ListPool returns all questions of a template with their choices.
	ListPool(ctx context.Context, templateID string) ([]Question, error)
	GetQuestion(ctx context.Context, id string) (Question, error)

	// CreateAttempt persists the attempt and its questions as one unit;
	// nothing is written if any part fails.
	CreateAttempt(ctx context.Context, a ExamAttempt, qs []AttemptQuestion) error

	GetAttempt(ctx context.Context, userID, attemptID string) (ExamAttempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]ExamAttempt, error)

	// GetAttemptQuestion resolves an attempt question together with its
	// owning attempt, scoped to userID.
	GetAttemptQuestion(ctx context.Context, userID, attemptQuestionID string) (AttemptQuestion, ExamAttempt, error)
	GetAttemptQuestionByIndex(ctx context.Context, attemptID string, orderIndex int) (AttemptQuestion, error)
	ListAttemptQuestions(ctx context.Context, attemptID string) ([]AttemptQuestion, error)

	GetAnswer(ctx context.Context, attemptQuestionID string) (AttemptAnswer, error)
	ListAnswers(ctx context.Context, attemptID string) (map[string]AttemptAnswer, error)

	// UpsertAnswer writes the answer and stamps the question's answeredAt
	// in one transaction.
	UpsertAnswer(ctx context.Context, attemptQuestionID string, selectedChoiceIDs []string, now time.Time) error
	SetMarked(ctx context.Context, attemptQuestionID string, marked bool) error

	// FinalizeAttempt writes the finished attempt and the per-question
	// correctness verdicts in one transaction.
	FinalizeAttempt(ctx context.Context, a ExamAttempt, verdicts map[string]bool) error
}
