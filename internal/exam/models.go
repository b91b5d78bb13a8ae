package exam

import "time"

type QuestionType string

const (
	QuestionSingle QuestionType = "single" // exactly one correct choice
	QuestionMulti  QuestionType = "multi"  // one or more correct choices
)

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusFinished   AttemptStatus = "finished"
	StatusExpired    AttemptStatus = "expired"
)

type EndReason string

const (
	EndUserFinish EndReason = "user_finish"
	EndTimeout    EndReason = "timeout"
)

type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"-"` // never serialized to exam takers
}

type Question struct {
	ID          string       `json:"id"`
	TemplateID  string       `json:"template_id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Explanation string       `json:"explanation,omitempty"`
	Choices     []Choice     `json:"choices,omitempty"`
}

type ExamTemplate struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	QuestionCount int     `json:"question_count"`
	DurationSec   int     `json:"duration_sec"`
	PassThreshold float64 `json:"pass_threshold"` // fraction in [0,1]
	IsActive      bool    `json:"is_active"`
}

type ExamAttempt struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	TemplateID string        `json:"template_id"`
	StartedAt  time.Time     `json:"started_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	Status     AttemptStatus `json:"status"`

	// Set by the finisher/scorer; nil until the attempt is finalized.
	EndReason   *EndReason `json:"end_reason,omitempty"`
	Score       *float64   `json:"score,omitempty"` // fraction in [0,1]
	IsPassed    *bool      `json:"is_passed,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationSec *int       `json:"duration_sec,omitempty"`

	// Populated on reads that join the template.
	TemplateName string `json:"template_name,omitempty"`
}

type AttemptQuestion struct {
	ID                string     `json:"id"`
	AttemptID         string     `json:"attempt_id"`
	QuestionID        string     `json:"question_id"`
	OrderIndex        int        `json:"order_index"` // 1-based, unique per attempt
	ShuffledChoiceIDs []string   `json:"shuffled_choice_ids"`
	IsMarked          bool       `json:"is_marked"`
	IsCorrect         *bool      `json:"is_correct,omitempty"` // nil until scored
	AnsweredAt        *time.Time `json:"answered_at,omitempty"`
}

type AttemptAnswer struct {
	AttemptQuestionID string    `json:"attempt_question_id"`
	SelectedChoiceIDs []string  `json:"selected_choice_ids"`
	UpdatedAt         time.Time `json:"updated_at"`
}
