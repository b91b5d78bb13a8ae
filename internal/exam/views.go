package exam

import (
	"context"
	"errors"
	"math"
	"time"
)

// Read models consumed by the presentation layer. All lookups are scoped
// to the authenticated user; foreign attempts surface as ErrNotFound.

type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	AttemptQuestionID string       `json:"attempt_question_id"`
	AttemptID         string       `json:"attempt_id"`
	OrderIndex        int          `json:"order_index"`
	TotalQuestions    int          `json:"total_questions"`
	Text              string       `json:"text"`
	Type              QuestionType `json:"type"`
	Choices           []ChoiceView `json:"choices"` // frozen display order
	SelectedChoiceIDs []string     `json:"selected_choice_ids"`
	IsMarked          bool         `json:"is_marked"`
	Locked            bool         `json:"locked"`
	ExpiresAt         time.Time    `json:"expires_at"`
	// Only revealed once the attempt is finalized.
	Explanation string `json:"explanation,omitempty"`
	IsCorrect   *bool  `json:"is_correct,omitempty"`
}

type SummaryItem struct {
	AttemptQuestionID string `json:"attempt_question_id"`
	OrderIndex        int    `json:"order_index"`
	Answered          bool   `json:"answered"`
	IsMarked          bool   `json:"is_marked"`
}

type SummaryView struct {
	AttemptID string        `json:"attempt_id"`
	Locked    bool          `json:"locked"`
	ExpiresAt time.Time     `json:"expires_at"`
	Items     []SummaryItem `json:"items"`
}

type ResultView struct {
	AttemptID         string        `json:"attempt_id"`
	TemplateName      string        `json:"template_name"`
	Status            AttemptStatus `json:"status"`
	ScorePercent      int           `json:"score_percent"`
	IsPassed          *bool         `json:"is_passed,omitempty"`
	DurationSec       *int          `json:"duration_sec,omitempty"`
	WrongOrderIndexes []int         `json:"wrong_order_indexes"`
}

type ReviewItem struct {
	AttemptQuestionID string `json:"attempt_question_id"`
	OrderIndex        int    `json:"order_index"`
}

// GetAttempt returns the user's attempt with its template joined.
func (s *Service) GetAttempt(ctx context.Context, userID, attemptID string) (ExamAttempt, error) {
	return s.store.GetAttempt(ctx, userID, attemptID)
}

// ListActiveTemplates returns the templates offered on the start page.
func (s *Service) ListActiveTemplates(ctx context.Context) ([]ExamTemplate, error) {
	return s.store.ListActiveTemplates(ctx)
}

// History returns attempts newest-first.
func (s *Service) History(ctx context.Context, opts AttemptListOpts) ([]ExamAttempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

// Question assembles the question page: the snapshot question at a
// 1-based order index, its choices in the frozen shuffled order, the
// current answer, and the lock state.
func (s *Service) Question(ctx context.Context, userID, attemptID string, orderIndex int) (QuestionView, error) {
	a, err := s.store.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return QuestionView{}, err
	}
	t, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return QuestionView{}, err
	}
	aq, err := s.store.GetAttemptQuestionByIndex(ctx, a.ID, orderIndex)
	if err != nil {
		return QuestionView{}, err
	}
	q, err := s.store.GetQuestion(ctx, aq.QuestionID)
	if err != nil {
		return QuestionView{}, err
	}

	byID := make(map[string]Choice, len(q.Choices))
	for _, c := range q.Choices {
		byID[c.ID] = c
	}
	choices := make([]ChoiceView, 0, len(aq.ShuffledChoiceIDs))
	for _, id := range aq.ShuffledChoiceIDs {
		if c, ok := byID[id]; ok {
			choices = append(choices, ChoiceView{ID: c.ID, Text: c.Text})
		}
	}

	var selected []string
	ans, err := s.store.GetAnswer(ctx, aq.ID)
	switch {
	case err == nil:
		selected = ans.SelectedChoiceIDs
	case errors.Is(err, ErrNotFound):
		// never answered
	default:
		return QuestionView{}, err
	}

	v := QuestionView{
		AttemptQuestionID: aq.ID,
		AttemptID:         a.ID,
		OrderIndex:        aq.OrderIndex,
		TotalQuestions:    t.QuestionCount,
		Text:              q.Text,
		Type:              q.Type,
		Choices:           choices,
		SelectedChoiceIDs: selected,
		IsMarked:          aq.IsMarked,
		Locked:            !CanMutate(a, s.now()),
		ExpiresAt:         a.ExpiresAt,
	}
	if a.Status != StatusInProgress {
		v.Explanation = q.Explanation
		v.IsCorrect = aq.IsCorrect
	}
	return v, nil
}

// Summary lists every question of the attempt with answered/marked state.
func (s *Service) Summary(ctx context.Context, userID, attemptID string) (SummaryView, error) {
	a, err := s.store.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return SummaryView{}, err
	}
	qs, err := s.store.ListAttemptQuestions(ctx, a.ID)
	if err != nil {
		return SummaryView{}, err
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return SummaryView{}, err
	}

	items := make([]SummaryItem, 0, len(qs))
	for _, aq := range qs {
		_, answered := answers[aq.ID]
		items = append(items, SummaryItem{
			AttemptQuestionID: aq.ID,
			OrderIndex:        aq.OrderIndex,
			Answered:          answered,
			IsMarked:          aq.IsMarked,
		})
	}
	return SummaryView{
		AttemptID: a.ID,
		Locked:    !CanMutate(a, s.now()),
		ExpiresAt: a.ExpiresAt,
		Items:     items,
	}, nil
}

// Result derives the result page values: score percentage per the display
// convention (rounded), pass/fail, duration, and wrong question numbers.
func (s *Service) Result(ctx context.Context, userID, attemptID string) (ResultView, error) {
	a, err := s.store.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return ResultView{}, err
	}
	t, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return ResultView{}, err
	}
	qs, err := s.store.ListAttemptQuestions(ctx, a.ID)
	if err != nil {
		return ResultView{}, err
	}

	correctCount := 0
	var wrong []int
	for _, aq := range qs {
		switch {
		case aq.IsCorrect == nil:
			// unscored; skipped on both tallies, like the original view
		case *aq.IsCorrect:
			correctCount++
		default:
			wrong = append(wrong, aq.OrderIndex)
		}
	}

	return ResultView{
		AttemptID:         a.ID,
		TemplateName:      t.Name,
		Status:            a.Status,
		ScorePercent:      int(math.Round(float64(correctCount) / float64(t.QuestionCount) * 100)),
		IsPassed:          a.IsPassed,
		DurationSec:       a.DurationSec,
		WrongOrderIndexes: wrong,
	}, nil
}

// ListMarked returns the review list: marked questions in display order.
func (s *Service) ListMarked(ctx context.Context, userID, attemptID string) ([]ReviewItem, error) {
	a, err := s.store.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	qs, err := s.store.ListAttemptQuestions(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	items := []ReviewItem{}
	for _, aq := range qs {
		if aq.IsMarked {
			items = append(items, ReviewItem{AttemptQuestionID: aq.ID, OrderIndex: aq.OrderIndex})
		}
	}
	return items, nil
}
