package exam

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Recorder receives domain events for the sync event log. Implementations
// must be best-effort; the exam flow never fails on a recording error.
type Recorder interface {
	Record(ctx context.Context, typ, key string, data any)
}

// Service implements the attempt lifecycle: creation, time-gated mutation,
// and finish/scoring. Clock and randomness are injected so tests can pin
// both.
type Service struct {
	store  Store
	now    func() time.Time
	rng    *rand.Rand
	events Recorder
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Service)

// WithClock pins the service clock, for deterministic tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithRand pins the shuffle source, for deterministic tests.
func WithRand(rng *rand.Rand) Option { return func(s *Service) { s.rng = rng } }

// WithRecorder attaches an event recorder.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.events = r } }

// CanMutate reports whether an attempt still accepts answer/mark writes:
// in progress and not past its deadline. It is a pure function of the
// wall clock and must be re-evaluated on every mutating call.
func CanMutate(a ExamAttempt, now time.Time) bool {
	return a.Status == StatusInProgress && !now.After(a.ExpiresAt)
}

// StartAttempt samples the template's pool, freezes per-question choice
// order, computes the deadline, and persists the attempt with its
// questions as one unit.
func (s *Service) StartAttempt(ctx context.Context, userID, templateID string) (ExamAttempt, error) {
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return ExamAttempt{}, err
	}

	pool, err := s.store.ListPool(ctx, templateID)
	if err != nil {
		return ExamAttempt{}, err
	}
	if len(pool) < t.QuestionCount {
		return ExamAttempt{}, fmt.Errorf("%w (%d/%d)", ErrInsufficientPool, len(pool), t.QuestionCount)
	}

	picked := shuffledCopy(s.rng, pool)[:t.QuestionCount]

	startedAt := s.now()
	a := ExamAttempt{
		ID:           uuid.NewString(),
		UserID:       userID,
		TemplateID:   templateID,
		StartedAt:    startedAt,
		ExpiresAt:    startedAt.Add(time.Duration(t.DurationSec) * time.Second),
		Status:       StatusInProgress,
		TemplateName: t.Name,
	}

	qs := make([]AttemptQuestion, len(picked))
	for i, q := range picked {
		qs[i] = AttemptQuestion{
			ID:                uuid.NewString(),
			AttemptID:         a.ID,
			QuestionID:        q.ID,
			OrderIndex:        i + 1,
			ShuffledChoiceIDs: shuffledCopy(s.rng, choiceIDs(q.Choices)),
		}
	}

	if err := s.store.CreateAttempt(ctx, a, qs); err != nil {
		return ExamAttempt{}, err
	}
	s.record(ctx, "AttemptStarted", a.ID, map[string]any{"user_id": userID, "template_id": templateID})
	return a, nil
}

// SaveAnswer upserts the answer for one attempt question and stamps its
// answeredAt, subject to ownership and the gate check.
func (s *Service) SaveAnswer(ctx context.Context, userID, attemptQuestionID string, selectedChoiceIDs []string) error {
	aq, att, err := s.store.GetAttemptQuestion(ctx, userID, attemptQuestionID)
	if err != nil {
		return err
	}
	if !CanMutate(att, s.now()) {
		return ErrLocked
	}
	return s.store.UpsertAnswer(ctx, aq.ID, selectedChoiceIDs, s.now())
}

// SetMark sets the review flag on one attempt question, subject to the
// same ownership and gate rules as SaveAnswer.
func (s *Service) SetMark(ctx context.Context, userID, attemptQuestionID string, marked bool) error {
	aq, att, err := s.store.GetAttemptQuestion(ctx, userID, attemptQuestionID)
	if err != nil {
		return err
	}
	if !CanMutate(att, s.now()) {
		return ErrLocked
	}
	return s.store.SetMarked(ctx, aq.ID, marked)
}

// FinishAttempt records the end reason and scores the attempt. Finishing
// is a one-way transition: an attempt that already left in_progress is
// rejected instead of being rescored.
func (s *Service) FinishAttempt(ctx context.Context, userID, attemptID string, reason EndReason) (ExamAttempt, error) {
	a, err := s.store.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return ExamAttempt{}, err
	}
	if a.Status != StatusInProgress {
		return ExamAttempt{}, ErrAlreadyFinished
	}
	a.EndReason = &reason

	final, err := s.score(ctx, a)
	if err != nil {
		return ExamAttempt{}, err
	}
	s.record(ctx, "AttemptFinished", final.ID, map[string]any{
		"user_id": userID,
		"reason":  reason,
		"score":   final.Score,
		"status":  final.Status,
	})
	return final, nil
}

// score walks every question of the attempt, applies the type-specific
// correctness rule, and finalizes the attempt in one store transaction.
func (s *Service) score(ctx context.Context, a ExamAttempt) (ExamAttempt, error) {
	t, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return ExamAttempt{}, err
	}
	qs, err := s.store.ListAttemptQuestions(ctx, a.ID)
	if err != nil {
		return ExamAttempt{}, err
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return ExamAttempt{}, err
	}

	verdicts := make(map[string]bool, len(qs))
	correctCount := 0
	for _, aq := range qs {
		q, err := s.store.GetQuestion(ctx, aq.QuestionID)
		if err != nil {
			return ExamAttempt{}, err
		}
		var selected []string
		if ans, ok := answers[aq.ID]; ok {
			selected = ans.SelectedChoiceIDs
		}
		ok := correct(q, selected)
		verdicts[aq.ID] = ok
		if ok {
			correctCount++
		}
	}

	finishedAt := s.now()
	score := float64(correctCount) / float64(t.QuestionCount)
	passed := score >= t.PassThreshold
	dur := int(math.Round(finishedAt.Sub(a.StartedAt).Seconds()))
	if dur < 1 {
		dur = 1 // clock skew floor
	}

	a.Score = &score
	a.IsPassed = &passed
	a.FinishedAt = &finishedAt
	a.DurationSec = &dur
	if finishedAt.After(a.ExpiresAt) {
		a.Status = StatusExpired
	} else {
		a.Status = StatusFinished
	}

	if err := s.store.FinalizeAttempt(ctx, a, verdicts); err != nil {
		return ExamAttempt{}, err
	}
	a.TemplateName = t.Name
	return a, nil
}

// correct applies the per-type equality rule between the selected and
// correct choice-id sets.
func correct(q Question, selected []string) bool {
	var key []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			key = append(key, c.ID)
		}
	}
	switch q.Type {
	case QuestionSingle:
		return len(selected) == 1 && len(key) == 1 && selected[0] == key[0]
	case QuestionMulti:
		return equalIDSets(selected, key)
	default:
		return false
	}
}

// equalIDSets compares two id slices as sets, ignoring order and
// duplicates.
func equalIDSets(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, id := range a {
		as[id] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, id := range b {
		bs[id] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if _, ok := bs[id]; !ok {
			return false
		}
	}
	return true
}

func (s *Service) record(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, typ, key, data)
}
