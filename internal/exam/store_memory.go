package exam

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in maps. Used by unit tests and as a
// dev-mode store; the SQL store is the production path.
type memoryStore struct {
	mu        sync.RWMutex
	templates map[string]ExamTemplate
	questions map[string]Question
	attempts  map[string]ExamAttempt
	aqs       map[string]AttemptQuestion
	answers   map[string]AttemptAnswer // keyed by attempt question id
}

func NewInMemoryStore() Store {
	return &memoryStore{
		templates: map[string]ExamTemplate{},
		questions: map[string]Question{},
		attempts:  map[string]ExamAttempt{},
		aqs:       map[string]AttemptQuestion{},
		answers:   map[string]AttemptAnswer{},
	}
}

// Seeder is implemented by stores that accept reference data directly.
type Seeder interface {
	PutTemplate(t ExamTemplate)
	PutQuestion(q Question)
}

func (m *memoryStore) PutTemplate(t ExamTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
}

func (m *memoryStore) PutQuestion(q Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
}

func (m *memoryStore) GetTemplate(_ context.Context, id string) (ExamTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return ExamTemplate{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryStore) ListActiveTemplates(_ context.Context) ([]ExamTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ExamTemplate{}
	for _, t := range m.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) ListPool(_ context.Context, templateID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Question{}
	for _, q := range m.questions {
		if q.TemplateID == templateID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a ExamAttempt, qs []AttemptQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ID] = a
	for _, aq := range qs {
		m.aqs[aq.ID] = aq
	}
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, userID, attemptID string) (ExamAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAttemptLocked(userID, attemptID)
}

func (m *memoryStore) getAttemptLocked(userID, attemptID string) (ExamAttempt, error) {
	a, ok := m.attempts[attemptID]
	if !ok || (userID != "" && a.UserID != userID) {
		return ExamAttempt{}, ErrNotFound
	}
	if t, ok := m.templates[a.TemplateID]; ok {
		a.TemplateName = t.Name
	}
	return a, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]ExamAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []ExamAttempt{}
	for _, a := range m.attempts {
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && string(a.Status) != opts.Status {
			continue
		}
		if t, ok := m.templates[a.TemplateID]; ok {
			a.TemplateName = t.Name
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []ExamAttempt{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memoryStore) GetAttemptQuestion(_ context.Context, userID, attemptQuestionID string) (AttemptQuestion, ExamAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	aq, ok := m.aqs[attemptQuestionID]
	if !ok {
		return AttemptQuestion{}, ExamAttempt{}, ErrNotFound
	}
	a, err := m.getAttemptLocked(userID, aq.AttemptID)
	if err != nil {
		return AttemptQuestion{}, ExamAttempt{}, ErrNotFound
	}
	return aq, a, nil
}

func (m *memoryStore) GetAttemptQuestionByIndex(_ context.Context, attemptID string, orderIndex int) (AttemptQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, aq := range m.aqs {
		if aq.AttemptID == attemptID && aq.OrderIndex == orderIndex {
			return aq, nil
		}
	}
	return AttemptQuestion{}, ErrNotFound
}

func (m *memoryStore) ListAttemptQuestions(_ context.Context, attemptID string) ([]AttemptQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AttemptQuestion{}
	for _, aq := range m.aqs {
		if aq.AttemptID == attemptID {
			out = append(out, aq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *memoryStore) GetAnswer(_ context.Context, attemptQuestionID string) (AttemptAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ans, ok := m.answers[attemptQuestionID]
	if !ok {
		return AttemptAnswer{}, ErrNotFound
	}
	return ans, nil
}

func (m *memoryStore) ListAnswers(_ context.Context, attemptID string) (map[string]AttemptAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]AttemptAnswer{}
	for id, ans := range m.answers {
		if aq, ok := m.aqs[id]; ok && aq.AttemptID == attemptID {
			out[id] = ans
		}
	}
	return out, nil
}

func (m *memoryStore) UpsertAnswer(_ context.Context, attemptQuestionID string, selectedChoiceIDs []string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	aq, ok := m.aqs[attemptQuestionID]
	if !ok {
		return ErrNotFound
	}
	m.answers[attemptQuestionID] = AttemptAnswer{
		AttemptQuestionID: attemptQuestionID,
		SelectedChoiceIDs: append([]string(nil), selectedChoiceIDs...),
		UpdatedAt:         now,
	}
	aq.AnsweredAt = &now
	m.aqs[attemptQuestionID] = aq
	return nil
}

func (m *memoryStore) SetMarked(_ context.Context, attemptQuestionID string, marked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	aq, ok := m.aqs[attemptQuestionID]
	if !ok {
		return ErrNotFound
	}
	aq.IsMarked = marked
	m.aqs[attemptQuestionID] = aq
	return nil
}

func (m *memoryStore) FinalizeAttempt(_ context.Context, a ExamAttempt, verdicts map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; !ok {
		return ErrNotFound
	}
	a.TemplateName = ""
	m.attempts[a.ID] = a
	for id, ok := range verdicts {
		if aq, found := m.aqs[id]; found {
			v := ok
			aq.IsCorrect = &v
			m.aqs[id] = aq
		}
	}
	return nil
}
