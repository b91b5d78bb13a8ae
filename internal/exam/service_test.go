package exam_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mockexam/mockexam-server/internal/exam"
)

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *exam.Service
	store exam.Store
	now   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := baseTime
	store := exam.NewInMemoryStore()
	svc := exam.NewService(store,
		exam.WithClock(func() time.Time { return now }),
		exam.WithRand(rand.New(rand.NewSource(42))),
	)
	f := &fixture{svc: svc, store: store, now: &now}
	return f
}

func (f *fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

func (f *fixture) seeder() exam.Seeder { return f.store.(exam.Seeder) }

// seedTemplate loads a template with 3 single-choice and 2 multi-choice
// questions. Correct answers: single questions have choice "<qid>-a";
// multi questions have {"<qid>-a","<qid>-c"}.
func seedTemplate(f *fixture, id string, questionCount int, passThreshold float64) {
	f.seeder().PutTemplate(exam.ExamTemplate{
		ID:            id,
		Name:          "Sample Certification",
		QuestionCount: questionCount,
		DurationSec:   600,
		PassThreshold: passThreshold,
		IsActive:      true,
	})
	for i := 1; i <= 3; i++ {
		qid := fmt.Sprintf("%s-s%d", id, i)
		f.seeder().PutQuestion(exam.Question{
			ID: qid, TemplateID: id, Text: "single " + qid, Type: exam.QuestionSingle,
			Choices: []exam.Choice{
				{ID: qid + "-a", Text: "a", IsCorrect: true},
				{ID: qid + "-b", Text: "b"},
				{ID: qid + "-c", Text: "c"},
				{ID: qid + "-d", Text: "d"},
			},
		})
	}
	for i := 1; i <= 2; i++ {
		qid := fmt.Sprintf("%s-m%d", id, i)
		f.seeder().PutQuestion(exam.Question{
			ID: qid, TemplateID: id, Text: "multi " + qid, Type: exam.QuestionMulti,
			Choices: []exam.Choice{
				{ID: qid + "-a", Text: "a", IsCorrect: true},
				{ID: qid + "-b", Text: "b"},
				{ID: qid + "-c", Text: "c", IsCorrect: true},
				{ID: qid + "-d", Text: "d"},
			},
		})
	}
}

func mustStart(t *testing.T, f *fixture, userID, templateID string) exam.ExamAttempt {
	t.Helper()
	a, err := f.svc.StartAttempt(context.Background(), userID, templateID)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	return a
}

func attemptQuestions(t *testing.T, f *fixture, attemptID string) []exam.AttemptQuestion {
	t.Helper()
	qs, err := f.store.ListAttemptQuestions(context.Background(), attemptID)
	if err != nil {
		t.Fatalf("ListAttemptQuestions: %v", err)
	}
	return qs
}

func TestStartAttempt_SamplesQuestionsAndFreezesChoiceOrder(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)

	a := mustStart(t, f, "u1", "tpl")

	if a.Status != exam.StatusInProgress {
		t.Errorf("status = %s, want %s", a.Status, exam.StatusInProgress)
	}
	if !a.StartedAt.Equal(baseTime) {
		t.Errorf("startedAt = %v, want %v", a.StartedAt, baseTime)
	}
	if want := baseTime.Add(600 * time.Second); !a.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", a.ExpiresAt, want)
	}

	qs := attemptQuestions(t, f, a.ID)
	if len(qs) != 3 {
		t.Fatalf("got %d attempt questions, want 3", len(qs))
	}

	seenIndex := map[int]bool{}
	seenQuestion := map[string]bool{}
	for _, aq := range qs {
		if seenIndex[aq.OrderIndex] {
			t.Errorf("duplicate order index %d", aq.OrderIndex)
		}
		seenIndex[aq.OrderIndex] = true
		if aq.OrderIndex < 1 || aq.OrderIndex > 3 {
			t.Errorf("order index %d out of range 1..3", aq.OrderIndex)
		}
		if seenQuestion[aq.QuestionID] {
			t.Errorf("question %s sampled twice", aq.QuestionID)
		}
		seenQuestion[aq.QuestionID] = true

		q, err := f.store.GetQuestion(context.Background(), aq.QuestionID)
		if err != nil {
			t.Fatalf("GetQuestion: %v", err)
		}
		want := map[string]bool{}
		for _, c := range q.Choices {
			want[c.ID] = true
		}
		if len(aq.ShuffledChoiceIDs) != len(want) {
			t.Errorf("question %s: %d shuffled ids, want %d", aq.QuestionID, len(aq.ShuffledChoiceIDs), len(want))
		}
		for _, id := range aq.ShuffledChoiceIDs {
			if !want[id] {
				t.Errorf("question %s: shuffled id %s not in choices", aq.QuestionID, id)
			}
			delete(want, id)
		}
		if len(want) != 0 {
			t.Errorf("question %s: choice ids missing from shuffle: %v", aq.QuestionID, want)
		}
	}
}

func TestStartAttempt_InsufficientPool(t *testing.T) {
	f := newFixture(t)
	f.seeder().PutTemplate(exam.ExamTemplate{
		ID: "big", Name: "Big", QuestionCount: 10, DurationSec: 600, PassThreshold: 0.5, IsActive: true,
	})
	f.seeder().PutQuestion(exam.Question{
		ID: "only", TemplateID: "big", Type: exam.QuestionSingle,
		Choices: []exam.Choice{{ID: "a", IsCorrect: true}, {ID: "b"}},
	})

	_, err := f.svc.StartAttempt(context.Background(), "u1", "big")
	if !errors.Is(err, exam.ErrInsufficientPool) {
		t.Fatalf("err = %v, want ErrInsufficientPool", err)
	}

	// creation aborted entirely: no partial attempt persisted
	list, err := f.store.ListAttempts(context.Background(), exam.AttemptListOpts{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d attempts, want 0", len(list))
	}
}

func TestStartAttempt_UnknownTemplate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.StartAttempt(context.Background(), "u1", "nope"); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCanMutate(t *testing.T) {
	expires := baseTime.Add(10 * time.Minute)
	tests := []struct {
		name   string
		status exam.AttemptStatus
		now    time.Time
		want   bool
	}{
		{"in progress before deadline", exam.StatusInProgress, expires.Add(-time.Minute), true},
		{"in progress at deadline", exam.StatusInProgress, expires, true},
		{"in progress past deadline", exam.StatusInProgress, expires.Add(time.Second), false},
		{"finished before deadline", exam.StatusFinished, expires.Add(-time.Minute), false},
		{"expired past deadline", exam.StatusExpired, expires.Add(time.Hour), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := exam.ExamAttempt{Status: tc.status, StartedAt: baseTime, ExpiresAt: expires}
			if got := exam.CanMutate(a, tc.now); got != tc.want {
				t.Errorf("CanMutate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSaveAnswer_OwnershipAndLocking(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")
	aq := attemptQuestions(t, f, a.ID)[0]

	// foreign user is indistinguishable from missing
	if err := f.svc.SaveAnswer(context.Background(), "intruder", aq.ID, []string{"x"}); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("foreign save err = %v, want ErrNotFound", err)
	}
	if err := f.svc.SaveAnswer(context.Background(), "u1", "missing", []string{"x"}); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("missing save err = %v, want ErrNotFound", err)
	}

	if err := f.svc.SaveAnswer(context.Background(), "u1", aq.ID, []string{"c1"}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	got, err := f.store.GetAnswer(context.Background(), aq.ID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if len(got.SelectedChoiceIDs) != 1 || got.SelectedChoiceIDs[0] != "c1" {
		t.Errorf("selected = %v, want [c1]", got.SelectedChoiceIDs)
	}

	// second save overwrites in place
	if err := f.svc.SaveAnswer(context.Background(), "u1", aq.ID, []string{"c2", "c3"}); err != nil {
		t.Fatalf("SaveAnswer overwrite: %v", err)
	}
	got, _ = f.store.GetAnswer(context.Background(), aq.ID)
	if len(got.SelectedChoiceIDs) != 2 {
		t.Errorf("selected after overwrite = %v", got.SelectedChoiceIDs)
	}

	refreshed, _ := f.store.GetAttemptQuestionByIndex(context.Background(), a.ID, aq.OrderIndex)
	if refreshed.AnsweredAt == nil {
		t.Error("answeredAt not stamped")
	}

	// deadline passes: writes are rejected
	f.advance(601 * time.Second)
	if err := f.svc.SaveAnswer(context.Background(), "u1", aq.ID, []string{"c1"}); !errors.Is(err, exam.ErrLocked) {
		t.Errorf("late save err = %v, want ErrLocked", err)
	}
}

func TestSetMark_DoubleToggleRestoresState(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")
	aq := attemptQuestions(t, f, a.ID)[0]

	for _, next := range []bool{true, false} {
		if err := f.svc.SetMark(context.Background(), "u1", aq.ID, next); err != nil {
			t.Fatalf("SetMark(%v): %v", next, err)
		}
	}
	got, _ := f.store.GetAttemptQuestionByIndex(context.Background(), a.ID, aq.OrderIndex)
	if got.IsMarked {
		t.Error("isMarked should be back to false after double toggle")
	}

	// toggling never locks the attempt
	att, _ := f.store.GetAttempt(context.Background(), "u1", a.ID)
	if !exam.CanMutate(att, *f.now) {
		t.Error("attempt unexpectedly locked")
	}

	f.advance(601 * time.Second)
	if err := f.svc.SetMark(context.Background(), "u1", aq.ID, true); !errors.Is(err, exam.ErrLocked) {
		t.Errorf("late mark err = %v, want ErrLocked", err)
	}
}

// answerCorrectly selects the known-correct choices for a seeded
// question ("<qid>-a" for single, {"<qid>-a","<qid>-c"} for multi).
func answerCorrectly(t *testing.T, f *fixture, userID string, aq exam.AttemptQuestion) {
	t.Helper()
	q, err := f.store.GetQuestion(context.Background(), aq.QuestionID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	var selected []string
	for _, c := range q.Choices {
		if c.IsCorrect {
			selected = append(selected, c.ID)
		}
	}
	if err := f.svc.SaveAnswer(context.Background(), userID, aq.ID, selected); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
}

func TestFinish_ScoresAndPassesAtTwoThirds(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")
	qs := attemptQuestions(t, f, a.ID)

	// two right, one wrong
	answerCorrectly(t, f, "u1", qs[0])
	answerCorrectly(t, f, "u1", qs[1])
	if err := f.svc.SaveAnswer(context.Background(), "u1", qs[2].ID, []string{qs[2].QuestionID + "-b"}); err != nil {
		t.Fatalf("SaveAnswer wrong: %v", err)
	}

	f.advance(5 * time.Minute)
	final, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}

	if final.Status != exam.StatusFinished {
		t.Errorf("status = %s, want finished", final.Status)
	}
	if final.Score == nil || *final.Score < 0.666 || *final.Score > 0.667 {
		t.Errorf("score = %v, want 2/3", final.Score)
	}
	if final.IsPassed == nil || !*final.IsPassed {
		t.Error("2/3 >= 0.6 must pass")
	}
	if final.EndReason == nil || *final.EndReason != exam.EndUserFinish {
		t.Errorf("end reason = %v, want user_finish", final.EndReason)
	}
	if final.DurationSec == nil || *final.DurationSec != 300 {
		t.Errorf("durationSec = %v, want 300", final.DurationSec)
	}

	// per-question verdicts persisted
	correctCount := 0
	for _, aq := range attemptQuestions(t, f, a.ID) {
		if aq.IsCorrect == nil {
			t.Fatalf("question %d not scored", aq.OrderIndex)
		}
		if *aq.IsCorrect {
			correctCount++
		}
	}
	if correctCount != 2 {
		t.Errorf("correctCount = %d, want 2", correctCount)
	}
}

func TestFinish_UnansweredCountsAsIncorrect(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")

	final, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if *final.Score != 0 {
		t.Errorf("score = %v, want 0", *final.Score)
	}
	if *final.IsPassed {
		t.Error("empty attempt must not pass")
	}
}

func TestFinish_ExactThresholdPasses(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 2, 0.5)
	a := mustStart(t, f, "u1", "tpl")
	qs := attemptQuestions(t, f, a.ID)

	answerCorrectly(t, f, "u1", qs[0])

	final, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if *final.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", *final.Score)
	}
	if !*final.IsPassed {
		t.Error("score equal to threshold must pass (non-strict)")
	}
}

func TestFinish_PastDeadlineEndsExpired(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")

	f.advance(20 * time.Minute) // past the 10 minute window
	final, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if final.Status != exam.StatusExpired {
		t.Errorf("status = %s, want expired", final.Status)
	}
	if *final.EndReason != exam.EndUserFinish {
		t.Errorf("end reason survives expiry classification, got %v", *final.EndReason)
	}
}

func TestFinish_DurationFlooredAtOneSecond(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")

	// finish immediately: rounded delta is 0, floored to 1
	final, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if *final.DurationSec != 1 {
		t.Errorf("durationSec = %d, want 1", *final.DurationSec)
	}
}

func TestFinish_RepeatCallRejected(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")

	if _, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	if _, err := f.svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndTimeout); !errors.Is(err, exam.ErrAlreadyFinished) {
		t.Fatalf("second finish err = %v, want ErrAlreadyFinished", err)
	}
}

func TestFinish_ForeignAttemptNotFound(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)
	a := mustStart(t, f, "u1", "tpl")

	if _, err := f.svc.FinishAttempt(context.Background(), "u2", a.ID, exam.EndUserFinish); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

type captureRecorder struct {
	types []string
	keys  []string
}

func (c *captureRecorder) Record(_ context.Context, typ, key string, _ any) {
	c.types = append(c.types, typ)
	c.keys = append(c.keys, key)
}

func TestLifecycleEventsRecorded(t *testing.T) {
	now := baseTime
	store := exam.NewInMemoryStore()
	rec := &captureRecorder{}
	svc := exam.NewService(store,
		exam.WithClock(func() time.Time { return now }),
		exam.WithRand(rand.New(rand.NewSource(42))),
		exam.WithRecorder(rec),
	)
	f := &fixture{svc: svc, store: store, now: &now}
	seedTemplate(f, "tpl", 3, 0.6)

	a := mustStart(t, f, "u1", "tpl")
	if _, err := svc.FinishAttempt(context.Background(), "u1", a.ID, exam.EndUserFinish); err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}

	want := []string{"AttemptStarted", "AttemptFinished"}
	if len(rec.types) != len(want) {
		t.Fatalf("recorded %v, want %v", rec.types, want)
	}
	for i := range want {
		if rec.types[i] != want[i] || rec.keys[i] != a.ID {
			t.Errorf("event %d = %s/%s, want %s/%s", i, rec.types[i], rec.keys[i], want[i], a.ID)
		}
	}
}

func TestHistory_NewestFirstAndScoped(t *testing.T) {
	f := newFixture(t)
	seedTemplate(f, "tpl", 3, 0.6)

	a1 := mustStart(t, f, "u1", "tpl")
	f.advance(time.Minute)
	a2 := mustStart(t, f, "u1", "tpl")
	f.advance(time.Minute)
	mustStart(t, f, "u2", "tpl")

	list, err := f.svc.History(context.Background(), exam.AttemptListOpts{UserID: "u1"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d attempts, want 2", len(list))
	}
	if list[0].ID != a2.ID || list[1].ID != a1.ID {
		t.Errorf("history not newest-first: %s, %s", list[0].ID, list[1].ID)
	}
	if list[0].TemplateName == "" {
		t.Error("template name not joined")
	}
}
