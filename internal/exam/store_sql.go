package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements Store on database/sql. Placeholders use the $n form,
// which both the pgx stdlib driver and modernc sqlite accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (ExamTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,name,question_count,duration_sec,pass_threshold,is_active
		 FROM exam_templates WHERE id=$1`, id)
	var t ExamTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.QuestionCount, &t.DurationSec, &t.PassThreshold, &t.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExamTemplate{}, ErrNotFound
		}
		return ExamTemplate{}, err
	}
	return t, nil
}

func (s *SQLStore) ListActiveTemplates(ctx context.Context) ([]ExamTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,question_count,duration_sec,pass_threshold,is_active
		 FROM exam_templates WHERE is_active=$1 ORDER BY name`, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ExamTemplate{}
	for rows.Next() {
		var t ExamTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.QuestionCount, &t.DurationSec, &t.PassThreshold, &t.IsActive); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListPool(ctx context.Context, templateID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,template_id,text,type,explanation FROM questions WHERE template_id=$1 ORDER BY id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.TemplateID, &q.Text, &q.Type, &q.Explanation); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		cs, err := s.listChoices(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Choices = cs
	}
	return out, nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,template_id,text,type,explanation FROM questions WHERE id=$1`, id)
	var q Question
	if err := row.Scan(&q.ID, &q.TemplateID, &q.Text, &q.Type, &q.Explanation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrNotFound
		}
		return Question{}, err
	}
	cs, err := s.listChoices(ctx, q.ID)
	if err != nil {
		return Question{}, err
	}
	q.Choices = cs
	return q, nil
}

func (s *SQLStore) listChoices(ctx context.Context, questionID string) ([]Choice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,text,is_correct FROM choices WHERE question_id=$1 ORDER BY position`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Choice{}
	for rows.Next() {
		var c Choice
		if err := rows.Scan(&c.ID, &c.Text, &c.IsCorrect); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a ExamAttempt, qs []AttemptQuestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exam_attempts (id,user_id,template_id,started_at,expires_at,status)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.UserID, a.TemplateID, a.StartedAt.Unix(), a.ExpiresAt.Unix(), a.Status); err != nil {
		return err
	}
	for _, aq := range qs {
		ids, err := json.Marshal(aq.ShuffledChoiceIDs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempt_questions (id,attempt_id,question_id,order_index,shuffled_choice_ids,is_marked)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			aq.ID, aq.AttemptID, aq.QuestionID, aq.OrderIndex, string(ids), aq.IsMarked); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const attemptCols = `a.id,a.user_id,a.template_id,a.started_at,a.expires_at,a.status,
	a.end_reason,a.score,a.is_passed,a.finished_at,a.duration_sec,t.name`

type rowScanner interface{ Scan(dest ...any) error }

func scanAttempt(row rowScanner) (ExamAttempt, error) {
	var (
		a          ExamAttempt
		startedAt  int64
		expiresAt  int64
		endReason  sql.NullString
		score      sql.NullFloat64
		isPassed   sql.NullBool
		finishedAt sql.NullInt64
		duration   sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.TemplateID, &startedAt, &expiresAt, &a.Status,
		&endReason, &score, &isPassed, &finishedAt, &duration, &a.TemplateName); err != nil {
		return ExamAttempt{}, err
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	a.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if endReason.Valid {
		r := EndReason(endReason.String)
		a.EndReason = &r
	}
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if isPassed.Valid {
		v := isPassed.Bool
		a.IsPassed = &v
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		a.FinishedAt = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationSec = &d
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, userID, attemptID string) (ExamAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+`
		 FROM exam_attempts a JOIN exam_templates t ON t.id=a.template_id
		 WHERE a.id=$1 AND a.user_id=$2`, attemptID, userID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExamAttempt{}, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]ExamAttempt, error) {
	q := `SELECT ` + attemptCols + `
		 FROM exam_attempts a JOIN exam_templates t ON t.id=a.template_id`
	args := []any{}
	where := ""
	add := func(cond string, v any) {
		args = append(args, v)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if opts.UserID != "" {
		add("a.user_id=$%d", opts.UserID)
	}
	if opts.Status != "" {
		add("a.status=$%d", opts.Status)
	}
	q += where + " ORDER BY a.started_at DESC"
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, opts.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ExamAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttemptQuestion(row rowScanner) (AttemptQuestion, error) {
	var (
		aq         AttemptQuestion
		idsJSON    string
		isCorrect  sql.NullBool
		answeredAt sql.NullInt64
	)
	if err := row.Scan(&aq.ID, &aq.AttemptID, &aq.QuestionID, &aq.OrderIndex,
		&idsJSON, &aq.IsMarked, &isCorrect, &answeredAt); err != nil {
		return AttemptQuestion{}, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &aq.ShuffledChoiceIDs); err != nil {
		return AttemptQuestion{}, fmt.Errorf("decode shuffled choice ids: %w", err)
	}
	if isCorrect.Valid {
		v := isCorrect.Bool
		aq.IsCorrect = &v
	}
	if answeredAt.Valid {
		t := time.Unix(answeredAt.Int64, 0).UTC()
		aq.AnsweredAt = &t
	}
	return aq, nil
}

const attemptQuestionCols = `aq.id,aq.attempt_id,aq.question_id,aq.order_index,
	aq.shuffled_choice_ids,aq.is_marked,aq.is_correct,aq.answered_at`

func (s *SQLStore) GetAttemptQuestion(ctx context.Context, userID, attemptQuestionID string) (AttemptQuestion, ExamAttempt, error) {
	// Ownership enforced by the join: a question on someone else's attempt
	// matches nothing.
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptQuestionCols+`,`+attemptCols+`
		 FROM attempt_questions aq
		 JOIN exam_attempts a ON a.id=aq.attempt_id
		 JOIN exam_templates t ON t.id=a.template_id
		 WHERE aq.id=$1 AND a.user_id=$2`, attemptQuestionID, userID)
	var (
		aq         AttemptQuestion
		idsJSON    string
		isCorrect  sql.NullBool
		answeredAt sql.NullInt64
		a          ExamAttempt
		startedAt  int64
		expiresAt  int64
		endReason  sql.NullString
		score      sql.NullFloat64
		isPassed   sql.NullBool
		finishedAt sql.NullInt64
		duration   sql.NullInt64
	)
	err := row.Scan(&aq.ID, &aq.AttemptID, &aq.QuestionID, &aq.OrderIndex,
		&idsJSON, &aq.IsMarked, &isCorrect, &answeredAt,
		&a.ID, &a.UserID, &a.TemplateID, &startedAt, &expiresAt, &a.Status,
		&endReason, &score, &isPassed, &finishedAt, &duration, &a.TemplateName)
	if errors.Is(err, sql.ErrNoRows) {
		return AttemptQuestion{}, ExamAttempt{}, ErrNotFound
	}
	if err != nil {
		return AttemptQuestion{}, ExamAttempt{}, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &aq.ShuffledChoiceIDs); err != nil {
		return AttemptQuestion{}, ExamAttempt{}, fmt.Errorf("decode shuffled choice ids: %w", err)
	}
	if isCorrect.Valid {
		v := isCorrect.Bool
		aq.IsCorrect = &v
	}
	if answeredAt.Valid {
		t := time.Unix(answeredAt.Int64, 0).UTC()
		aq.AnsweredAt = &t
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	a.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return aq, a, nil
}

func (s *SQLStore) GetAttemptQuestionByIndex(ctx context.Context, attemptID string, orderIndex int) (AttemptQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptQuestionCols+`
		 FROM attempt_questions aq WHERE aq.attempt_id=$1 AND aq.order_index=$2`,
		attemptID, orderIndex)
	aq, err := scanAttemptQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AttemptQuestion{}, ErrNotFound
	}
	return aq, err
}

func (s *SQLStore) ListAttemptQuestions(ctx context.Context, attemptID string) ([]AttemptQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptQuestionCols+`
		 FROM attempt_questions aq WHERE aq.attempt_id=$1 ORDER BY aq.order_index`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AttemptQuestion{}
	for rows.Next() {
		aq, err := scanAttemptQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, aq)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAnswer(ctx context.Context, attemptQuestionID string) (AttemptAnswer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT attempt_question_id,selected_choice_ids,updated_at
		 FROM attempt_answers WHERE attempt_question_id=$1`, attemptQuestionID)
	ans, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AttemptAnswer{}, ErrNotFound
	}
	return ans, err
}

func scanAnswer(row rowScanner) (AttemptAnswer, error) {
	var (
		ans       AttemptAnswer
		idsJSON   string
		updatedAt int64
	)
	if err := row.Scan(&ans.AttemptQuestionID, &idsJSON, &updatedAt); err != nil {
		return AttemptAnswer{}, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &ans.SelectedChoiceIDs); err != nil {
		return AttemptAnswer{}, fmt.Errorf("decode selected choice ids: %w", err)
	}
	ans.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return ans, nil
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) (map[string]AttemptAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ans.attempt_question_id,ans.selected_choice_ids,ans.updated_at
		 FROM attempt_answers ans
		 JOIN attempt_questions aq ON aq.id=ans.attempt_question_id
		 WHERE aq.attempt_id=$1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]AttemptAnswer{}
	for rows.Next() {
		ans, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out[ans.AttemptQuestionID] = ans
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertAnswer(ctx context.Context, attemptQuestionID string, selectedChoiceIDs []string, now time.Time) error {
	ids, err := json.Marshal(selectedChoiceIDs)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempt_answers (attempt_question_id,selected_choice_ids,updated_at)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (attempt_question_id) DO UPDATE SET
		   selected_choice_ids=EXCLUDED.selected_choice_ids, updated_at=EXCLUDED.updated_at`,
		attemptQuestionID, string(ids), now.Unix()); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE attempt_questions SET answered_at=$1 WHERE id=$2`, now.Unix(), attemptQuestionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLStore) SetMarked(ctx context.Context, attemptQuestionID string, marked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempt_questions SET is_marked=$1 WHERE id=$2`, marked, attemptQuestionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, a ExamAttempt, verdicts map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE exam_attempts
		 SET status=$1, end_reason=$2, score=$3, is_passed=$4, finished_at=$5, duration_sec=$6
		 WHERE id=$7`,
		a.Status, string(*a.EndReason), *a.Score, *a.IsPassed, a.FinishedAt.Unix(), *a.DurationSec, a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	for id, ok := range verdicts {
		if _, err := tx.ExecContext(ctx,
			`UPDATE attempt_questions SET is_correct=$1 WHERE id=$2`, ok, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
