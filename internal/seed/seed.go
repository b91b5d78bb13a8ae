package seed

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mockexam/mockexam-server/internal/exam"
)

// Fixture files carry exam templates with their question pools. Applied
// idempotently at startup (upsert by id), so a file can be re-applied
// after edits.

type File struct {
	Templates []Template `yaml:"templates"`
}

type Template struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	QuestionCount int        `yaml:"question_count"`
	DurationSec   int        `yaml:"duration_sec"`
	PassThreshold float64    `yaml:"pass_threshold"`
	IsActive      bool       `yaml:"is_active"`
	Questions     []Question `yaml:"questions"`
}

type Question struct {
	ID          string   `yaml:"id"`
	Text        string   `yaml:"text"`
	Type        string   `yaml:"type"` // single|multi
	Explanation string   `yaml:"explanation"`
	Choices     []Choice `yaml:"choices"`
}

type Choice struct {
	ID      string `yaml:"id"`
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct"`
}

// Load parses and validates a fixture file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := Validate(f); err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate enforces the reference-data invariants: sane template numbers,
// a pool at least as large as question_count, and the per-type correct
// choice rules (single: exactly one; multi: one or more).
func Validate(f File) error {
	for _, t := range f.Templates {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("template %q: id and name required", t.ID)
		}
		if t.QuestionCount < 1 {
			return fmt.Errorf("template %s: question_count must be >= 1", t.ID)
		}
		if t.DurationSec < 1 {
			return fmt.Errorf("template %s: duration_sec must be >= 1", t.ID)
		}
		if t.PassThreshold < 0 || t.PassThreshold > 1 {
			return fmt.Errorf("template %s: pass_threshold must be within [0,1]", t.ID)
		}
		if len(t.Questions) < t.QuestionCount {
			return fmt.Errorf("template %s: pool %d smaller than question_count %d", t.ID, len(t.Questions), t.QuestionCount)
		}
		for _, q := range t.Questions {
			if q.ID == "" || q.Text == "" {
				return fmt.Errorf("template %s: question %q: id and text required", t.ID, q.ID)
			}
			correct := 0
			for _, c := range q.Choices {
				if c.ID == "" {
					return fmt.Errorf("question %s: choice id required", q.ID)
				}
				if c.Correct {
					correct++
				}
			}
			switch exam.QuestionType(q.Type) {
			case exam.QuestionSingle:
				if correct != 1 {
					return fmt.Errorf("question %s: single type needs exactly one correct choice, has %d", q.ID, correct)
				}
			case exam.QuestionMulti:
				if correct < 1 {
					return fmt.Errorf("question %s: multi type needs at least one correct choice", q.ID)
				}
			default:
				return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
			}
			if len(q.Choices) < 2 {
				return fmt.Errorf("question %s: needs at least two choices", q.ID)
			}
		}
	}
	return nil
}

// Apply upserts the fixture into the relational store.
func Apply(ctx context.Context, db *sql.DB, f File) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range f.Templates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_templates (id,name,question_count,duration_sec,pass_threshold,is_active)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (id) DO UPDATE SET
			   name=EXCLUDED.name, question_count=EXCLUDED.question_count,
			   duration_sec=EXCLUDED.duration_sec, pass_threshold=EXCLUDED.pass_threshold,
			   is_active=EXCLUDED.is_active`,
			t.ID, t.Name, t.QuestionCount, t.DurationSec, t.PassThreshold, t.IsActive); err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
		for _, q := range t.Questions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO questions (id,template_id,text,type,explanation)
				 VALUES ($1,$2,$3,$4,$5)
				 ON CONFLICT (id) DO UPDATE SET
				   template_id=EXCLUDED.template_id, text=EXCLUDED.text,
				   type=EXCLUDED.type, explanation=EXCLUDED.explanation`,
				q.ID, t.ID, q.Text, q.Type, q.Explanation); err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
			for i, c := range q.Choices {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO choices (id,question_id,text,is_correct,position)
					 VALUES ($1,$2,$3,$4,$5)
					 ON CONFLICT (id) DO UPDATE SET
					   question_id=EXCLUDED.question_id, text=EXCLUDED.text,
					   is_correct=EXCLUDED.is_correct, position=EXCLUDED.position`,
					c.ID, q.ID, c.Text, c.Correct, i); err != nil {
					return fmt.Errorf("choice %s: %w", c.ID, err)
				}
			}
		}
	}
	return tx.Commit()
}
