package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mockexam/mockexam-server/internal/db"
	"github.com/mockexam/mockexam-server/internal/exam"
)

const fixtureYAML = `
templates:
  - id: aws-saa
    name: Solutions Architect Associate
    question_count: 2
    duration_sec: 600
    pass_threshold: 0.7
    is_active: true
    questions:
      - id: q1
        text: Which service stores objects?
        type: single
        explanation: S3 is the object store.
        choices:
          - id: q1-a
            text: S3
            correct: true
          - id: q1-b
            text: EBS
      - id: q2
        text: Which are compute services?
        type: multi
        choices:
          - id: q2-a
            text: EC2
            correct: true
          - id: q2-b
            text: Lambda
            correct: true
          - id: q2-c
            text: VPC
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeFixture(t, fixtureYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Templates) != 1 {
		t.Fatalf("got %d templates", len(f.Templates))
	}
	tpl := f.Templates[0]
	if tpl.ID != "aws-saa" || tpl.QuestionCount != 2 || tpl.PassThreshold != 0.7 {
		t.Errorf("template = %+v", tpl)
	}
	if len(tpl.Questions) != 2 || len(tpl.Questions[1].Choices) != 3 {
		t.Errorf("questions = %+v", tpl.Questions)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() File {
		return File{Templates: []Template{{
			ID: "t", Name: "T", QuestionCount: 1, DurationSec: 60, PassThreshold: 0.5,
			Questions: []Question{{
				ID: "q", Text: "q?", Type: "single",
				Choices: []Choice{{ID: "a", Correct: true}, {ID: "b"}},
			}},
		}}}
	}

	tests := []struct {
		name    string
		mutate  func(*File)
		wantErr string
	}{
		{"valid", func(f *File) {}, ""},
		{"missing id", func(f *File) { f.Templates[0].ID = "" }, "id and name required"},
		{"zero question count", func(f *File) { f.Templates[0].QuestionCount = 0 }, "question_count"},
		{"zero duration", func(f *File) { f.Templates[0].DurationSec = 0 }, "duration_sec"},
		{"threshold above one", func(f *File) { f.Templates[0].PassThreshold = 1.5 }, "pass_threshold"},
		{"pool smaller than count", func(f *File) { f.Templates[0].QuestionCount = 5 }, "pool"},
		{"single with two correct", func(f *File) {
			f.Templates[0].Questions[0].Choices[1].Correct = true
		}, "exactly one correct"},
		{"single with none correct", func(f *File) {
			f.Templates[0].Questions[0].Choices[0].Correct = false
		}, "exactly one correct"},
		{"multi with none correct", func(f *File) {
			f.Templates[0].Questions[0].Type = "multi"
			f.Templates[0].Questions[0].Choices[0].Correct = false
		}, "at least one correct"},
		{"unknown type", func(f *File) { f.Templates[0].Questions[0].Type = "essay" }, "unknown type"},
		{"one choice only", func(f *File) {
			f.Templates[0].Questions[0].Choices = []Choice{{ID: "a", Correct: true}}
		}, "at least two choices"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := base()
			tc.mutate(&f)
			err := Validate(f)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestApply_UpsertsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "seed.db")
	d, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()

	f, err := Load(writeFixture(t, fixtureYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Apply(ctx, d, f); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	store := exam.NewSQLStore(d)
	tpl, err := store.GetTemplate(ctx, "aws-saa")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Name != "Solutions Architect Associate" || !tpl.IsActive {
		t.Errorf("template = %+v", tpl)
	}
	pool, err := store.ListPool(ctx, "aws-saa")
	if err != nil {
		t.Fatalf("ListPool: %v", err)
	}
	if len(pool) != 2 {
		t.Fatalf("pool = %d, want 2", len(pool))
	}

	// re-apply with an edit: updates in place, no duplicates
	f.Templates[0].Name = "SAA (2025 refresh)"
	f.Templates[0].Questions[0].Choices[0].Text = "Amazon S3"
	if err := Apply(ctx, d, f); err != nil {
		t.Fatalf("re-Apply: %v", err)
	}
	tpl, _ = store.GetTemplate(ctx, "aws-saa")
	if tpl.Name != "SAA (2025 refresh)" {
		t.Errorf("name after re-apply = %q", tpl.Name)
	}
	q, err := store.GetQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if len(q.Choices) != 2 || q.Choices[0].Text != "Amazon S3" {
		t.Errorf("choices after re-apply = %+v", q.Choices)
	}
}
