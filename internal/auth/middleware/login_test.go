package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mockexam/mockexam-server/internal/db"
)

func loginTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Open(context.Background(), db.DriverSQLite,
		"file:"+filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := d.ExecContext(context.Background(),
		`INSERT INTO users (id, username, pass_hash, role) VALUES ('u1','ada',$1,'student')`,
		string(hash)); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return d
}

func TestLoginHandler(t *testing.T) {
	d := loginTestDB(t)
	a := NewAuthService("test-secret")
	h := LoginHandler(a, d)

	do := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	rec := do(`{"username":"ada","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := a.Parse(resp["access_token"])
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.Sub != "u1" || claims.Role != "student" {
		t.Errorf("claims = %+v", claims)
	}

	if rec := do(`{"username":"ada","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", rec.Code)
	}
	if rec := do(`{"username":"ghost","password":"s3cret"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: %d", rec.Code)
	}
	if rec := do(`{bad`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: %d", rec.Code)
	}
}
