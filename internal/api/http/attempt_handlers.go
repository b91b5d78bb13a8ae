package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mockexam/mockexam-server/internal/auth/middleware"
	"github.com/mockexam/mockexam-server/internal/exam"
	"github.com/mockexam/mockexam-server/internal/rbac"
)

// POST /attempts  {"template_id": "..."}
func StartAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		var req struct {
			TemplateID string `json:"template_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.TemplateID == "" {
			http.Error(w, "template_id required", http.StatusBadRequest)
			return
		}
		a, err := svc.StartAttempt(r.Context(), userID, req.TemplateID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// PUT /attempts/answers  {"attempt_question_id": "...", "selected_choice_ids": [...]}
func SaveAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		var req struct {
			AttemptQuestionID string   `json:"attempt_question_id"`
			SelectedChoiceIDs []string `json:"selected_choice_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.AttemptQuestionID == "" {
			http.Error(w, "attempt_question_id required", http.StatusBadRequest)
			return
		}
		if err := svc.SaveAnswer(r.Context(), userID, req.AttemptQuestionID, req.SelectedChoiceIDs); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// PUT /attempts/mark  {"attempt_question_id": "...", "next": true|false}
// next must be a JSON boolean; anything else is rejected rather than
// coerced.
func ToggleMarkHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		var req struct {
			AttemptQuestionID string `json:"attempt_question_id"`
			Next              *bool  `json:"next"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.AttemptQuestionID == "" || req.Next == nil {
			http.Error(w, "attempt_question_id and boolean next required", http.StatusBadRequest)
			return
		}
		if err := svc.SetMark(r.Context(), userID, req.AttemptQuestionID, *req.Next); err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// POST /attempts/{attemptID}/finish  {"end": "user_finish"|"timeout"}
func FinishAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		attemptID := chi.URLParam(r, "attemptID")
		var req struct {
			End string `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		var reason exam.EndReason
		switch req.End {
		case string(exam.EndUserFinish):
			reason = exam.EndUserFinish
		case string(exam.EndTimeout):
			reason = exam.EndTimeout
		default:
			http.Error(w, "end must be user_finish or timeout", http.StatusBadRequest)
			return
		}
		a, err := svc.FinishAttempt(r.Context(), userID, attemptID, reason)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		a, err := svc.GetAttempt(r.Context(), userID, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts?status=...&limit=50&offset=0
// Students always see their own history; a caller with attempt:view-all
// may filter by any user_id.
func ListAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())

		userID := r.URL.Query().Get("user_id")
		if role != "admin" {
			userID = sub
		}
		list, err := svc.History(r.Context(), exam.AttemptListOpts{
			UserID: userID,
			Status: r.URL.Query().Get("status"),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
