package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mockexam/mockexam-server/internal/auth/middleware"
	"github.com/mockexam/mockexam-server/internal/exam"
)

// GET /templates
func ListTemplatesHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListActiveTemplates(r.Context())
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /attempts/{attemptID}/questions/{index}  (index is 1-based)
func GetQuestionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		idx := parseIntDefault(chi.URLParam(r, "index"), 0)
		if idx < 1 {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
			return
		}
		v, err := svc.Question(r.Context(), userID, chi.URLParam(r, "attemptID"), idx)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /attempts/{attemptID}/summary
func GetSummaryHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		v, err := svc.Summary(r.Context(), userID, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /attempts/{attemptID}/result
func GetResultHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		v, err := svc.Result(r.Context(), userID, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /attempts/{attemptID}/review — questions flagged for review
func ListMarkedHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.SubjectFromContext(r.Context())
		items, err := svc.ListMarked(r.Context(), userID, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}
