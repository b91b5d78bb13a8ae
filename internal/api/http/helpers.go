package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/mockexam/mockexam-server/internal/exam"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainErr maps domain errors onto the wire contract: not-found 404,
// locked/already-finished 409, validation 400, everything else a generic
// 500 that never leaks internal detail.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	case errors.Is(err, exam.ErrLocked):
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Time over/finished"})
	case errors.Is(err, exam.ErrAlreadyFinished):
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Already finished"})
	case errors.Is(err, exam.ErrInsufficientPool):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Error"})
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
