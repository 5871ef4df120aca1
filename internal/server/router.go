package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"gradeflow/internal/ledger"
)

// ErrUnknownAssignment is returned by a Gradebook for assignments it does
// not serve.
var ErrUnknownAssignment = errors.New("unknown assignment")

// Gradebook gives read access to final grades.
type Gradebook interface {
	// FinalGrades returns the complete grades of the listed submitters, or
	// of everyone when the list is empty.
	FinalGrades(assignment string, submitters []string) ([]ledger.FinalGrade, error)
	// Stats summarizes the non-zero complete scores of an assignment.
	Stats(assignment string) (ledger.Stats, error)
}

// ApiV1Router manages routes for API version 1. Every route requires the
// bearer token.
type ApiV1Router struct {
	// gradebook — source of final grades
	gradebook Gradebook
	// token — expected bearer token
	token string
}

// Mux returns a configured *http.ServeMux with registered handlers:
// - GET /api/v1/assignments/{assignment}/grades — every complete grade;
// repeat ?submitter= to narrow the list
// - GET /api/v1/assignments/{assignment}/grades/{submitter} — one grade
// - GET /api/v1/assignments/{assignment}/stats — score statistics
func (ar *ApiV1Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/assignments/{assignment}/grades", ar.authorized(ar.gradesHandler))
	mux.HandleFunc("GET /api/v1/assignments/{assignment}/grades/{submitter}", ar.authorized(ar.gradeHandler))
	mux.HandleFunc("GET /api/v1/assignments/{assignment}/stats", ar.authorized(ar.statsHandler))
	return mux
}

func (ar *ApiV1Router) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(ar.token)) != 1 {
			slog.Warn("Unauthorized gradebook request", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (ar *ApiV1Router) gradesHandler(w http.ResponseWriter, r *http.Request) {
	assignment := r.PathValue("assignment")
	grades, err := ar.gradebook.FinalGrades(assignment, r.URL.Query()["submitter"])
	if err != nil {
		writeError(w, assignment, err)
		return
	}
	writeJSON(w, grades)
}

func (ar *ApiV1Router) gradeHandler(w http.ResponseWriter, r *http.Request) {
	assignment := r.PathValue("assignment")
	submitter := r.PathValue("submitter")

	grades, err := ar.gradebook.FinalGrades(assignment, []string{submitter})
	if err != nil {
		writeError(w, assignment, err)
		return
	}
	if len(grades) == 0 {
		slog.Debug("Grade is not complete", "assignment", assignment, "submitter", submitter)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, grades[0])
}

func (ar *ApiV1Router) statsHandler(w http.ResponseWriter, r *http.Request) {
	assignment := r.PathValue("assignment")
	stats, err := ar.gradebook.Stats(assignment)
	if err != nil {
		writeError(w, assignment, err)
		return
	}
	writeJSON(w, stats)
}

func writeError(w http.ResponseWriter, assignment string, err error) {
	var unknownSubmitter *ledger.UnknownSubmitterError
	var insufficient *ledger.InsufficientDataError
	switch {
	case errors.Is(err, ErrUnknownAssignment), errors.As(err, &unknownSubmitter):
		slog.Warn("Not found", "assignment", assignment, "error", err)
		w.WriteHeader(http.StatusNotFound)
	case errors.As(err, &insufficient):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		slog.Error("Unable to read gradebook", "assignment", assignment, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Unable to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// NewApiV1Router creates a new API v1 router.
func NewApiV1Router(gradebook Gradebook, token string) *ApiV1Router {
	return &ApiV1Router{
		gradebook: gradebook,
		token:     token,
	}
}
