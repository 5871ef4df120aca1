package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gradeflow/internal/configuration"
	"gradeflow/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGradebook struct {
	grades map[string]ledger.FinalGrade
	asked  []string
}

func (g *fakeGradebook) FinalGrades(assignment string, submitters []string) ([]ledger.FinalGrade, error) {
	if assignment != "hw1" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAssignment, assignment)
	}
	g.asked = submitters
	if len(submitters) == 0 {
		return []ledger.FinalGrade{g.grades["abc"], g.grades["xyz"]}, nil
	}

	var out []ledger.FinalGrade
	for _, name := range submitters {
		grade, found := g.grades[name]
		if !found {
			return nil, ledger.NewUnknownSubmitterError(name)
		}
		if grade.Submitter != "" {
			out = append(out, grade)
		}
	}
	return out, nil
}

func (g *fakeGradebook) Stats(assignment string) (ledger.Stats, error) {
	if assignment == "hw2" {
		return ledger.Stats{}, ledger.NewInsufficientDataError(1)
	}
	if assignment != "hw1" {
		return ledger.Stats{}, ErrUnknownAssignment
	}
	return ledger.Stats{NonZero: true, Count: 2, Avg: 90, Median: 90, StdDev: 5}, nil
}

func newTestServer() (*Server, *fakeGradebook) {
	gradebook := &fakeGradebook{grades: map[string]ledger.FinalGrade{
		"abc":     {Submitter: "abc", PostedGrade: 95, TextComment: "(A1.2: -5) Off by one"},
		"xyz":     {Submitter: "xyz", PostedGrade: 85},
		"pending": {},
	}}
	return NewServer(":0", "secret", []string{"https://lms.example.edu"}, gradebook), gradebook
}

func get(t *testing.T, s *Server, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Grades(t *testing.T) {
	s, gradebook := newTestServer()

	rec := get(t, s, "/api/v1/assignments/hw1/grades", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var grades []ledger.FinalGrade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grades))
	require.Len(t, grades, 2)
	assert.Equal(t, 95.0, grades[0].PostedGrade)
	assert.Empty(t, gradebook.asked)

	rec = get(t, s, "/api/v1/assignments/hw1/grades?submitter=xyz&submitter=abc", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"xyz", "abc"}, gradebook.asked)
}

func TestServer_Grade(t *testing.T) {
	s, _ := newTestServer()

	rec := get(t, s, "/api/v1/assignments/hw1/grades/abc", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"submitter":"abc","posted_grade":95,"text_comment":"(A1.2: -5) Off by one"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/assignments/hw1/grades/pending", "secret").Code, "incomplete grade")
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/assignments/hw1/grades/nobody", "secret").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/assignments/hw9/grades/abc", "secret").Code)
}

func TestServer_Stats(t *testing.T) {
	s, _ := newTestServer()

	rec := get(t, s, "/api/v1/assignments/hw1/stats", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_non_zero":true,"count":2,"avg":90,"median":90,"std_dev":5}`, rec.Body.String())

	assert.Equal(t, http.StatusUnprocessableEntity, get(t, s, "/api/v1/assignments/hw2/stats", "secret").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/assignments/hw9/stats", "secret").Code)
}

func TestServer_Unauthorized(t *testing.T) {
	s, _ := newTestServer()
	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/api/v1/assignments/hw1/grades", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/api/v1/assignments/hw1/grades", "guess").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assignments/hw1/grades", nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "the bearer scheme is required")
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments/hw1/grades", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/assignments/hw1/grades", nil)
	req.Header.Set("Origin", "https://lms.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://lms.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/assignments/hw1/grades", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	plain := NewServer(":0", "secret", nil, &fakeGradebook{})
	req = httptest.NewRequest(http.MethodGet, "/api/v1/assignments/hw1/stats", nil)
	req.Header.Set("Origin", "https://lms.example.edu")
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	plain.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "no origins configured")
}

func TestLedgerGradebook(t *testing.T) {
	dir := t.TempDir()
	rubricPath := filepath.Join(dir, "rubric.yaml")
	require.NoError(t, os.WriteFile(rubricPath, []byte(`
A:
  A1:
    points_per_subitem: [5, 5]
    desc_per_subitem: ["compiles", "runs"]
`), 0o600))
	ledgerPath := filepath.Join(dir, "grades.json")
	require.NoError(t, os.WriteFile(ledgerPath, []byte(`{
    "abc": {"scores": {"A1.1": {"award": true, "comments": ""}, "A1.2": {"award": false, "comments": "crashes <here>"}}},
    "def": {"scores": {"A1.1": {"award": true, "comments": ""}, "A1.2": {"award": true, "comments": ""}}},
    "xyz": {"scores": {"A1.1": {"award": null, "comments": null}, "A1.2": {"award": null, "comments": null}}}
}`), 0o600))

	gradebook := NewLedgerGradebook(&configuration.AppConfig{
		Assignments: []configuration.AssignmentConfig{{Name: "hw1", Rubric: rubricPath, Ledger: ledgerPath}},
	})

	grades, err := gradebook.FinalGrades("hw1", nil)
	require.NoError(t, err)
	assert.Equal(t, []ledger.FinalGrade{
		{Submitter: "abc", PostedGrade: 5, TextComment: "(A1.2: -5) crashes &lt;here&gt;"},
		{Submitter: "def", PostedGrade: 10, TextComment: ""},
	}, grades)

	stats, err := gradebook.Stats("hw1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 7.5, stats.Avg)

	_, err = gradebook.FinalGrades("hw9", nil)
	assert.ErrorIs(t, err, ErrUnknownAssignment)
}
