package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gradeflow/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLinesHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	h := newJSONLinesHandler(&buf, nil)

	r := slog.NewRecord(time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), slog.LevelInfo, "ignored", 0)
	r.AddAttrs(slog.String("code", "A1.1"), slog.Bool("awarded", true), slog.Any("empty", nil))
	require.NoError(t, h.Handle(context.Background(), r))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, map[string]any{
		"time":    "2026-02-03 04:05:06",
		"code":    "A1.1",
		"awarded": true,
	}, line)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.Panics(t, func() { h.WithGroup("g") })
}

func TestRecorder_Record(t *testing.T) {
	var buf bytes.Buffer
	l := newLog(&buf, nil, "hw1", "Sam")
	recorder := l.Session()
	_, err := uuid.Parse(recorder.ID())
	require.NoError(t, err)

	var _ session.Recorder = recorder
	recorder.Record(context.Background(), session.RecordedAward{
		Submitter: "abc", Code: "A1.2", Awarded: false, Comment: "stdout is incorrect", Source: "auto",
	})
	recorder.Record(context.Background(), session.RecordedAward{
		Submitter: "abc", Code: "A2.1", Awarded: true, Source: "manual",
	})

	var lines []map[string]any
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, recorder.ID(), lines[0]["session"])
	assert.Equal(t, "hw1", lines[0]["assignment"])
	assert.Equal(t, "Sam", lines[0]["grader"])
	assert.Equal(t, "A1.2", lines[0]["code"])
	assert.Equal(t, false, lines[0]["awarded"])
	assert.Equal(t, "stdout is incorrect", lines[0]["comment"])
	assert.Equal(t, "manual", lines[1]["source"])
	assert.Equal(t, "", lines[1]["comment"])

	assert.NotEqual(t, recorder.ID(), l.Session().ID(), "each session gets its own id")
	assert.NoError(t, l.Close())
}

func TestOpen_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "awards.log")
	l := Open(path, 1, 2, "hw1", "Sam")
	l.Session().Record(context.Background(), session.RecordedAward{Submitter: "abc", Code: "A1.1", Awarded: true, Source: "auto"})
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"submitter":"abc"`)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Session().Record(context.Background(), session.RecordedAward{Code: "A1.1"})
	assert.NoError(t, l.Close())
}
