package latedays

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gradeflow/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "late_days.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	s, err := Open(path, 5, time.Second)
	require.NoError(t, err)
	return s
}

func TestStore_HasLateDays(t *testing.T) {
	s := openStore(t, `{"amy": {"hw1": 2, "hw2": 2}, "bob": {"hw1": 1}}`)

	assert.Equal(t, 4, s.Used("amy"))
	assert.True(t, s.HasLateDays("hw3", []string{"amy"}, 1))
	assert.False(t, s.HasLateDays("hw3", []string{"amy"}, 2))
	assert.True(t, s.HasLateDays("hw2", []string{"amy"}, 2), "recorded days are not charged twice")
	assert.False(t, s.HasLateDays("hw3", []string{"bob", "amy"}, 2), "every team member needs the days")
	assert.True(t, s.HasLateDays("hw3", []string{"new"}, 5))
}

func TestStore_Update(t *testing.T) {
	s := openStore(t, `{"amy": {"hw1": 2}}`)

	require.NoError(t, s.Update("hw1", []string{"amy", "bob"}, 1))
	assert.Equal(t, 2, s.Used("amy"), "existing charge is kept")
	assert.Equal(t, 1, s.Used("bob"))

	reopened, err := Open(s.path, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Used("bob"))
	assert.Equal(t, 2, reopened.Used("amy"))
}

func TestStore_Update_MergesConcurrentWriters(t *testing.T) {
	first := openStore(t, "")
	second, err := Open(first.path, 5, time.Second)
	require.NoError(t, err)

	require.NoError(t, first.Update("hw1", []string{"amy"}, 1))
	require.NoError(t, second.Update("hw1", []string{"bob"}, 2))

	reopened, err := Open(first.path, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Used("amy"))
	assert.Equal(t, 2, reopened.Used("bob"))
}

func TestOpen_LockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late_days.json")
	held, err := acquire(path+".lock", time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = Open(path, 5, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, held.release())
	_, err = Open(path, 5, 100*time.Millisecond)
	assert.NoError(t, err)
}

func TestOpen_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late_days.json")
	require.NoError(t, os.WriteFile(path, []byte("[1, 2]"), 0o644))
	_, err := Open(path, 5, time.Second)
	assert.Error(t, err)
}

func TestStore_Dump(t *testing.T) {
	s := openStore(t, `{"bob": {"hw2": 1}, "amy": {"hw1": 2, "hw2": 1}}`)

	var buf bytes.Buffer
	require.NoError(t, s.Dump(&buf, nil))
	assert.Equal(t, "UNI\thw1\thw2\ttotal\namy\t2\t1\t3\nbob\t\t1\t1\n", buf.String())

	buf.Reset()
	require.NoError(t, s.Dump(&buf, []string{"cat"}))
	assert.Equal(t, "UNI\thw1\thw2\ttotal\ncat\t\t\t\n", buf.String())
}

func TestDaysLate(t *testing.T) {
	due := time.Date(2026, 2, 1, 23, 59, 0, 0, time.UTC)
	grace := 5 * time.Minute

	assert.Equal(t, 0, DaysLate(due, due, grace))
	assert.Equal(t, 0, DaysLate(due, due.Add(4*time.Minute), grace))
	assert.Equal(t, 1, DaysLate(due, due.Add(6*time.Minute), grace))
	assert.Equal(t, 1, DaysLate(due, due.Add(24*time.Hour+5*time.Minute), grace))
	assert.Equal(t, 2, DaysLate(due, due.Add(24*time.Hour+6*time.Minute), grace))
}

func TestEarlyLateOffset(t *testing.T) {
	due := time.Date(2026, 2, 1, 23, 59, 0, 0, time.UTC)
	grace := 5 * time.Minute
	value := func(p *int) any {
		if p == nil {
			return nil
		}
		return *p
	}

	assert.Equal(t, 2, value(EarlyLateOffset(due, due.Add(-48*time.Hour), grace, 2)))
	assert.Equal(t, 0, value(EarlyLateOffset(due, due.Add(-time.Hour), grace, 2)))
	assert.Equal(t, 0, value(EarlyLateOffset(due, due, grace, 2)))
	assert.Equal(t, -1, value(EarlyLateOffset(due, due.Add(3*time.Hour), grace, 2)))
	assert.Equal(t, -2, value(EarlyLateOffset(due, due.Add(30*time.Hour), grace, 2)))
	assert.Nil(t, value(EarlyLateOffset(due, due.Add(50*time.Hour), grace, 2)))
}

func TestStore_Status(t *testing.T) {
	s := openStore(t, `{"amy": {"hw1": 4}}`)

	status, err := s.Status("hw2", []string{"amy"}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, policy.LateStatusOK, status)

	status, err = s.Status("hw2", []string{"amy"}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, policy.LateStatusTooLate, status)

	status, err = s.Status("hw2", []string{"amy"}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, policy.LateStatusNoLateDays, status)

	status, err = s.Status("hw2", []string{"amy", "bob"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, policy.LateStatusOK, status)
	assert.Equal(t, 5, s.Used("amy"))
	assert.Equal(t, 1, s.Used("bob"))
}

func TestStore_Status_ConcurrentGraders(t *testing.T) {
	first := openStore(t, `{"amy": {"hw1": 4}}`)
	second, err := Open(first.path, 5, time.Second)
	require.NoError(t, err)

	status, err := first.Status("hw2", []string{"amy"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, policy.LateStatusOK, status)

	status, err = second.Status("hw3", []string{"amy"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, policy.LateStatusNoLateDays, status, "the last day was spent by the other grader")
	assert.Equal(t, 5, second.Used("amy"))

	reopened, err := Open(first.path, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, reopened.Used("amy"))
	assert.Equal(t, map[string]int{"hw1": 4, "hw2": 1}, reopened.days["amy"])
}

func TestStore_Charge(t *testing.T) {
	s := openStore(t, `{"amy": {"hw1": 4}}`)

	charged, err := s.Charge("hw2", []string{"amy", "bob"}, 2)
	require.NoError(t, err)
	assert.False(t, charged)
	assert.Equal(t, 0, s.Used("bob"), "nobody is charged when one member cannot afford it")

	charged, err = s.Charge("hw1", []string{"amy"}, 3)
	require.NoError(t, err)
	assert.True(t, charged, "an existing charge for the assignment is not spent again")
	assert.Equal(t, 4, s.Used("amy"))
}
