package latedays

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gradeflow/internal/utils"
)

// ErrLockTimeout is returned when the store lock cannot be taken in time.
// Grading must stop: continuing would risk spending late days twice.
var ErrLockTimeout = errors.New("timed out waiting for late days lock")

// Store is the term-wide late-days balance shared by every grader. The file
// maps student -> assignment -> days used and is guarded by an advisory lock
// on "<file>.lock".
type Store struct {
	path    string
	total   int
	timeout time.Duration
	days    map[string]map[string]int
}

// Open loads the store at path under the lock. A missing file is an empty
// store.
func Open(path string, total int, timeout time.Duration) (*Store, error) {
	s := &Store{
		path:    path,
		total:   total,
		timeout: timeout,
	}

	err := s.withLock(func() error {
		var err error
		s.days, err = s.read()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) withLock(fn func() error) error {
	lock, err := acquire(s.path+".lock", s.timeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.release(); err != nil {
			slog.Warn("Unable to release late days lock", "error", err)
		}
	}()
	return fn()
}

func (s *Store) read() (map[string]map[string]int, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]map[string]int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read late days %s: %w", s.path, err)
	}

	days := make(map[string]map[string]int)
	if err := json.Unmarshal(content, &days); err != nil {
		return nil, fmt.Errorf("parse late days %s: %w", s.path, err)
	}
	return days, nil
}

// Total returns the per-student allowance.
func (s *Store) Total() int {
	return s.total
}

// Used returns the late days student has spent so far.
func (s *Store) Used(student string) int {
	return used(s.days, student)
}

func used(days map[string]map[string]int, student string) int {
	total := 0
	for _, d := range days[student] {
		total += d
	}
	return total
}

// HasLateDays reports whether every student can spend days on assignment
// without exceeding the allowance. Days already recorded for assignment are
// not charged again. The answer reflects the store as last read; Charge
// decides under the lock.
func (s *Store) HasLateDays(assignment string, students []string, days int) bool {
	return s.affordable(s.days, assignment, students, days)
}

func (s *Store) affordable(current map[string]map[string]int, assignment string, students []string, days int) bool {
	for _, student := range students {
		spent := used(current, student)
		if _, recorded := current[student][assignment]; !recorded {
			spent += days
		}
		if spent > s.total {
			return false
		}
	}
	return true
}

// Charge spends days on assignment for every student when all of them can
// afford it, and reports whether it did. The balance is checked against the
// file re-read under the lock, so two graders cannot both spend a student's
// last day.
func (s *Store) Charge(assignment string, students []string, days int) (bool, error) {
	charged := false
	err := s.withLock(func() error {
		current, err := s.read()
		if err != nil {
			return err
		}
		s.days = current
		if !s.affordable(current, assignment, students, days) {
			return nil
		}
		if err := s.write(current, assignment, students, days); err != nil {
			return err
		}
		charged = true
		return nil
	})
	return charged, err
}

// Update charges days on assignment to every student that has no charge for
// it yet, regardless of the balance. The file is re-read under the lock so
// concurrent graders do not lose each other's updates.
func (s *Store) Update(assignment string, students []string, days int) error {
	return s.withLock(func() error {
		current, err := s.read()
		if err != nil {
			return err
		}
		return s.write(current, assignment, students, days)
	})
}

// write merges the charge into current and stores it. Callers hold the lock.
func (s *Store) write(current map[string]map[string]int, assignment string, students []string, days int) error {
	for _, student := range students {
		spent, found := current[student]
		if !found {
			spent = make(map[string]int)
			current[student] = spent
		}
		if _, recorded := spent[assignment]; !recorded {
			spent[assignment] = days
		}
	}

	err := utils.WriteFileAtomic(s.path, 0o644, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "    ")
		return encoder.Encode(current)
	})
	if err != nil {
		return fmt.Errorf("write late days %s: %w", s.path, err)
	}

	s.days = current
	return nil
}

// Dump writes a tab-separated table of days used per assignment with a
// total column. Zero cells are left empty. With no students listed, every
// student in the store is dumped.
func (s *Store) Dump(w io.Writer, students []string) error {
	assignments := make(map[string]struct{})
	for _, spent := range s.days {
		for a := range spent {
			assignments[a] = struct{}{}
		}
	}
	columns := make([]string, 0, len(assignments))
	for a := range assignments {
		columns = append(columns, a)
	}
	sort.Strings(columns)

	if len(students) == 0 {
		for student := range s.days {
			students = append(students, student)
		}
		sort.Strings(students)
	}

	header := append(append([]string{"UNI"}, columns...), "total")
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}

	for _, student := range students {
		row := []string{student}
		total := 0
		for _, a := range columns {
			d := s.days[student][a]
			total += d
			row = append(row, cell(d))
		}
		row = append(row, cell(total))
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func cell(days int) string {
	if days == 0 {
		return ""
	}
	return strconv.Itoa(days)
}
