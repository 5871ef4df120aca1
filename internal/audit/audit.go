package audit

import (
	"context"
	"io"
	"log/slog"

	"gradeflow/internal/session"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is an append-only record of every award written during grading. Each
// award is a JSON line carrying the grading session it belongs to, so a
// regrade can be traced back to who changed what and when.
type Log struct {
	closer     io.Closer
	logger     *slog.Logger
	assignment string
	grader     string
}

// Open creates a rotating audit log at file. maxSize is in megabytes;
// maxBackups rotated files are kept, compressed.
func Open(file string, maxSize, maxBackups int, assignment, grader string) *Log {
	out := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return newLog(out, out, assignment, grader)
}

func newLog(out io.Writer, closer io.Closer, assignment, grader string) *Log {
	return &Log{
		closer:     closer,
		logger:     slog.New(newJSONLinesHandler(out, nil)),
		assignment: assignment,
		grader:     grader,
	}
}

// Session returns a Recorder that tags every award with a fresh session id.
func (l *Log) Session() *Recorder {
	return &Recorder{log: l, id: uuid.NewString()}
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Recorder writes the awards of one grading session.
type Recorder struct {
	log *Log
	id  string
}

// ID returns the session id.
func (r *Recorder) ID() string {
	return r.id
}

// Record implements session.Recorder.
func (r *Recorder) Record(ctx context.Context, award session.RecordedAward) {
	r.log.logger.InfoContext(ctx, "",
		"session", r.id,
		"assignment", r.log.assignment,
		"grader", r.log.grader,
		"submitter", award.Submitter,
		"code", award.Code,
		"awarded", award.Awarded,
		"comment", award.Comment,
		"source", award.Source,
	)
}

// Discard is a Recorder target that drops everything.
func Discard() *Log {
	return newLog(io.Discard, nil, "", "")
}
