package server

import (
	"fmt"

	"gradeflow/internal/assignment"
	"gradeflow/internal/configuration"
	"gradeflow/internal/ledger"
	"gradeflow/internal/rubric"
)

// LedgerGradebook reads the configured assignments' ledgers from disk on
// every request, so grades recorded by running sessions show up without a
// restart.
type LedgerGradebook struct {
	config *configuration.AppConfig
}

// NewLedgerGradebook creates a gradebook over the configured assignments.
func NewLedgerGradebook(config *configuration.AppConfig) *LedgerGradebook {
	return &LedgerGradebook{config: config}
}

func (g *LedgerGradebook) open(name string) (*ledger.Ledger, error) {
	cfg, err := g.config.Assignment(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAssignment, name)
	}
	return assignment.LoadLedger(cfg)
}

// FinalGrades implements Gradebook.
func (g *LedgerGradebook) FinalGrades(name string, submitters []string) ([]ledger.FinalGrade, error) {
	l, err := g.open(name)
	if err != nil {
		return nil, err
	}
	return l.FinalGrades(submitters)
}

// Stats implements Gradebook.
func (g *LedgerGradebook) Stats(name string) (ledger.Stats, error) {
	l, err := g.open(name)
	if err != nil {
		return ledger.Stats{}, err
	}
	return l.Stats(rubric.AllCode, true)
}
