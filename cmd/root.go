package main

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gradeflow/internal/configuration"

	"github.com/spf13/cobra"
)

// errIncomplete makes status exit with code 1 without logging an error.
var errIncomplete = errors.New("grading is incomplete")

var (
	configPath string
	config     *configuration.AppConfig
)

var codePattern = regexp.MustCompile(`^[A-Z]+\d*$`)

var rootCmd = &cobra.Command{
	Use:   "gradeflow",
	Short: "Rubric-driven grading of programming assignments",
	Long: `gradeflow walks a rubric item by item for each submission, runs the
automated tests, asks the grader to settle what the tests could not, and
keeps every award in a per-assignment grade ledger.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = configuration.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("unable to load configuration: %w", err)
		}
		prepareLogger(config.Logger.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/gradeflow/config.yaml", "configuration file")
}

// normalizeCode upper-cases a rubric filter and checks its shape: ALL, a
// table code (letters) or an item code (letters then digits).
func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(code) {
		return "", fmt.Errorf("invalid rubric code '%s'", code)
	}
	return code, nil
}
