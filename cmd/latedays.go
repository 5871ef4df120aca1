package main

import (
	"errors"

	"gradeflow/internal/latedays"

	"github.com/spf13/cobra"
)

var lateDaysCmd = &cobra.Command{
	Use:   "late-days [STUDENT...]",
	Short: "Print the late days each student has used",
	Long: `Late-days prints a tab-separated table with one column per assignment
and a total. Without STUDENT every student in the store is listed.`,
	RunE: runLateDays,
}

func init() {
	rootCmd.AddCommand(lateDaysCmd)
}

func runLateDays(cmd *cobra.Command, args []string) error {
	if config.LateDays.File == "" {
		return errors.New("late_days.file: must be specified")
	}
	store, err := latedays.Open(config.LateDays.File, config.LateDays.Total, config.LateDays.LockTimeout)
	if err != nil {
		return err
	}
	return store.Dump(cmd.OutOrStdout(), args)
}
