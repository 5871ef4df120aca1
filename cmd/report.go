package main

import (
	"fmt"

	"gradeflow/internal/assignment"
	"gradeflow/internal/ledger"
	"gradeflow/internal/rubric"

	"github.com/spf13/cobra"
)

var reportFlags struct {
	code    string
	nonZero bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump HW",
	Short: "Print the score and comments of every submitter",
	Long: `Dump prints one tab-separated line per submitter: name, points and
comments. Submitters with ungraded items are printed as n/a.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

var statusCmd = &cobra.Command{
	Use:   "status HW",
	Short: "Report how many submitters are completely graded",
	Long:  `Status exits with code 1 while any submitter is still incomplete.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var statsCmd = &cobra.Command{
	Use:   "stats HW",
	Short: "Print mean, median and standard deviation of the scores",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	for _, c := range []*cobra.Command{dumpCmd, statusCmd, statsCmd} {
		c.Flags().StringVarP(&reportFlags.code, "code", "c", rubric.AllCode, "rubric code: ALL, a table (A) or an item (A1)")
		rootCmd.AddCommand(c)
	}
	statsCmd.Flags().BoolVarP(&reportFlags.nonZero, "non-zero", "n", false, "leave zero scores out")
}

// openLedger loads the rubric and ledger of an assignment. Reports need
// neither the roster nor the tests.
func openLedger(name string) (*ledger.Ledger, string, error) {
	code, err := normalizeCode(reportFlags.code)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Assignment(name)
	if err != nil {
		return nil, "", err
	}
	l, err := assignment.LoadLedger(cfg)
	return l, code, err
}

func runDump(cmd *cobra.Command, args []string) error {
	l, code, err := openLedger(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, name := range l.Submitters() {
		score, err := l.ComputeScore(name, code)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, score.Line())
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	l, code, err := openLedger(args[0])
	if err != nil {
		return err
	}
	complete, graded, err := l.Status(code, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d/%d graded\n", args[0], code, graded, len(l.Submitters()))
	if !complete {
		return errIncomplete
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	l, code, err := openLedger(args[0])
	if err != nil {
		return err
	}
	stats, err := l.Stats(code, reportFlags.nonZero)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "count\t%d\navg\t%.2f\nmedian\t%.2f\nstd_dev\t%.2f\n",
		stats.Count, stats.Avg, stats.Median, stats.StdDev)
	return nil
}
