package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/app"
	"github.com/lumarchive/chatscope/internal/report"
)

var (
	reportCounterparty string
	reportYear         int
	reportForce        bool
	reportJSON         bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the two-party report for one contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var year *int
		if reportYear != 0 {
			year = &reportYear
		}

		if !reportForce {
			cached, ok, err := a.Reports.Cached(reportCounterparty, year)
			if err == nil && ok {
				return printReport(cached)
			}
		}

		job, err := a.Reports.Generate(cmd.Context(), reportCounterparty, year)
		if err != nil {
			return err
		}

		for event := range job.Events() {
			if event.Type == report.EventProgress {
				fmt.Fprintf(os.Stderr, "\r%-20s %3.0f%%", event.Task, event.Progress)
			}
		}
		fmt.Fprintln(os.Stderr)

		payload, err := job.Result()
		if err != nil {
			return fmt.Errorf("report failed: %w (retry with the same arguments)", err)
		}
		return printReport(payload)
	},
}

func printReport(r *report.DualReport) error {
	if reportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	name := r.CounterpartyName
	if name == "" {
		name = r.Counterparty
	}
	fmt.Printf("Report for %s\n", name)
	if !r.FirstContact.IsZero() {
		fmt.Printf("First contact %s, last %s, %d active days\n",
			r.FirstContact.Format("2006-01-02"), r.LastContact.Format("2006-01-02"), r.ActiveDays)
	}
	fmt.Printf("Longest streak %d days, current streak %d days\n", r.LongestStreak, r.CurrentStreak)
	if r.TopEmojiSelf != nil {
		fmt.Printf("Your top emoji: %s (%d)\n", r.TopEmojiSelf.Emoji, r.TopEmojiSelf.Count)
	}
	if r.TopEmojiPeer != nil {
		fmt.Printf("Their top emoji: %s (%d)\n", r.TopEmojiPeer.Emoji, r.TopEmojiPeer.Count)
	}
	for _, y := range r.Years {
		fmt.Printf("\n%d: %d messages (%d sent, %d received)\n", y.Year, y.Total, y.Sent, y.Received)
		for label, count := range y.ByType {
			fmt.Printf("  %s: %d\n", label, count)
		}
	}
	return nil
}

func init() {
	reportCmd.Flags().StringVar(&reportCounterparty, "counterparty", "", "contact id to report on")
	reportCmd.Flags().IntVar(&reportYear, "year", 0, "restrict to one calendar year (0 = all time)")
	reportCmd.Flags().BoolVar(&reportForce, "force", false, "ignore the report cache")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "emit the payload as JSON")
	reportCmd.MarkFlagRequired("counterparty")
	rootCmd.AddCommand(reportCmd)
}
