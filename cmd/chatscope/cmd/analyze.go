package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/analytics"
	"github.com/lumarchive/chatscope/internal/app"
)

var (
	analyzeForce   bool
	analyzeTop     int
	analyzeExclude []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute whole-store statistics and contact rankings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		excluded := append(append([]string{}, cfg.ExcludedIDs...), analyzeExclude...)
		result, err := a.Analytics.LoadOrCompute(cmd.Context(), analytics.Options{
			Excluded:     excluded,
			ForceRefresh: analyzeForce,
			OnStale:      promptStale,
		})
		if err != nil {
			if errors.Is(err, analytics.ErrRealtimeAnalysis) {
				return fmt.Errorf("%w: chatscope configure --mode backup", err)
			}
			return err
		}

		printResult(result, analyzeTop)
		return nil
	},
}

// promptStale is the interactive staleness gate: the store changed since the
// cached aggregate was computed and a rescan is expensive, so the user picks.
func promptStale(computedAt time.Time) analytics.StaleDecision {
	fmt.Printf("The database changed since the last analysis (%s).\n",
		computedAt.Format("2006-01-02 15:04"))
	fmt.Print("Reuse the old results? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(answer), "y") {
		return analytics.DecideReuse
	}
	return analytics.DecideRecompute
}

func printResult(result *analytics.Result, top int) {
	stats := result.Stats
	source := "computed"
	if result.FromCache {
		source = "cached"
	}
	fmt.Printf("Messages: %d over %d active days (%.1f/day, %s)\n",
		stats.TotalMessages, stats.ActiveDays, stats.AveragePerDay, source)
	if !stats.FirstMessage.IsZero() {
		fmt.Printf("Range: %s - %s (%d days)\n",
			stats.FirstMessage.Format("2006-01-02"), stats.LastMessage.Format("2006-01-02"),
			stats.SpanDays)
	}
	for label, count := range stats.ByType {
		fmt.Printf("  %s: %d\n", label, count)
	}
	if result.Diagnostics.Failed > 0 {
		fmt.Printf("(%d contacts could not be read and were skipped)\n", result.Diagnostics.Failed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\n#\tCONTACT\tMESSAGES\tSENT\tRECEIVED")
	for i, r := range result.Rankings {
		if top > 0 && i >= top {
			break
		}
		name := r.DisplayName
		if name == "" {
			name = r.ID
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", i+1, name, r.MessageCount, r.Sent, r.Received)
	}
	w.Flush()
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "recompute even when a valid cache entry exists")
	analyzeCmd.Flags().IntVar(&analyzeTop, "top", 20, "number of ranked contacts to print (0 = all)")
	analyzeCmd.Flags().StringArrayVar(&analyzeExclude, "exclude", nil, "session id to exclude (repeatable)")
	rootCmd.AddCommand(analyzeCmd)
}
