package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/app"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List conversations in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.Store.ListSessions(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tGROUP\tLAST MESSAGE")
		for _, s := range sessions {
			kind := ""
			if s.IsGroup {
				kind = "group"
			}
			last := ""
			if !s.LastTime.IsZero() {
				last = s.LastTime.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.DisplayName, kind, last)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
