package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/app"
)

var (
	msgSession string
	msgLimit   int
	msgOffset  int
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Page through one conversation, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		batch, err := a.Store.GetMessages(cmd.Context(), msgSession, msgLimit, msgOffset)
		if err != nil {
			return err
		}

		for _, m := range batch.Messages {
			direction := "<-"
			if m.IsSender {
				direction = "->"
			}
			content := m.Content
			if m.Type != 1 {
				content = "[" + m.Type.Label() + "]"
			}
			fmt.Printf("%s %s %s\n", m.Time.Format("2006-01-02 15:04:05"), direction, content)
		}
		if batch.HasMore {
			fmt.Printf("(%d total, continue with --offset %d)\n", batch.TotalCount, batch.NextOffset)
		}
		return nil
	},
}

func init() {
	messagesCmd.Flags().StringVar(&msgSession, "session", "", "session id")
	messagesCmd.Flags().IntVar(&msgLimit, "limit", 50, "page size")
	messagesCmd.Flags().IntVar(&msgOffset, "offset", 0, "page offset, newest first")
	messagesCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(messagesCmd)
}
