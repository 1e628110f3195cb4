package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt the store into a local backup copy",
	Long: `Decrypts the encrypted chat databases into the work directory. Copies
that are already up to date with their source are reused. The backup copy is
what analytics and reports run against.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		key, err := wxcrypt.ParseKey(cfg.Key)
		if err != nil {
			return err
		}
		workDir, err := cfg.Paths().WorkDir()
		if err != nil {
			return err
		}

		handle, err := wxcrypt.OpenStore(cmd.Context(), wxcrypt.OpenOptions{
			Root:      cfg.RootPath,
			Key:       key,
			AccountID: cfg.AccountID,
			Mode:      wxcrypt.ModeBackup,
			WorkDir:   workDir,
			Progress: func(done, total int64) {
				fmt.Fprintf(os.Stderr, "\rdecrypting %3d%%", done*100/total)
			},
		})
		if err != nil {
			return err
		}
		defer handle.Close()

		fmt.Fprintln(os.Stderr)
		fmt.Printf("backup ready for account %s\n", handle.AccountID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decryptCmd)
}
