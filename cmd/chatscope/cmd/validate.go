package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured key against the store without decrypting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		key, err := wxcrypt.ParseKey(cfg.Key)
		if err != nil {
			return err
		}

		sample, err := wxcrypt.FindSampleDatabase(cfg.RootPath, cfg.AccountID)
		if err != nil {
			if errors.Is(err, wxcrypt.ErrAccountAmbiguous) {
				return fmt.Errorf("%w; pick one with: chatscope configure --account <id>", err)
			}
			return err
		}

		ok, err := wxcrypt.ValidateKey(sample, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w; extract a fresh key from the running client and retry",
				wxcrypt.ErrDecryptionFailed)
		}
		fmt.Println("key accepted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
