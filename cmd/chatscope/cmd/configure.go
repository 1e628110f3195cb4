package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cfgRoot    string
	cfgKey     string
	cfgAccount string
	cfgMode    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the store root, key, account and mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgRoot != "" {
			cfg.RootPath = cfgRoot
		}
		if cfgKey != "" {
			cfg.Key = cfgKey
		}
		cfg.SetAccount(cfgAccount)
		if cfgMode != "" {
			cfg.Mode = cfgMode
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println("configuration saved")
		return nil
	},
}

func init() {
	configureCmd.Flags().StringVar(&cfgRoot, "root", "", "root directory containing account subdirectories")
	configureCmd.Flags().StringVar(&cfgKey, "key", "", "64-character hex decryption key")
	configureCmd.Flags().StringVar(&cfgAccount, "account", "", "account id when more than one qualifies")
	configureCmd.Flags().StringVar(&cfgMode, "mode", "", `store mode: "backup" or "realtime"`)
	rootCmd.AddCommand(configureCmd)
}
