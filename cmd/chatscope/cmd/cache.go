package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/analytics"
	"github.com/lumarchive/chatscope/internal/report"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the analytics and report caches",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := cfg.Paths().AppDir()
		if err != nil {
			return err
		}
		ac, err := analytics.NewCache(dataDir)
		if err != nil {
			return err
		}
		rc, err := report.NewCache(dataDir)
		if err != nil {
			return err
		}

		aKeys, err := ac.ListKeys()
		if err != nil {
			return err
		}
		rKeys, err := rc.ListKeys()
		if err != nil {
			return err
		}
		fmt.Printf("analytics (%d):\n", len(aKeys))
		for _, k := range aKeys {
			fmt.Println("  " + k)
		}
		fmt.Printf("reports (%d):\n", len(rKeys))
		for _, k := range rKeys {
			fmt.Println("  " + k)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := cfg.Paths().AppDir()
		if err != nil {
			return err
		}
		ac, err := analytics.NewCache(dataDir)
		if err != nil {
			return err
		}
		rc, err := report.NewCache(dataDir)
		if err != nil {
			return err
		}
		if err := ac.ClearAll(); err != nil {
			return err
		}
		if err := rc.ClearAll(); err != nil {
			return err
		}
		fmt.Println("caches cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
