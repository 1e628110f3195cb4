package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lumarchive/chatscope/internal/config"
	"github.com/lumarchive/chatscope/internal/logging"
)

var (
	debug   bool
	dataDir string

	cfg     *config.Config
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "chatscope",
	Short: "Decrypt and analyze a local messaging client's chat archive",
	Long: `chatscope decrypts a local messaging client's encrypted chat database,
browses its sessions and messages, and computes chat analytics and
two-party reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		pm := config.NewPathManager()
		if dataDir != "" {
			pm = config.NewPathManagerAt(dataDir)
		}
		if err := setupLogging(pm); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(pm)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// setupLogging keeps stderr clean outside debug mode by sending the logger to
// a file under the app's logs directory.
func setupLogging(pm *config.PathManager) error {
	if debug {
		logging.Setup(os.Stderr, true)
		return nil
	}
	logsDir, err := pm.LogsDir()
	if err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err = os.OpenFile(filepath.Join(logsDir, "chatscope.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logging.Setup(logFile, false)
	return nil
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log to stderr at debug level")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the application data directory")
}
