package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logPath    string
	ownerID    string
	dsnFlag    string
	redisFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "rostershield",
	Short: "RosterShield - student PII redaction for LMS AI agents",
	Long: `RosterShield sits between an AI client and the LMS browser-command
executor. Student names, IDs and emails leaving the LMS are replaced with
roster tokens before the language model sees them, and tokens in
model-authored content are restored before anything is posted back.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file, YAML or TOML (default: ~/.rostershield/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.rostershield/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "Teacher account whose rosters apply (default: from config)")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "db", "", "Roster database DSN: postgres:// URL or SQLite path")
	rootCmd.PersistentFlags().StringVar(&redisFlag, "redis", "", "Redis URL for shared course contexts")
}

func Execute() error {
	return rootCmd.Execute()
}
