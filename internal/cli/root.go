package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stampwise/passd/internal/config"
	"github.com/stampwise/passd/internal/logger"
	"github.com/stampwise/passd/internal/version"
)

var (
	cfg       *config.ServerEnvironment
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "passctl",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "wallet pass service CLI",
	Long:              `Operational CLI for the wallet pass service: signing diagnostics, dev key generation, pass issuance and scan submission`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// keygen runs without service configuration
		if cmd.Name() == "keygen" {
			return nil
		}

		_ = godotenv.Load()

		var err error
		cfg, err = config.NewServerConfig()
		if err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}

		appLogger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
		return nil
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(certsCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(scanCmd)
}
