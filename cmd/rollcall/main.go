// Command rollcall runs enrollment, training and verification on a local
// camera and reads back the attendance log.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abihf/rollcall/config"
	"github.com/abihf/rollcall/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	conf   *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "rollcall",
	Short:         "Face attendance station",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// .env is optional
		_ = godotenv.Load()

		var err error
		if configPath != "" {
			conf, err = config.LoadFile(cmd.Context(), configPath)
		} else {
			conf, err = config.Load(cmd.Context())
		}
		if err != nil {
			return err
		}
		if logLevel != "" {
			conf.LogLevel = logLevel
		}
		logger, _, err = logging.Setup(conf.LogLevel, "")
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
