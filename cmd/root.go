package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stealthctx/internal/config"
	"github.com/xkilldash9x/stealthctx/internal/observability"
)

// Version is stamped at build time.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "stealthctx",
	Short:   "stealthctx opens browsing contexts indistinguishable from a human-driven desktop browser.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}
		if err := config.Load(viper.GetViper()); err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "stealthctx"})
			return err
		}

		observability.InitializeLogger(config.Get().Logger)
		observability.GetLogger().Debug("Starting stealthctx", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command with a context passed from main for graceful
// shutdown.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil && ctx.Err() == nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(verifyCmd)
}

// initializeConfig reads the config file and STEALTHCTX_* env vars.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STEALTHCTX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and env vars carry it.
	}
	return nil
}
