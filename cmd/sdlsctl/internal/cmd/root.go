package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"github.com/groundlink/sdls/pkg/sdls/config"
)

var (
	configPath string
	debug      bool
	logLevel   slog.LevelVar
)

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Use:   "sdlsctl",
	Short: "Operator CLI for the CCSDS Space Data Link Security engine",
	Long: `sdlsctl provisions keys and Security Associations against a seed
configuration file and inspects the engine's tamper/security event log.

It does not talk to a running spacecraft link directly — all the
commands it runs are the same SA/key lifecycle operations an EP command
uplinked over the TC channel would perform, exercised locally against
the seed file for ground testing and rehearsal.`,
}

// Execute runs the root command; called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sdls.yaml", "Path to the seed configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Print debug logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(keyCmd, saCmd, logCmd)
}

func loadConfig() (*config.Config, error) {
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	return config.Load(viper.GetString("config"))
}
