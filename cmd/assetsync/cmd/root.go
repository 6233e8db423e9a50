package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quartzrender/assetsync"
)

var rootCmd = &cobra.Command{
	Use:   "assetsync",
	Short: "Snapshot, diff and upload render job assets",
	Long: "assetsync builds hash-stable manifests of a job's input tree and syncs\n" +
		"their content into a content-addressed store, skipping anything the\n" +
		"store already holds.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/assetsync/config.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().IntP("concurrency", "c", 0, "worker pool size (default: CPU count)")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")

	viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ASSETSYNC")
	viper.AutomaticEnv()
	viper.SetDefault("retry.attempts", 4)
	viper.SetDefault("retry.base_delay", "500ms")

	viper.ReadInConfig()
}

func initLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})
	slog.SetDefault(slog.New(handler))
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "assetsync")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "assetsync")
	}
	return "."
}

// engineOptions translates CLI/config settings into engine options.
func engineOptions() []assetsync.Option {
	opts := []assetsync.Option{
		assetsync.WithRetryPolicy(viper.GetInt("retry.attempts"), viper.GetDuration("retry.base_delay")),
		assetsync.WithLogger(slog.Default()),
	}
	if n := viper.GetInt("concurrency"); n > 0 {
		opts = append(opts, assetsync.WithConcurrency(n))
	}
	return opts
}

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarnings(warnings []assetsync.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}

// joinWarnings flattens warnings into the single "warning" field of the
// JSON output, or nil when there were none.
func joinWarnings(warnings []assetsync.Warning) any {
	if len(warnings) == 0 {
		return nil
	}
	msgs := make([]string, len(warnings))
	for i, w := range warnings {
		msgs[i] = w.String()
	}
	return msgs
}
