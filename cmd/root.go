package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/app"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/config"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "eidos-retention",
	Short: "Tiered retention for candles, signals and audit data",
	Long: `eidos-retention keeps online tables bounded.

Records move through hot, warm and cold tiers by age. Warm records are
archived to gzip JSON lines files, cold records are archived and deleted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := logger.Init(&logger.Config{
			Level:       c.Log.Level,
			Format:      c.Log.Format,
			ServiceName: c.Service.Name,
		}); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: $CONFIG_PATH or config/config.yaml)")
}

// withRetention 初始化依赖后执行一次性命令, 结束后关闭
func withRetention(ctx context.Context, fn func(context.Context, *retention.Service) error) (err error) {
	a := app.New(cfg)
	defer func() {
		if serr := a.Shutdown(context.Background()); serr != nil && err == nil {
			err = serr
		}
	}()
	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	return fn(ctx, a.Retention())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
