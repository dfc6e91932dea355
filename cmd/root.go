package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rayven",
	Short: "Stray-light ghost simulation for wide-field cameras",
	Long:  "Poses the telescope or calibration projector, traces star fields through the remote ray-tracing engine, and bins the resulting ghost images on the focal plane.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
