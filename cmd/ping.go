package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the configured reference store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ping"); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		start := time.Now()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Ping(ctx); err != nil {
			return err
		}

		zap.L().Info("store reachable",
			zap.String("driver", cfg.Store.Driver),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
