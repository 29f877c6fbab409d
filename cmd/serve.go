package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sketchmapper/sketchmapper/internal/server"
)

var servePort int

// reloader is implemented by stores that can reread their source in place.
type reloader interface {
	Reload() error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP matching service",
	Long:  "Serves POST /sketchmapper and GET /health. SIGHUP rereads the reference data of the memory driver.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if r, ok := st.(reloader); ok {
			go reloadOnHangup(ctx, r)
		}

		m, err := initMatcher(st)
		if err != nil {
			return err
		}

		srv := server.New(m, st, server.Config{
			Port:        cfg.Server.Port,
			AccessToken: cfg.Server.AccessToken,
			RateLimit:   cfg.Server.RateLimit,
			RateBurst:   cfg.Server.RateBurst,
			CORSOrigins: cfg.Server.CORSOrigins,
			Circuit:     m,
		})
		return srv.Run(ctx)
	},
}

func reloadOnHangup(ctx context.Context, r reloader) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := r.Reload(); err != nil {
				zap.L().Error("reload reference data failed", zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
