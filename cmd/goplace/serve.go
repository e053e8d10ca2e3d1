package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/samuelfneumann/goplace/server"
)

func (a *app) serveCmd() *cobra.Command {
	var shutdown time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve training and inference over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, closeStore, err := a.trainer()
			if err != nil {
				return err
			}
			defer closeStore()

			gin.SetMode(gin.ReleaseMode)
			s := server.New(t, a.config.Request(), a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
				syscall.SIGTERM)
			defer stop()
			return s.ListenAndServe(ctx, a.config.Server.Addr, shutdown)
		},
	}
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 30*time.Second,
		"time to wait for open requests on shutdown")
	return cmd
}
