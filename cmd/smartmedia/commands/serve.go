package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KarpelesLab/smartmedia/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve media over HTTP with Range support",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}

		e, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		if e.catalog != nil && cfg.Manifest.Watch {
			go func() {
				if err := e.catalog.Watch(ctx); err != nil {
					log.WithError(err).Error("manifest watch stopped")
				}
			}()
		}

		srv := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           server.New(e.m, e.gatherer(), log.Log).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			log.WithField("addr", srv.Addr).Info("listening")
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return errors.Wrap(err, "failed to stop server")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}
