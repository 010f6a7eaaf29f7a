package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/api"
	"github.com/eaziwage/advance-engine/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the risk review scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tokens, err := session.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("%w (set auth.jwt_secret or EWA_AUTH_JWT_SECRET)", err)
		}

		env, err := newAppEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		handler := api.NewHandler(env.Store, env.Employers, env.Advances, tokens)
		defer handler.Close()

		scheduler := api.NewReviewScheduler(env.Employers)
		scheduler.CheckInterval = cfg.Risk.ReviewCheckInterval
		handler.Reviews = scheduler
		scheduler.Start()
		defer scheduler.Stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return eris.Wrap(err, "server listen")
		}
		zap.L().Info("starting server", zap.Int("port", port))
		if err := serveUntilDone(ctx, srv, ln, 30*time.Second); err != nil {
			return err
		}
		zap.L().Info("server stopped")
		return nil
	},
}

// serveUntilDone serves on ln until ctx ends, then returns only after
// Shutdown has drained in-flight requests or the grace period ran out.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("forced shutdown", zap.Error(err))
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	<-drained
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
