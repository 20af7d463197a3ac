package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	apphttp "autolot/internal/http"
)

func newServeCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cmd.Flags(), logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return serve(ctx, app)
		},
	}
	cmd.Flags().String("addr", "", "address to listen on (default 0.0.0.0:5000)")
	cmd.Flags().String("images", "", "directory for uploaded listing photos")
	return cmd
}

func serve(ctx context.Context, app *application) error {
	logger := app.logger
	cfg := app.cfg

	if cfg.UsingDefaultSecret() {
		logger.Warn("auth.secret is the built-in default; set AUTOLOT_AUTH_SECRET before exposing this server")
	}

	if _, err := app.users.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	sessions := apphttp.NewSessionManager([]byte(cfg.Auth.Secret), app.sessionTTL(), cfg.Auth.CookieSecure)
	handler := apphttp.NewHandler(app.listings, app.users, app.images, sessions, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}
