package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github/itish2003/ainotes/config"
	"github/itish2003/ainotes/controller"
	"github/itish2003/ainotes/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (and the inbox watcher when INBOX_DIR is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.ConfigureLogging()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Inbox.Dir != "" {
		watcher := services.NewInboxWatcher(a.importer, a.notes, cfg.Inbox.Dir, cfg.Inbox.OwnerID)
		if err := watcher.Scan(ctx); err != nil {
			logrus.WithError(err).Error("INBOX: Initial scan failed")
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logrus.WithError(err).Error("INBOX: Watcher stopped")
			}
		}()
	}

	router := controller.NewRouter(controller.RouterConfig{
		UserHeader: cfg.Server.UserHeader,
		Notes:      controller.NewNotesController(a.notes, a.importer),
		Chat:       controller.NewChatController(a.chat),
		Ready:      a.ready,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Go Gin backend server starting on %s", srv.Addr)
		logrus.Infof("Health check available at: http://localhost:%s/health", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("SHUTDOWN: Signal received, draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("SHUTDOWN: Server stopped")
	return nil
}
