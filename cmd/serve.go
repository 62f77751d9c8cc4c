package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"recordbridge/internal/api"
	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/usecase/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *pipeline.Service, dispatcher *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		api.RegisterRoutes(e, api.NewHandler(svc, dispatcher))

		signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- e.Start(app.Config.Server.Addr)
		}()
		logging.Info(ctx, "http server started", slog.String("addr", app.Config.Server.Addr))

		select {
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errs.Wrap(err, "serve http")
			}
			return nil
		case <-signalCtx.Done():
		}

		logging.Info(ctx, "shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
