package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/infrastructure/cache"
	"recordbridge/internal/ingest"
	"recordbridge/internal/usecase/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a drop directory for extraction payload files",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *pipeline.Service, dispatcher *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = app.Config.Pipeline.WatchDir
		}

		signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		watcher := ingest.NewWatcher(dir, dispatcher, cache.NewSQLiteCache(app.DB))
		if err := watcher.Run(signalCtx); err != nil {
			return errs.Wrap(err, "run watcher")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("dir", "", "Drop directory to watch (defaults to pipeline.watch_dir)")
}
