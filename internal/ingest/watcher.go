package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/ports"
	"recordbridge/internal/usecase/pipeline"
)

// Watcher tails a drop directory for extraction payload files. OCR engines
// write one JSON payload per processed document; every *.json landing in
// the directory is parsed, validated and enqueued on the dispatcher.
//
// Ingested payloads are marked in the cache by content digest, so the
// startup rescan does not re-enqueue files from a previous run.
type Watcher struct {
	dir        string
	dispatcher *pipeline.Dispatcher
	marks      ports.Cache
	debounce   time.Duration
}

func NewWatcher(dir string, dispatcher *pipeline.Dispatcher, marks ports.Cache) *Watcher {
	return &Watcher{
		dir:        dir,
		dispatcher: dispatcher,
		marks:      marks,
		debounce:   200 * time.Millisecond,
	}
}

// Run watches the drop directory until ctx is cancelled. Files already
// present at startup are ingested before new events are handled.
func (w *Watcher) Run(ctx context.Context) error {
	if strings.TrimSpace(w.dir) == "" {
		return errors.New("watch directory is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create fsnotify watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return errs.Wrapf(err, "watch directory %s", w.dir)
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "ingest.watcher"),
		slog.String("dir", w.dir),
	)
	logging.Info(logCtx, "watching drop directory")

	if err := w.initialScan(logCtx); err != nil {
		return err
	}

	var timer *time.Timer
	pending := map[string]struct{}{}
	flush := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-flush:
			for path := range pending {
				delete(pending, path)
				w.ingestFile(logCtx, path)
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isPayloadFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// OCR engines write payloads in several chunks; debounce so a
			// file is read once, after its last write.
			pending[event.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case flush <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error(logCtx, "watcher error", slog.Any("err", errs.Loggable(err)))
		}
	}
}

func (w *Watcher) initialScan(ctx context.Context) error {
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isPayloadFile(path) {
			return nil
		}
		w.ingestFile(ctx, path)
		return nil
	})
	if err != nil {
		return errs.Wrapf(err, "scan drop directory %s", w.dir)
	}
	return nil
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	fileCtx := logging.WithAttrs(ctx, slog.String("file", filepath.Base(path)))

	raw, err := os.ReadFile(path)
	if err != nil {
		logging.Error(fileCtx, "read payload file failed", slog.Any("err", errs.Loggable(err)))
		return
	}

	mark := markKey(raw)
	if w.marks != nil {
		if _, seen, err := w.marks.Get(ctx, mark); err != nil {
			logging.Error(fileCtx, "read ingest mark failed", slog.Any("err", errs.Loggable(err)))
		} else if seen {
			return
		}
	}

	input, err := pipeline.ParseExtractionPayload(raw)
	if err != nil {
		logging.Error(fileCtx, "invalid extraction payload", slog.Any("err", errs.Loggable(err)))
		return
	}
	if input.Filename == "" {
		input.Filename = filepath.Base(path)
	}
	if err := w.dispatcher.Enqueue(ctx, input); err != nil {
		logging.Error(fileCtx, "enqueue payload failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	if w.marks != nil {
		if err := w.marks.Set(ctx, mark, input.SourceJobID, 0); err != nil {
			logging.Error(fileCtx, "write ingest mark failed", slog.Any("err", errs.Loggable(err)))
		}
	}
	logging.Info(fileCtx, "payload queued", slog.String("source_job_id", input.SourceJobID))
}

func markKey(raw []byte) string {
	digest := sha256.Sum256(raw)
	return "ingest:" + hex.EncodeToString(digest[:])
}

func isPayloadFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
