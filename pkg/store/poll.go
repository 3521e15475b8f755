package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petrijr/jobseal/pkg/api"
)

// pollWatch implements the Watcher contract for backends without native
// change notification by re-reading the record every interval.
func pollWatch(ctx context.Context, b Backend, path, id string, interval time.Duration, logger *slog.Logger) <-chan api.Document {
	out := make(chan api.Document, 1)

	go func() {
		defer close(out)

		// Use a reusable timer to avoid allocating one per idle poll.
		tmr := time.NewTimer(0)
		defer tmr.Stop()

		var last []byte
		first := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-tmr.C:
			}

			doc, err := b.Get(ctx, path, id)
			switch {
			case errors.Is(err, ErrNotFound):
				send(ctx, out, nil)
				return
			case errors.Is(err, ErrClosed):
				return
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				logger.WarnContext(ctx, "record_poll_failed",
					slog.String("path", path),
					slog.String("id", id),
					slog.Any("error", err),
				)
			default:
				enc, encErr := EncodeDocument(doc)
				if encErr == nil && (first || string(enc) != string(last)) {
					first = false
					last = enc
					if !send(ctx, out, doc) {
						return
					}
				}
			}

			tmr.Reset(interval)
		}
	}()

	return out
}

func send(ctx context.Context, ch chan<- api.Document, doc api.Document) bool {
	select {
	case ch <- doc:
		return true
	case <-ctx.Done():
		return false
	}
}
