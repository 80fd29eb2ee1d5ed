// Package social collects posts from social platforms through pluggable
// adapters, deduplicates by post URL and publishes canonical social events.
// Like the news collector it is scheduler-driven via POST /run.
package social

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/model"
)

// Adapter fetches recent posts from one platform.
type Adapter interface {
	Platform() string
	Fetch(ctx context.Context) ([]model.SocialEvent, error)
}

// Deduper is the slice of the KV store the worker needs.
type Deduper interface {
	Seen(ctx context.Context, url string) bool
	Mark(ctx context.Context, url string, ttlSec int) error
}

// Options carries the worker's tunables.
type Options struct {
	Topic       string
	DedupTTLSec int
}

// Worker runs one sweep across all adapters per trigger.
type Worker struct {
	pub      bus.Publisher
	dedup    Deduper
	adapters []Adapter
	opts     Options

	now func() time.Time

	// Metrics hook (optional, set externally)
	OnPublished func(platform string)
}

// New creates a Worker over the given adapters.
func New(pub bus.Publisher, dedup Deduper, adapters []Adapter, opts Options) *Worker {
	return &Worker{pub: pub, dedup: dedup, adapters: adapters, opts: opts, now: time.Now}
}

// Result counts one sweep.
type Result struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
}

// Run sweeps every adapter. A failing platform is logged and skipped so
// one dead source never starves the others.
func (w *Worker) Run(ctx context.Context) Result {
	var res Result
	ingestedAt := w.now().UTC().Format(time.RFC3339)

	for _, a := range w.adapters {
		posts, err := a.Fetch(ctx)
		if err != nil {
			slog.Warn("social fetch failed", "platform", a.Platform(), "err", err)
			continue
		}
		for _, ev := range posts {
			if ev.URL == "" {
				continue
			}
			if w.dedup.Seen(ctx, ev.URL) {
				res.Skipped++
				continue
			}
			if err := w.dedup.Mark(ctx, ev.URL, w.opts.DedupTTLSec); err != nil {
				slog.Warn("dedup mark failed", "url", ev.URL, "err", err)
			}

			ev.EventType = model.KindSocial
			ev.Platform = a.Platform()
			if ev.IngestedAt == "" {
				ev.IngestedAt = ingestedAt
			}
			if err := w.pub.Publish(ctx, w.opts.Topic, &ev, nil); err != nil {
				slog.Error("social publish failed", "url", ev.URL, "err", err)
				continue
			}
			res.Published++
			if w.OnPublished != nil {
				w.OnPublished(a.Platform())
			}
		}
	}

	slog.Info("social sweep done", "published", res.Published, "skipped", res.Skipped)
	return res
}

// HandleRun is the POST /run handler for the scheduler trigger.
func (w *Worker) HandleRun(rw http.ResponseWriter, r *http.Request) {
	res := w.Run(r.Context())
	httpapi.WriteJSON(rw, http.StatusOK, map[string]any{
		"ok": true, "published": res.Published, "skipped": res.Skipped,
	})
}
