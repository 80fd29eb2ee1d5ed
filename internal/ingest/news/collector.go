// Package news collects financial news from a provider REST API and from
// RSS feeds, deduplicates by URL and publishes canonical news events. A
// scheduler hits POST /run once a minute; each run is bounded and
// idempotent under the dedup window.
package news

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"time"

	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/model"
)

// Deduper is the slice of the KV store the collector needs.
type Deduper interface {
	Seen(ctx context.Context, url string) bool
	Mark(ctx context.Context, url string, ttlSec int) error
}

const (
	fetchTimeout = 15 * time.Second

	maxProviderItems = 100
	maxRSSItems      = 200
	maxPerFeed       = 50
	maxSummaryLen    = 500
)

// Options carries the collector's tunables.
type Options struct {
	Topic       string
	APIURL      string // provider endpoint; empty disables the provider leg
	APIKey      string
	RSSFeeds    []string
	DedupTTLSec int
}

// Collector runs one news sweep per trigger.
type Collector struct {
	pub    bus.Publisher
	dedup  Deduper
	opts   Options
	client *http.Client

	now func() time.Time

	// Metrics hook (optional, set externally)
	OnPublished func()
}

// New creates a Collector.
func New(pub bus.Publisher, dedup Deduper, opts Options) *Collector {
	return &Collector{
		pub:    pub,
		dedup:  dedup,
		opts:   opts,
		client: &http.Client{Timeout: fetchTimeout},
		now:    time.Now,
	}
}

// Result counts one collection run.
type Result struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
}

// providerItem is the provider's news record shape.
type providerItem struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Related  string `json:"related"`
}

// rssFeed is the subset of RSS 2.0 the collector reads.
type rssFeed struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Run performs one collection sweep: provider news first, then every RSS
// feed. A failing source is logged and skipped; the sweep always completes.
func (c *Collector) Run(ctx context.Context) Result {
	var res Result
	ingestedAt := c.now().UTC().Format(time.RFC3339)

	for i, item := range c.fetchProvider(ctx) {
		if i == maxProviderItems {
			break
		}
		c.publishItem(ctx, model.NewsEvent{
			EventType:  model.KindNews,
			Source:     "provider",
			IngestedAt: ingestedAt,
			Headline:   item.Headline,
			Summary:    truncate(item.Summary, maxSummaryLen),
			URL:        item.URL,
			Related:    item.Related,
			Category:   item.Category,
		}, &res)
	}

	count := 0
	for _, feedURL := range c.opts.RSSFeeds {
		for _, ev := range c.fetchRSS(ctx, feedURL, ingestedAt) {
			if count == maxRSSItems {
				break
			}
			count++
			c.publishItem(ctx, ev, &res)
		}
	}

	slog.Info("news sweep done", "published", res.Published, "skipped", res.Skipped)
	return res
}

// publishItem dedups by URL and publishes. Items without a URL cannot be
// deduplicated and are dropped.
func (c *Collector) publishItem(ctx context.Context, ev model.NewsEvent, res *Result) {
	if ev.URL == "" {
		return
	}
	if c.dedup.Seen(ctx, ev.URL) {
		res.Skipped++
		return
	}
	if err := c.dedup.Mark(ctx, ev.URL, c.opts.DedupTTLSec); err != nil {
		slog.Warn("dedup mark failed", "url", ev.URL, "err", err)
	}

	if err := c.pub.Publish(ctx, c.opts.Topic, &ev, nil); err != nil {
		slog.Error("news publish failed", "url", ev.URL, "err", err)
		return
	}
	res.Published++
	if c.OnPublished != nil {
		c.OnPublished()
	}
}

func (c *Collector) fetchProvider(ctx context.Context) []providerItem {
	if c.opts.APIURL == "" || c.opts.APIKey == "" {
		return nil
	}

	url := c.opts.APIURL + "&token=" + c.opts.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Error("provider request failed", "err", err)
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("provider fetch failed", "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("provider returned error", "status", resp.StatusCode)
		return nil
	}

	var items []providerItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		slog.Error("provider decode failed", "err", err)
		return nil
	}
	return items
}

func (c *Collector) fetchRSS(ctx context.Context, feedURL, ingestedAt string) []model.NewsEvent {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		slog.Warn("rss request failed", "feed", feedURL, "err", err)
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("rss fetch failed", "feed", feedURL, "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("rss returned error", "feed", feedURL, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		slog.Warn("rss read failed", "feed", feedURL, "err", err)
		return nil
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		slog.Warn("rss parse failed", "feed", feedURL, "err", err)
		return nil
	}

	var out []model.NewsEvent
	for i, item := range feed.Channel.Items {
		if i == maxPerFeed {
			break
		}
		if item.Link == "" {
			continue
		}
		out = append(out, model.NewsEvent{
			EventType:  model.KindNews,
			Source:     "rss",
			IngestedAt: ingestedAt,
			Headline:   item.Title,
			Summary:    truncate(item.Description, maxSummaryLen),
			URL:        item.Link,
			FeedURL:    feedURL,
		})
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// HandleRun is the POST /run handler for the scheduler trigger.
func (c *Collector) HandleRun(w http.ResponseWriter, r *http.Request) {
	res := c.Run(r.Context())
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true, "published": res.Published, "skipped": res.Skipped,
	})
}
