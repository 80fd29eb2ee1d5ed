package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"marketfuse/internal/model"
)

// RedditAdapter reads a subreddit's newest posts through the public JSON
// listing. No credentials needed for read-only access.
type RedditAdapter struct {
	subreddit string
	limit     int
	baseURL   string
	client    *http.Client
}

// NewRedditAdapter creates an adapter for one subreddit.
func NewRedditAdapter(subreddit string, limit int) *RedditAdapter {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return &RedditAdapter{
		subreddit: subreddit,
		limit:     limit,
		baseURL:   "https://www.reddit.com",
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL overrides the API host, for tests.
func (r *RedditAdapter) SetBaseURL(u string) { r.baseURL = u }

func (r *RedditAdapter) Platform() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Permalink   string  `json:"permalink"`
				Ups         float64 `json:"ups"`
				NumComments float64 `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (r *RedditAdapter) Fetch(ctx context.Context) ([]model.SocialEvent, error) {
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d", r.baseURL, r.subreddit, r.limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("reddit request: %w", err)
	}
	req.Header.Set("User-Agent", "marketfuse/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("reddit decode: %w", err)
	}

	out := make([]model.SocialEvent, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		if p.Permalink == "" {
			continue
		}
		ev := model.SocialEvent{
			Title: p.Title,
			Text:  p.Selftext,
			URL:   "https://www.reddit.com" + p.Permalink,
			Engagement: map[string]float64{
				"ups":      p.Ups,
				"comments": p.NumComments,
			},
		}
		if p.CreatedUTC > 0 {
			ev.IngestedAt = time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339)
		}
		out = append(out, ev)
	}
	return out, nil
}

// StubAdapter returns a fixed set of posts; used when no platform
// credentials are configured and in tests.
type StubAdapter struct {
	PlatformName string
	Posts        []model.SocialEvent
	Err          error
}

func (s *StubAdapter) Platform() string {
	if s.PlatformName == "" {
		return "stub"
	}
	return s.PlatformName
}

func (s *StubAdapter) Fetch(context.Context) ([]model.SocialEvent, error) {
	return s.Posts, s.Err
}
