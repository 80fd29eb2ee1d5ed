package model

// NewsItem is one buffered piece of news evidence for a symbol.
// Buffered per symbol, newest first, aged out by TTL.
type NewsItem struct {
	Headline string `json:"headline"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	TSUnix   int64  `json:"ts_unix"`
}

// SocialItem is one buffered social-media post for a symbol.
// Same shape and lifecycle as NewsItem.
type SocialItem struct {
	Title      string             `json:"title"`
	Platform   string             `json:"platform"`
	URL        string             `json:"url"`
	Engagement map[string]float64 `json:"engagement,omitempty"`
	TSUnix     int64              `json:"ts_unix"`
}

// NewsEvent is the canonical news.raw record produced by the news collector.
type NewsEvent struct {
	EventType  string `json:"event_type"`
	Source     string `json:"source"`
	IngestedAt string `json:"ingested_at"`
	Headline   string `json:"headline"`
	Summary    string `json:"summary"`
	URL        string `json:"url"`
	Related    string `json:"related,omitempty"`  // provider-supplied comma list of symbols
	Category   string `json:"category,omitempty"`
	FeedURL    string `json:"feed_url,omitempty"`
}

// SocialEvent is the canonical social.raw record produced by a platform adapter.
type SocialEvent struct {
	EventType  string             `json:"event_type"`
	Platform   string             `json:"platform"`
	IngestedAt string             `json:"ingested_at"`
	Title      string             `json:"title"`
	Text       string             `json:"text"`
	URL        string             `json:"url"`
	Engagement map[string]float64 `json:"engagement,omitempty"`
}
