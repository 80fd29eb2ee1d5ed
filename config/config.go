package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// Each service reads the subset it needs; boot-required values use MustEnv so a
// missing credential fails at startup, never lazily under load.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	ListenAddr    string

	// Bus topics
	TopicTradesRaw        string
	TopicNewsRaw          string
	TopicSocialRaw        string
	TopicEventsNormalized string

	// Trade feed
	TradeFeedURL    string
	StreamSymbols   string
	PingIntervalSec int
	ReconnectMinSec float64
	ReconnectMaxSec float64
	HeartbeatPeriod time.Duration

	// Candle aggregation / finalization
	CandleTTLSec     int
	FinalizeGraceSec int
	FlushTickSec     int
	AdminTOTPSecret  string

	// Fusion
	WatchSymbols      string
	NewsLookbackSec   int
	SocialLookbackSec int
	JoinThresholdPct  float64

	// Alerting
	CandleAlertThresholdPct float64
	CandleCooldownSec       int
	FusedAlertSeverityMin   int
	FusedCooldownSec        int

	// Push channels
	TelegramBotToken string
	TelegramChatID   string
	LINEChannelToken string
	LINETo           string

	// News collection
	NewsAPIKey  string
	NewsAPIURL  string
	RSSFeeds    string
	DedupTTLSec int

	// Social collection
	SocialSubreddits string
	RedditFetchLimit int

	// Chat bot
	TelegramWebhookSecret string
	PlannerURL            string

	// Reasoning oracle
	OracleAPIKey string
	OracleModel  string
}

// Load reads configuration from environment variables with normative defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),

		TopicTradesRaw:        getEnv("TOPIC_TRADES_RAW", "trades.raw"),
		TopicNewsRaw:          getEnv("TOPIC_NEWS_RAW", "news.raw"),
		TopicSocialRaw:        getEnv("TOPIC_SOCIAL_RAW", "social.raw"),
		TopicEventsNormalized: getEnv("TOPIC_EVENTS_NORMALIZED", "events.normalized"),

		TradeFeedURL:    getEnv("TRADE_FEED_URL", "wss://ws.finnhub.io"),
		StreamSymbols:   getEnv("STREAM_SYMBOLS", "AAPL,TSLA,NVDA"),
		PingIntervalSec: getInt("PING_INTERVAL_SEC", 20),
		ReconnectMinSec: getFloat("RECONNECT_MIN_DELAY_SEC", 1.0),
		ReconnectMaxSec: getFloat("RECONNECT_MAX_DELAY_SEC", 60.0),
		HeartbeatPeriod: time.Duration(getInt("HEARTBEAT_PERIOD_SEC", 60)) * time.Second,

		CandleTTLSec:     getInt("CANDLE_TTL_SEC", 10800),
		FinalizeGraceSec: getInt("FINALIZE_GRACE_SEC", 120),
		FlushTickSec:     getInt("FLUSH_TICK_SEC", 30),
		AdminTOTPSecret:  getEnv("ADMIN_TOTP_SECRET", ""),

		WatchSymbols:      getEnv("WATCH_SYMBOLS", ""),
		NewsLookbackSec:   getInt("NEWS_LOOKBACK_SEC", 1800),
		SocialLookbackSec: getInt("SOCIAL_LOOKBACK_SEC", 3600),
		JoinThresholdPct:  getFloat("JOIN_THRESHOLD_PCT", 0.25),

		CandleAlertThresholdPct: getFloat("CANDLE_ALERT_THRESHOLD_PCT", 0.9),
		CandleCooldownSec:       getInt("CANDLE_COOLDOWN_SEC", 180),
		FusedAlertSeverityMin:   getInt("FUSED_ALERT_SEVERITY_MIN", 35),
		FusedCooldownSec:        getInt("FUSED_COOLDOWN_SEC", 300),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		LINEChannelToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LINETo:           getEnv("LINE_TO", ""),

		NewsAPIKey:  getEnv("NEWS_API_KEY", ""),
		NewsAPIURL:  getEnv("NEWS_API_URL", "https://finnhub.io/api/v1/news?category=general"),
		RSSFeeds:    getEnv("RSS_FEEDS", ""),
		DedupTTLSec: getInt("DEDUP_TTL_SEC", 86400),

		SocialSubreddits: getEnv("SOCIAL_SUBREDDITS", "stocks,wallstreetbets"),
		RedditFetchLimit: getInt("REDDIT_FETCH_LIMIT", 25),

		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET_TOKEN", ""),
		PlannerURL:            getEnv("TRADE_PLANNER_URL", ""),

		OracleAPIKey: getEnv("ORACLE_API_KEY", ""),
		OracleModel:  getEnv("ORACLE_MODEL", "gemini-1.5-flash"),
	}
}

// Watchlist parses WatchSymbols into an upper-cased set.
// An empty list means "accept all symbols".
func (c *Config) Watchlist() map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(c.WatchSymbols, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out[s] = true
		}
	}
	return out
}

// SymbolList parses StreamSymbols into an upper-cased slice.
func (c *Config) SymbolList() []string {
	parts := strings.Split(c.StreamSymbols, ",")
	syms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			syms = append(syms, p)
		}
	}
	return syms
}

// SubredditList parses SocialSubreddits into a slice of subreddit names.
func (c *Config) SubredditList() []string {
	parts := strings.Split(c.SocialSubreddits, ",")
	subs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			subs = append(subs, p)
		}
	}
	return subs
}

// RSSFeedList parses RSSFeeds into a slice of feed URLs.
func (c *Config) RSSFeedList() []string {
	parts := strings.Split(c.RSSFeeds, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// MustEnv returns the value of a required environment variable,
// terminating the process when it is unset.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}
