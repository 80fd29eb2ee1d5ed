package fusion

import (
	"regexp"
	"strings"
)

// maxFanout bounds how many symbols a single news item can touch.
const maxFanout = 10

var tickerPattern = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// stopWords are common all-caps headline words that look like tickers but
// aren't. Only consulted for regex-extracted candidates; provider-supplied
// lists pass through verbatim.
var stopWords = map[string]bool{
	"A": true, "I": true, "AN": true, "THE": true, "AND": true, "OR": true,
	"FOR": true, "TO": true, "ON": true, "IN": true, "AT": true, "OF": true,
	"IS": true, "IT": true, "BE": true, "AS": true, "BY": true, "UP": true,
	"US": true, "USA": true, "UK": true, "EU": true, "CEO": true, "CFO": true,
	"CTO": true, "IPO": true, "ETF": true, "SEC": true, "FED": true,
	"GDP": true, "CPI": true, "AI": true, "EPS": true, "USD": true,
	"NYSE": true, "WSJ": true, "Q": true, "YOY": true, "NEW": true,
}

// ExtractSymbols returns the symbols a news record concerns, at most
// maxFanout. A provider-supplied comma list is used verbatim; otherwise
// ticker-shaped runs in the headline are matched and filtered against the
// stop-word list. A non-empty watchlist further restricts the result; an
// empty watchlist accepts everything.
func ExtractSymbols(related, headline string, watchlist map[string]bool) []string {
	var candidates []string
	seen := make(map[string]bool)

	if strings.TrimSpace(related) != "" {
		for _, s := range strings.Split(related, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" && !seen[s] {
				seen[s] = true
				candidates = append(candidates, s)
			}
		}
	} else {
		for _, s := range tickerPattern.FindAllString(headline, -1) {
			if stopWords[s] || seen[s] {
				continue
			}
			seen[s] = true
			candidates = append(candidates, s)
		}
	}

	out := make([]string, 0, len(candidates))
	for _, s := range candidates {
		if len(watchlist) > 0 && !watchlist[s] {
			continue
		}
		out = append(out, s)
		if len(out) == maxFanout {
			break
		}
	}
	return out
}
