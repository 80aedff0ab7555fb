package orchestrator

import "strings"

// botMarkers is a small denylist of User-Agent substrings that force a
// request stateless (spec §4.2 step 1 "Bots ... are forced stateless"),
// grounded on the original implementation's src/bot.c fixed-table approach
// rather than a maintained external bot-detection database (out of scope,
// spec §1 non-goals).
var botMarkers = []string{
	"googlebot",
	"bingbot",
	"yandexbot",
	"duckduckbot",
	"baiduspider",
	"facebookexternalhit",
	"slackbot",
	"twitterbot",
	"ahrefsbot",
	"semrushbot",
	"mj12bot",
}

// isBotUserAgent reports whether ua matches a known crawler signature.
func isBotUserAgent(ua string) bool {
	lower := strings.ToLower(ua)

	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	return false
}
