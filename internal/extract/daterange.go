package extract

import (
	"regexp"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

var dateRangeRules = []struct {
	re   *regexp.Regexp
	mode apptype.DateRangeMode
}{
	{regexp.MustCompile(`(?i)\b(current|recent)\b`), apptype.DateRangeRecent},
	{regexp.MustCompile(`(?i)\b(historic|old|ancient)\b`), apptype.DateRangeHistoric},
	{regexp.MustCompile(`(?i)\b(latest|today|now)\b`), apptype.DateRangeLatest},
}

// ClassifyDateRange derives the temporal mode from keywords in the raw query.
// The first matching rule wins.
func ClassifyDateRange(query string) apptype.DateRangeMode {
	for _, rule := range dateRangeRules {
		if rule.re.MatchString(query) {
			return rule.mode
		}
	}
	return apptype.DateRangeUnspecified
}
