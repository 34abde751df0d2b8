package search

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// trackingParams are dropped before comparing URLs
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "yclid": true, "mc_cid": true, "mc_eid": true,
}

// CanonicalURL returns the form used to detect duplicate results: scheme
// and www. ignored, host lower-cased, no fragment, no trailing slash and no
// tracking parameters. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	query := u.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || trackingParams[strings.ToLower(key)] {
			query.Del(key)
		}
	}

	canonical := host + path
	if encoded := query.Encode(); encoded != "" {
		canonical += "?" + encoded
	}
	return canonical
}

var (
	relativeDate = regexp.MustCompile(`^(\d+)\s+(minute|hour|day|week)s?\s+ago`)
	absoluteDate = regexp.MustCompile(`^([A-Z][a-z]{2}) (\d{1,2}), (\d{4})`)
)

// ParsePublished reads the date prefix search engines put in snippets
// ("3 days ago ...", "Oct 3, 2026 ..."). It returns nil when there is none.
func ParsePublished(snippet string, now time.Time) *time.Time {
	snippet = strings.TrimSpace(snippet)

	if m := relativeDate.FindStringSubmatch(snippet); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		unit := map[string]time.Duration{
			"minute": time.Minute,
			"hour":   time.Hour,
			"day":    24 * time.Hour,
			"week":   7 * 24 * time.Hour,
		}[m[2]]
		t := now.Add(-time.Duration(n) * unit)
		return &t
	}

	if m := absoluteDate.FindString(snippet); m != "" {
		t, err := time.Parse("Jan 2, 2006", m)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}
