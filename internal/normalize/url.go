package normalize

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/ppiankov/credence/internal/fetch"
)

// blockedHosts are link shorteners that hide the real destination.
var blockedHosts = []string{
	"bit.ly", "tinyurl.com", "t.co", "goo.gl", "ow.ly",
	"buff.ly", "adf.ly", "linktr.ee", "short.link",
}

var suspiciousURLFragments = []string{"%00", "../", `..\`, "file://", "ftp://"}

// ValidateURL checks that rawURL is an absolute http(s) URL that does not
// point at a shortener, a non-public address literal or carry traversal
// tricks. It returns the parsed URL. Names that resolve to internal
// addresses are caught by the fetcher.
func ValidateURL(rawURL string, maxLength int) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrUnsupportedInput)
	}
	if maxLength > 0 && len(rawURL) > maxLength {
		return nil, fmt.Errorf("%w: url longer than %d characters", ErrUnsupportedInput, maxLength)
	}

	lower := strings.ToLower(rawURL)
	for _, frag := range suspiciousURLFragments {
		if strings.Contains(lower, frag) {
			return nil, fmt.Errorf("%w: url contains %q", ErrUnsupportedInput, frag)
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedInput, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: url has no host", ErrUnsupportedInput)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, fetch.ErrPrivateAddress)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !fetch.IsPublicAddr(addr) {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnsupportedInput, fetch.ErrPrivateAddress, addr)
	}
	for _, blocked := range blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return nil, fmt.Errorf("%w: link shortener %s", ErrUnsupportedInput, host)
		}
	}
	u.Fragment = ""
	return u, nil
}
