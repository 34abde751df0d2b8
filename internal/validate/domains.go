// Package validate classifies hosts against the official and news
// allow-lists.
package validate

import (
	"net/url"
	"strings"

	"github.com/ppiankov/credence/internal/model"
)

// Class is the allow-list a host belongs to
type Class string

const (
	ClassOfficial Class = "official"
	ClassNews     Class = "news"
	ClassUnknown  Class = "unknown"
)

// DomainClassifier classifies hosts into official, news or unknown
type DomainClassifier struct {
	officialMap map[string]bool
	newsMap     map[string]bool
	official    []string
	news        []string
}

// NewDomainClassifier creates a classifier over immutable allow-lists
func NewDomainClassifier(domains model.DomainSets) *DomainClassifier {
	c := &DomainClassifier{
		officialMap: make(map[string]bool),
		newsMap:     make(map[string]bool),
		official:    domains.Official(),
		news:        domains.News(),
	}
	for _, d := range c.official {
		c.officialMap[d] = true
	}
	for _, d := range c.news {
		c.newsMap[d] = true
	}
	return c
}

// Classify classifies a URL or bare host
func (c *DomainClassifier) Classify(rawURL string) Class {
	host := Host(rawURL)
	if host == "" {
		return ClassUnknown
	}

	// Exact matches first so a news outlet under an official suffix stays news
	if c.officialMap[host] {
		return ClassOfficial
	}
	if c.newsMap[host] {
		return ClassNews
	}

	// Subdomains (e.g., en.president.az under president.az)
	for _, d := range c.official {
		if strings.HasSuffix(host, "."+d) {
			return ClassOfficial
		}
	}
	for _, d := range c.news {
		if strings.HasSuffix(host, "."+d) {
			return ClassNews
		}
	}

	if isGovernmentHost(host) {
		return ClassOfficial
	}
	return ClassUnknown
}

// InGroup reports whether rawURL belongs to the allow-list for group
func (c *DomainClassifier) InGroup(rawURL string, group model.EvidenceGroup) bool {
	switch group {
	case model.GroupOfficial:
		return c.Classify(rawURL) == ClassOfficial
	case model.GroupNews:
		return c.Classify(rawURL) == ClassNews
	default:
		return true
	}
}

// isGovernmentHost recognises government and intergovernmental TLDs such as
// .gov, .mil, .int and second-level gov.az style zones.
func isGovernmentHost(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	switch labels[len(labels)-1] {
	case "gov", "mil", "int":
		return true
	}
	switch labels[len(labels)-2] {
	case "gov", "gob", "gouv", "govt", "mil":
		return true
	}
	return false
}

// Host returns the lower-cased host of a URL or bare host name without port
// or a leading www.
func Host(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}
