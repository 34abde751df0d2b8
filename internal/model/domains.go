package model

import (
	"slices"
	"strings"
)

// DefaultOfficialDomains are government and intergovernmental sites searched
// for official corroboration.
var DefaultOfficialDomains = []string{
	"gov.az",
	"president.az",
	"mfa.gov.az",
	"economy.gov.az",
	"who.int",
	"un.org",
	"council.europa.eu",
	"europa.eu",
	"osce.org",
}

// DefaultNewsDomains are the news outlets searched for media corroboration.
var DefaultNewsDomains = []string{
	"trend.az",
	"axar.az",
	"apa.az",
	"azernews.az",
	"news.az",
	"milli.az",
	"oxu.az",
	"azerbaycan24.com",
	"moderator.az",
	"yenisabah.az",
}

// DomainSets is an immutable pair of allow-lists. The zero value is empty.
type DomainSets struct {
	official []string
	news     []string
}

// NewDomainSets copies and normalizes the given lists.
func NewDomainSets(official, news []string) DomainSets {
	return DomainSets{
		official: normalizeDomains(official),
		news:     normalizeDomains(news),
	}
}

// Official returns a copy of the official allow-list.
func (d DomainSets) Official() []string { return slices.Clone(d.official) }

// News returns a copy of the news allow-list.
func (d DomainSets) News() []string { return slices.Clone(d.news) }

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "www.")
		d = strings.TrimSuffix(d, "/")
		if d == "" || slices.Contains(out, d) {
			continue
		}
		out = append(out, d)
	}
	return out
}
