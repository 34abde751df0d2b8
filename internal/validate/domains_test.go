package validate

import (
	"testing"

	"github.com/ppiankov/credence/internal/model"
)

func testClassifier() *DomainClassifier {
	return NewDomainClassifier(model.NewDomainSets(
		[]string{"gov.az", "president.az", "who.int", "europa.eu"},
		[]string{"apa.az", "trend.az", "Report.az"},
	))
}

func TestDomainClassifier_Classify(t *testing.T) {
	classifier := testClassifier()

	tests := []struct {
		url      string
		expected Class
		desc     string
	}{
		{"https://president.az/az/articles/view/1", ClassOfficial, "official exact match"},
		{"https://en.president.az/articles", ClassOfficial, "official subdomain"},
		{"https://mincom.gov.az/az/xeberler", ClassOfficial, "subdomain of gov.az"},
		{"https://WWW.Who.Int/news", ClassOfficial, "case and www are ignored"},
		{"https://apa.az/xeber/1", ClassNews, "news exact match"},
		{"https://en.trend.az/business", ClassNews, "news subdomain"},
		{"report.az", ClassNews, "bare host, list entries are lower-cased"},
		{"https://www.state.gov/releases", ClassOfficial, ".gov TLD"},
		{"https://www.gov.uk/guidance", ClassOfficial, "gov.uk second-level zone"},
		{"https://nato.int", ClassOfficial, ".int TLD"},
		{"https://example.com/apa.az", ClassUnknown, "path does not count"},
		{"https://fakeapa.az", ClassUnknown, "suffix without dot boundary"},
		{"https://apa.az:8443/x", ClassNews, "port is ignored"},
		{"", ClassUnknown, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := classifier.Classify(tt.url); got != tt.expected {
				t.Errorf("Expected %v for %s, got %v", tt.expected, tt.url, got)
			}
		})
	}
}

func TestDomainClassifier_InGroup(t *testing.T) {
	classifier := testClassifier()

	if !classifier.InGroup("https://gov.az/x", model.GroupOfficial) {
		t.Error("gov.az should be in the official group")
	}
	if classifier.InGroup("https://apa.az/x", model.GroupOfficial) {
		t.Error("apa.az should not be in the official group")
	}
	if !classifier.InGroup("https://apa.az/x", model.GroupNews) {
		t.Error("apa.az should be in the news group")
	}
	if !classifier.InGroup("https://blog.example.com/x", model.GroupSource) {
		t.Error("per-source results are not domain scoped")
	}
}

func TestHost(t *testing.T) {
	tests := map[string]string{
		"https://www.APA.az/x?y=1": "apa.az",
		"apa.az":                   "apa.az",
		"http://[::1]:8080/":       "::1",
		"  https://trend.az  ":     "trend.az",
		"":                         "",
	}
	for in, want := range tests {
		if got := Host(in); got != want {
			t.Errorf("Host(%q) = %q, want %q", in, got, want)
		}
	}
}
