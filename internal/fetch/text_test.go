package fetch

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestExtractText_Readability(t *testing.T) {
	paragraph := "The Ministry of Digital Development announced that the satellite will be launched from French Guiana. "
	doc := `<html><head><title>Satellite launch</title></head><body>
<nav>Home | News | Contact</nav>
<article><h1>Satellite launch</h1><p>` + strings.Repeat(paragraph, 5) + `</p></article>
<footer>Copyright</footer></body></html>`

	title, text := ExtractText(doc, "https://news.example/az/satellite")
	if title == "" {
		t.Error("Expected a title")
	}
	if !strings.Contains(text, "French Guiana") {
		t.Errorf("Expected article body, got %q", text)
	}
}

func TestExtractText_FallbackForShortPages(t *testing.T) {
	doc := `<html><head><title>Short</title><style>p{}</style></head><body><p>Brief note.</p><script>alert(1)</script></body></html>`

	title, text := ExtractText(doc, "https://news.example/short")
	if title != "Short" {
		t.Errorf("title = %q, want Short", title)
	}
	if !strings.Contains(text, "Brief note.") {
		t.Errorf("Expected visible text, got %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "p{}") {
		t.Errorf("Non-visible content leaked: %q", text)
	}
}

func TestExtractText_Empty(t *testing.T) {
	title, text := ExtractText("   ", "https://example.com")
	if title != "" || text != "" {
		t.Errorf("Expected empty result, got %q %q", title, text)
	}
}

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "http://secure.local:3128", "internal.example")

	for _, tt := range []struct {
		target string
		want   string
	}{
		{"http://news.example/a", "http://proxy.local:3128"},
		{"https://news.example/a", "http://secure.local:3128"},
		{"https://internal.example/a", ""},
	} {
		u, _ := url.Parse(tt.target)
		got, err := proxy(&http.Request{URL: u})
		if err != nil {
			t.Fatalf("%s: %v", tt.target, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("proxy(%s) = %q, want %q", tt.target, gotStr, tt.want)
		}
	}
}

func TestProductToken(t *testing.T) {
	if got := productToken("credence/0.1 (+https://x)"); got != "credence" {
		t.Errorf("productToken = %q", got)
	}
	if got := productToken(""); got != "" {
		t.Errorf("productToken(\"\") = %q", got)
	}
}
