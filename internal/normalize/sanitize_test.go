package normalize

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  a \n\n b\t\tc  ", "a b c"},
		{"drops control characters", "a\x00b\x07c", "abc"},
		{"strips script blocks", "before <script type=\"x\">steal()</script> after", "before after"},
		{"strips event handlers", `<img src=x onerror=alert(1)>`, "<img src=x alert(1)>"},
		{"keeps ordinary words starting with on", "The online conference = success", "The online conference = success"},
		{"keeps assignments in prose", "Turnout online = 42% and onsite=58%", "Turnout online = 42% and onsite=58%"},
		{"strips handlers with spacing", `<div onclick = "go()">hi</div>`, `<div "go()">hi</div>`},
		{"strips handlers in unclosed tags", `<img src=x onload=go()`, "<img src=x go()"},
		{"strips javascript scheme", "click javascript:void(0)", "click void(0)"},
		{"keeps azerbaijani letters", "Şəki, Gəncə, İsmayıllı", "Şəki, Gəncə, İsmayıllı"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFingerprintIdempotent(t *testing.T) {
	text := Sanitize("Azərbaycan gələn ay yeni peyk buraxacaq")
	if Fingerprint(text) != Fingerprint(Sanitize(text)) {
		t.Error("sanitizing normalized text must not change its fingerprint")
	}
	if Fingerprint("a") == Fingerprint("b") {
		t.Error("different text must fingerprint differently")
	}
}

func TestTruncate(t *testing.T) {
	s, cut := Truncate("short", 10)
	if cut || s != "short" {
		t.Errorf("Truncate short = %q, %v", s, cut)
	}

	long := strings.Repeat("abcd ", 30)
	s, cut = Truncate(long, 52)
	if !cut {
		t.Fatal("expected truncation")
	}
	if len([]rune(s)) > 52 {
		t.Errorf("truncated text has %d runes", len([]rune(s)))
	}
	if strings.HasSuffix(s, " ") {
		t.Errorf("truncated text should be trimmed: %q", s)
	}
}
