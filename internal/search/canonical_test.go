package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	same := []string{
		"https://apa.az/news/1",
		"http://www.APA.az/news/1/",
		"https://apa.az/news/1#comments",
		"https://apa.az/news/1?utm_source=fb&utm_medium=social",
		"https://apa.az:443/news/1?fbclid=abc",
	}
	for _, u := range same {
		assert.Equal(t, "apa.az/news/1", CanonicalURL(u), u)
	}

	assert.Equal(t, "apa.az/news?id=2", CanonicalURL("https://apa.az/news?id=2&utm_campaign=x"))
	assert.NotEqual(t, CanonicalURL("https://apa.az/news?id=2"), CanonicalURL("https://apa.az/news?id=3"))
	assert.Equal(t, "not a url", CanonicalURL(" not a url "))
}

func TestParsePublished(t *testing.T) {
	now := time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)

	got := ParsePublished("3 days ago ... The ministry said", now)
	require.NotNil(t, got)
	assert.Equal(t, now.Add(-72*time.Hour), *got)

	got = ParsePublished("5 hours ago — Trend", now)
	require.NotNil(t, got)
	assert.Equal(t, now.Add(-5*time.Hour), *got)

	got = ParsePublished("Oct 3, 2026 ... Azercosmos", now)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC), *got)

	assert.Nil(t, ParsePublished("The launch took place", now))
	assert.Nil(t, ParsePublished("", now))
}
