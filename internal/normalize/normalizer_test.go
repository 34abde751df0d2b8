package normalize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/fetch"
	"github.com/ppiankov/credence/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	text  string
	err   error
	calls int
}

func (s *stubFetcher) FetchText(context.Context, string) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubDecoder struct {
	text  string
	err   error
	calls int
}

func (s *stubDecoder) Decode(context.Context, []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

var pngImage = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3, 4}

func newNormalizer(f PageFetcher, d *stubDecoder) *Normalizer {
	var dec interface {
		Decode(context.Context, []byte) (string, error)
	}
	if d != nil {
		dec = d
	}
	return New(Options{MaxChars: 10000, MaxURLLength: 2048, MaxImageBytes: 1 << 20},
		f, dec, cache.NewMemoryCache(time.Hour, time.Hour), nil)
}

func TestNormalize_TextFingerprintIsStable(t *testing.T) {
	n := newNormalizer(nil, nil)
	ctx := context.Background()

	a, err := n.Normalize(ctx, "u1", model.RawInput{Kind: model.KindText, Text: "Azərbaycan  yeni\npeyk buraxacaq."})
	require.NoError(t, err)
	b, err := n.Normalize(ctx, "u2", model.RawInput{Kind: model.KindText, Text: "  Azərbaycan yeni peyk\tburaxacaq.  "})
	require.NoError(t, err)

	assert.Equal(t, "Azərbaycan yeni peyk buraxacaq.", a.Text)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, a.Fingerprint, 64)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "u1", a.ActorID)
}

func TestNormalize_UnicodeFormsShareFingerprint(t *testing.T) {
	n := newNormalizer(nil, nil)
	ctx := context.Background()

	composed, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindText, Text: "Bakı xəbərləri"})
	require.NoError(t, err)
	zeroWidth, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindText, Text: "Bakı\u200b xəbərləri\ufeff"})
	require.NoError(t, err)
	assert.Equal(t, composed.Fingerprint, zeroWidth.Fingerprint, "zero-width characters must not change the fingerprint")

	cafe1, _ := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindText, Text: "caf\u00e9"})
	cafe2, _ := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindText, Text: "cafe\u0301"})
	assert.Equal(t, cafe1.Fingerprint, cafe2.Fingerprint, "NFC folds combining marks")
}

func TestNormalize_RejectsOversizedText(t *testing.T) {
	n := newNormalizer(nil, nil)

	_, err := n.Normalize(context.Background(), "u", model.RawInput{Kind: model.KindText, Text: strings.Repeat("a", 10001)})
	assert.ErrorIs(t, err, ErrContentTooLarge)

	req, err := n.Normalize(context.Background(), "u", model.RawInput{Kind: model.KindText, Text: strings.Repeat("ə", 10000)})
	require.NoError(t, err, "the bound counts characters, not bytes")
	assert.False(t, req.Truncated)
}

func TestNormalize_RejectsEmptyAndUnknownInput(t *testing.T) {
	n := newNormalizer(nil, nil)
	ctx := context.Background()

	for name, in := range map[string]model.RawInput{
		"blank":        {Kind: model.KindText, Text: " \n\t "},
		"only markup":  {Kind: model.KindText, Text: "<script>alert(1)</script>"},
		"unknown kind": {Kind: "video", Text: "x"},
		"url disabled": {Kind: model.KindURL, URL: "https://apa.az/x"},
		"no decoder":   {Kind: model.KindImage, Image: pngImage},
	} {
		_, err := n.Normalize(ctx, "u", in)
		assert.ErrorIs(t, err, ErrUnsupportedInput, name)
	}
}

func TestNormalize_URL(t *testing.T) {
	f := &stubFetcher{text: "Nazirlik bildirib ki, peyk gələn ay buraxılacaq."}
	n := newNormalizer(f, nil)
	ctx := context.Background()

	req, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: "https://apa.az/news/1#top"})
	require.NoError(t, err)
	assert.Equal(t, "https://apa.az/news/1", req.Origin)
	assert.Equal(t, f.text, req.Text)

	again, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: "https://apa.az/news/1"})
	require.NoError(t, err)
	assert.Equal(t, req.Fingerprint, again.Fingerprint)
	assert.Equal(t, 1, f.calls, "repeat submissions are served from the derived-text cache")
}

func TestNormalize_URLFailures(t *testing.T) {
	ctx := context.Background()

	down := newNormalizer(&stubFetcher{err: errors.New("connection refused")}, nil)
	_, err := down.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: "https://apa.az/x"})
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	empty := newNormalizer(&stubFetcher{text: "   "}, nil)
	_, err = empty.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: "https://apa.az/x"})
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	f := &stubFetcher{text: "x"}
	n := newNormalizer(f, nil)
	for _, bad := range []string{"ftp://apa.az/x", "https://bit.ly/abc", "https://apa.az/../etc", "not a url", "https://apa.az/%00"} {
		_, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: bad})
		assert.ErrorIs(t, err, ErrUnsupportedInput, bad)
	}
	assert.Zero(t, f.calls, "invalid URLs are rejected before any fetch")
}

func TestNormalize_URLToInternalAddress(t *testing.T) {
	ctx := context.Background()

	f := &stubFetcher{text: "INTERNAL ADMIN SECRET"}
	n := newNormalizer(f, nil)
	for _, internal := range []string{
		"http://127.0.0.1:8080/admin",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.7/",
		"http://[::1]/",
		"http://localhost:9090/metrics",
	} {
		_, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: internal})
		assert.ErrorIs(t, err, ErrUnsupportedInput, internal)
	}
	assert.Zero(t, f.calls, "address literals are rejected before any fetch")

	rebound := newNormalizer(&stubFetcher{err: fmt.Errorf("fetch: %w", fetch.ErrPrivateAddress)}, nil)
	_, err := rebound.Normalize(ctx, "u", model.RawInput{Kind: model.KindURL, URL: "https://internal.example.com/"})
	assert.ErrorIs(t, err, ErrUnsupportedInput)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}

func TestNormalize_URLWithGuardedFetcher(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body>INTERNAL ADMIN SECRET token=abc123</body></html>"))
	}))
	defer server.Close()

	n := newNormalizer(fetch.NewFetcher(fetch.Options{}), nil)
	req, err := n.Normalize(context.Background(), "u", model.RawInput{Kind: model.KindURL, URL: server.URL + "/admin"})
	assert.ErrorIs(t, err, ErrUnsupportedInput)
	assert.Nil(t, req)
	assert.Zero(t, hits.Load())
}

func TestNormalize_URLTruncatesLongPages(t *testing.T) {
	f := &stubFetcher{text: strings.Repeat("word ", 3000)}
	n := New(Options{MaxChars: 1000}, f, nil, nil, nil)

	req, err := n.Normalize(context.Background(), "u", model.RawInput{Kind: model.KindURL, URL: "https://apa.az/long"})
	require.NoError(t, err)
	assert.True(t, req.Truncated)
	assert.LessOrEqual(t, len([]rune(req.Text)), 1000)
	assert.NotEmpty(t, req.Notes)
}

func TestNormalize_Image(t *testing.T) {
	d := &stubDecoder{text: "Prezident fərman imzalayıb"}
	n := newNormalizer(nil, d)
	ctx := context.Background()

	req, err := n.Normalize(ctx, "u", model.RawInput{Kind: model.KindImage, Image: pngImage})
	require.NoError(t, err)
	assert.Equal(t, "Prezident fərman imzalayıb", req.Text)

	_, err = n.Normalize(ctx, "u", model.RawInput{Kind: model.KindImage, Image: pngImage})
	require.NoError(t, err)
	assert.Equal(t, 1, d.calls)

	_, err = n.Normalize(ctx, "u", model.RawInput{Kind: model.KindImage, Image: []byte("not an image")})
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestNormalize_ImageDecodeFailure(t *testing.T) {
	n := newNormalizer(nil, &stubDecoder{err: errors.New("tesseract missing")})
	_, err := n.Normalize(context.Background(), "u", model.RawInput{Kind: model.KindImage, Image: pngImage})
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}
