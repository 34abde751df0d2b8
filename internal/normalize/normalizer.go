// Package normalize turns raw submissions into bounded, canonical text with
// a stable fingerprint.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/fetch"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/ocr"
)

var (
	// ErrUnsupportedInput covers empty, malformed or undecodable submissions.
	ErrUnsupportedInput = errors.New("unsupported input")
	// ErrContentTooLarge is returned when submitted text exceeds the bound.
	ErrContentTooLarge = errors.New("content too large")
	// ErrSourceUnavailable is returned when a submitted URL cannot be read.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// PageFetcher reads the text of a web page.
type PageFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Options bounds accepted input
type Options struct {
	MaxChars      int           // Bound on normalized text, in runes
	MaxURLLength  int           // Longest accepted URL
	MaxImageBytes int           // Largest accepted image
	FetchTimeout  time.Duration // Per URL fetch
	DerivedTTL    time.Duration // Lifetime of cached page and OCR text
}

// Normalizer validates submissions and produces AnalysisRequests. Text
// submissions never leave the process; URL and image submissions consult
// the derived-text cache before calling the fetcher or decoder.
type Normalizer struct {
	opts    Options
	fetcher PageFetcher
	decoder ocr.Decoder
	derived cache.Cache
	now     func() time.Time
	log     logger.Logger
}

// New creates a Normalizer. fetcher, decoder and derived may be nil, in
// which case URL or image submissions are rejected or left uncached.
func New(opts Options, fetcher PageFetcher, decoder ocr.Decoder, derived cache.Cache, log logger.Logger) *Normalizer {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 10000
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.DerivedTTL <= 0 {
		opts.DerivedTTL = time.Hour
	}
	return &Normalizer{
		opts:    opts,
		fetcher: fetcher,
		decoder: decoder,
		derived: derived,
		now:     time.Now,
		log:     logger.OrNop(log),
	}
}

// Normalize validates in and returns the request to analyze.
func (n *Normalizer) Normalize(ctx context.Context, actorID string, in model.RawInput) (*model.AnalysisRequest, error) {
	req := &model.AnalysisRequest{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		ActorID:     actorID,
		SubmittedAt: n.now(),
	}

	var err error
	switch in.Kind {
	case model.KindText:
		req.Text, err = n.fromText(in.Text)
	case model.KindURL:
		req.Text, req.Origin, err = n.fromURL(ctx, in.URL)
	case model.KindImage:
		req.Text, err = n.fromImage(ctx, in.Image)
	default:
		err = fmt.Errorf("%w: input kind %q", ErrUnsupportedInput, in.Kind)
	}
	if err != nil {
		return nil, err
	}

	if in.Kind != model.KindText {
		var cut bool
		req.Text, cut = Truncate(req.Text, n.opts.MaxChars)
		if cut {
			req.Truncated = true
			req.Notes = append(req.Notes, fmt.Sprintf("extracted text was cut to the first %d characters", n.opts.MaxChars))
		}
	}

	req.Fingerprint = Fingerprint(req.Text)
	return req, nil
}

// fromText rejects oversized text instead of cutting it, so the user knows
// the check covers exactly what they sent.
func (n *Normalizer) fromText(raw string) (string, error) {
	text := Sanitize(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrUnsupportedInput)
	}
	if size := len([]rune(text)); size > n.opts.MaxChars {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrContentTooLarge, size, n.opts.MaxChars)
	}
	return text, nil
}

func (n *Normalizer) fromURL(ctx context.Context, rawURL string) (text, origin string, err error) {
	u, err := ValidateURL(rawURL, n.opts.MaxURLLength)
	if err != nil {
		return "", "", err
	}
	origin = u.String()
	if n.fetcher == nil {
		return "", "", fmt.Errorf("%w: url submissions are not enabled", ErrUnsupportedInput)
	}

	key := cache.TextKey([]byte("url:" + origin))
	if text, ok := n.cachedText(ctx, key); ok {
		return text, origin, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, n.opts.FetchTimeout)
	defer cancel()
	raw, err := n.fetcher.FetchText(fetchCtx, origin)
	if err != nil {
		if errors.Is(err, fetch.ErrPrivateAddress) {
			n.log.Warn("rejected url to a non-public address", logger.String("url", origin), logger.Error(err))
			return "", "", fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
		}
		n.log.Warn("page fetch failed", logger.String("url", origin), logger.Error(err))
		return "", "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	text = Sanitize(raw)
	if text == "" {
		return "", "", fmt.Errorf("%w: page has no readable text", ErrSourceUnavailable)
	}
	n.storeText(ctx, key, text)
	return text, origin, nil
}

func (n *Normalizer) fromImage(ctx context.Context, image []byte) (string, error) {
	if _, err := ocr.ValidateImage(image, n.opts.MaxImageBytes); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	if n.decoder == nil {
		return "", fmt.Errorf("%w: image submissions are not enabled", ErrUnsupportedInput)
	}

	key := cache.TextKey(append([]byte("image:"), image...))
	if text, ok := n.cachedText(ctx, key); ok {
		return text, nil
	}

	raw, err := n.decoder.Decode(ctx, image)
	if err != nil {
		n.log.Warn("image decode failed", logger.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}

	text := Sanitize(raw)
	if text == "" {
		return "", fmt.Errorf("%w: no text found in image", ErrUnsupportedInput)
	}
	n.storeText(ctx, key, text)
	return text, nil
}

func (n *Normalizer) cachedText(ctx context.Context, key string) (string, bool) {
	if n.derived == nil {
		return "", false
	}
	data, ok := n.derived.Get(ctx, key)
	if !ok || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func (n *Normalizer) storeText(ctx context.Context, key, text string) {
	if n.derived == nil {
		return
	}
	if err := n.derived.Set(ctx, key, []byte(text), n.opts.DerivedTTL); err != nil {
		n.log.Warn("derived text cache write failed", logger.Error(err))
	}
}
