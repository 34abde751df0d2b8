package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/pipeline"
)

const actorHeader = "X-Actor-ID"

var (
	supportedLocales = []language.Tag{language.English, language.Azerbaijani}
	localeNames      = []string{"en", "az"}
)

type checkRequest struct {
	Text    string `json:"text"`
	URL     string `json:"url"`
	ActorID string `json:"actor_id"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after,omitempty"` // Seconds
}

type healthResponse struct {
	Status  string       `json:"status"`
	Service string       `json:"service"`
	Version string       `json:"version,omitempty"`
	Uptime  string       `json:"uptime"`
	Cache   *cache.Stats `json:"cache,omitempty"`
}

type handler struct {
	cfg     Config
	checker Checker
	matcher language.Matcher
	started time.Time
	log     logger.Logger
}

func newHandler(cfg Config, checker Checker, log logger.Logger) *handler {
	return &handler{
		cfg:     cfg,
		checker: checker,
		matcher: language.NewMatcher(supportedLocales),
		started: time.Now(),
		log:     log,
	}
}

// check accepts JSON {"text"} or {"url"}, or a multipart form with an
// "image" file. ?format=markdown returns the rendered report.
func (h *handler) check(c *gin.Context) {
	locale := h.locale(c)

	in, bodyActor, err := h.readInput(c)
	if err != nil {
		h.log.Debug("rejected check body", logger.Error(err))
		h.fail(c, locale, &pipeline.Failure{Kind: pipeline.InputError, Reason: pipeline.ReasonUnsupportedInput, Err: err})
		return
	}

	report, err := h.checker.Handle(c.Request.Context(), h.actor(c, bodyActor), in)
	if err != nil {
		f, ok := pipeline.AsFailure(err)
		if !ok {
			f = &pipeline.Failure{Kind: pipeline.UpstreamUnavailable, Reason: pipeline.ReasonAnalysisUnavailable, Err: err}
		}
		h.fail(c, locale, f)
		return
	}

	if strings.EqualFold(c.Query("format"), "markdown") {
		var buf bytes.Buffer
		if err := pipeline.NewRenderer(locale).RenderMarkdown(&buf, report); err != nil {
			_ = c.Error(err)
			h.fail(c, locale, &pipeline.Failure{Kind: pipeline.UpstreamUnavailable, Reason: pipeline.ReasonAnalysisUnavailable, Err: err})
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) readInput(c *gin.Context) (model.RawInput, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.readMultipart(c)
	}

	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return model.RawInput{}, "", fmt.Errorf("decode body: %w", err)
	}
	in, err := rawInput(req.Text, req.URL)
	return in, req.ActorID, err
}

func (h *handler) readMultipart(c *gin.Context) (model.RawInput, string, error) {
	actor := c.PostForm("actor_id")
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		in, err := rawInput(c.PostForm("text"), c.PostForm("url"))
		return in, actor, err
	}
	if err != nil {
		return model.RawInput{}, "", fmt.Errorf("read form: %w", err)
	}

	f, err := fh.Open()
	if err != nil {
		return model.RawInput{}, "", fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	// One byte over the limit is enough for the normalizer to reject it.
	image, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxImageBytes+1))
	if err != nil {
		return model.RawInput{}, "", fmt.Errorf("read upload: %w", err)
	}
	return model.RawInput{Kind: model.KindImage, Image: image}, actor, nil
}

func rawInput(text, url string) (model.RawInput, error) {
	switch {
	case text != "" && url != "":
		return model.RawInput{}, errors.New("send either text or url, not both")
	case url != "":
		return model.RawInput{Kind: model.KindURL, URL: url}, nil
	default:
		return model.RawInput{Kind: model.KindText, Text: text}, nil
	}
}

// actor is the client address unless the deployment trusts caller-supplied
// identities, in which case the X-Actor-ID header wins over the body.
func (h *handler) actor(c *gin.Context, bodyActor string) string {
	if h.cfg.TrustActorHeader {
		if id := strings.TrimSpace(c.GetHeader(actorHeader)); id != "" {
			return id
		}
		if id := strings.TrimSpace(bodyActor); id != "" {
			return id
		}
	}
	return "ip:" + c.ClientIP()
}

// locale resolves ?lang= and Accept-Language against the supported locales,
// falling back to the configured default.
func (h *handler) locale(c *gin.Context) string {
	lang := c.Query("lang")
	accept := c.GetHeader("Accept-Language")
	if lang == "" && accept == "" {
		return h.cfg.Locale
	}
	_, idx := language.MatchStrings(h.matcher, lang, accept)
	return localeNames[idx]
}

func (h *handler) fail(c *gin.Context, locale string, f *pipeline.Failure) {
	body := errorResponse{Error: f.UserMessage(locale), Reason: f.Reason}

	status := http.StatusServiceUnavailable
	switch f.Kind {
	case pipeline.InputError:
		status = http.StatusBadRequest
	case pipeline.RateLimited:
		status = http.StatusTooManyRequests
		body.RetryAfter = max(f.RetryAfterSeconds(), 1)
		c.Header("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	c.JSON(status, body)
}

func (h *handler) health(c *gin.Context) {
	resp := healthResponse{
		Status:  "healthy",
		Service: "credence",
		Version: h.cfg.Version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	}
	if r, ok := h.checker.(CacheReporter); ok {
		if stats, enabled := r.CacheStats(); enabled {
			resp.Cache = &stats
		}
	}
	c.JSON(http.StatusOK, resp)
}
