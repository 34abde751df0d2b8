package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/metrics"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/pipeline"
)

type fakeChecker struct {
	mu     sync.Mutex
	report *model.CredibilityReport
	err    error
	actors []string
	inputs []model.RawInput
	stats  *cache.Stats
}

func (f *fakeChecker) Handle(_ context.Context, actorID string, in model.RawInput) (*model.CredibilityReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors = append(f.actors, actorID)
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeChecker) CacheStats() (cache.Stats, bool) {
	if f.stats == nil {
		return cache.Stats{}, false
	}
	return *f.stats, true
}

func sampleReport() *model.CredibilityReport {
	return &model.CredibilityReport{
		Kind:         model.KindText,
		Truthfulness: model.Section{Status: model.SectionDetermined, Text: "Claims are specific."},
		Assessment:   model.Score{Index: 72, Level: "medium", Confidence: "medium"},
	}
}

func newTestServer(t *testing.T, checker Checker, opts ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{Locale: "en", Version: "test", MaxImageBytes: 1024, RequestTimeout: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := New(cfg, checker, metrics.New(nil), nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func trustActors(cfg *Config) { cfg.TrustActorHeader = true }

func postJSON(t *testing.T, s *Server, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/api/v1/check", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestCheck_Text(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker, trustActors)

	w := postJSON(t, s, `{"text":"Azerbaijan launched a satellite"}`, map[string]string{actorHeader: "user-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var report model.CredibilityReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.Assessment.Index != 72 {
		t.Errorf("Expected index 72, got %d", report.Assessment.Index)
	}
	if checker.actors[0] != "user-1" {
		t.Errorf("Expected actor from header, got %q", checker.actors[0])
	}
	if in := checker.inputs[0]; in.Kind != model.KindText || in.Text != "Azerbaijan launched a satellite" {
		t.Errorf("Unexpected input: %+v", in)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
}

func TestCheck_URLWithBodyActor(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker, trustActors)

	w := postJSON(t, s, `{"url":"https://apa.az/news/1","actor_id":"tg-42"}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if checker.actors[0] != "tg-42" {
		t.Errorf("Expected actor from body, got %q", checker.actors[0])
	}
	if in := checker.inputs[0]; in.Kind != model.KindURL || in.URL != "https://apa.az/news/1" {
		t.Errorf("Unexpected input: %+v", in)
	}
}

func TestCheck_ActorFallsBackToClientAddress(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker)

	postJSON(t, s, `{"text":"news"}`, nil)

	if !strings.HasPrefix(checker.actors[0], "ip:") {
		t.Errorf("Expected address-derived actor, got %q", checker.actors[0])
	}
}

func postFrom(t *testing.T, s *Server, remoteAddr, body string, header map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/check", strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCheck_CallerIdentitiesIgnoredByDefault(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker)

	for i := range 3 {
		postFrom(t, s, "198.51.100.9:4000",
			fmt.Sprintf(`{"text":"news","actor_id":"body-%d"}`, i),
			map[string]string{
				actorHeader:       fmt.Sprintf("anon-%d", i),
				"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i),
				"X-Real-IP":       fmt.Sprintf("10.0.1.%d", i),
			})
	}

	for _, actor := range checker.actors {
		if actor != "ip:198.51.100.9" {
			t.Errorf("Expected every request keyed to the peer address, got %v", checker.actors)
			break
		}
	}
}

func TestCheck_TrustedProxyForwardedFor(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker, func(cfg *Config) { cfg.TrustedProxies = []string{"10.0.0.1"} })

	postFrom(t, s, "10.0.0.1:5000", `{"text":"news"}`, map[string]string{"X-Forwarded-For": "203.0.113.7"})
	postFrom(t, s, "198.51.100.9:4000", `{"text":"news"}`, map[string]string{"X-Forwarded-For": "203.0.113.8"})

	if checker.actors[0] != "ip:203.0.113.7" {
		t.Errorf("Expected forwarded client behind a trusted proxy, got %q", checker.actors[0])
	}
	if checker.actors[1] != "ip:198.51.100.9" {
		t.Errorf("Expected peer address from an untrusted proxy, got %q", checker.actors[1])
	}
}

func TestNew_InvalidTrustedProxy(t *testing.T) {
	_, err := New(Config{TrustedProxies: []string{"not-an-ip"}}, &fakeChecker{}, nil, nil)
	if err == nil {
		t.Error("Expected error for an invalid trusted proxy")
	}
}

func TestCheck_Image(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker, trustActors)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "screenshot.png")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake png bytes")); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := mw.WriteField("actor_id", "form-actor"); err != nil {
		t.Fatalf("Failed to write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/check", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	in := checker.inputs[0]
	if in.Kind != model.KindImage || string(in.Image) != "fake png bytes" {
		t.Errorf("Unexpected input: kind=%s image=%q", in.Kind, in.Image)
	}
	if checker.actors[0] != "form-actor" {
		t.Errorf("Expected actor from form, got %q", checker.actors[0])
	}
}

func TestCheck_OversizedImageIsCappedForNormalizer(t *testing.T) {
	checker := &fakeChecker{report: sampleReport()}
	s := newTestServer(t, checker)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "big.png")
	_, _ = part.Write(bytes.Repeat([]byte{0xff}, 4096))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/check", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	if got := len(checker.inputs[0].Image); got != 1025 {
		t.Errorf("Expected upload capped at limit+1 bytes, got %d", got)
	}
}

func TestCheck_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"text":`},
		{"text and url", `{"text":"a","url":"https://apa.az"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &fakeChecker{report: sampleReport()}
			w := postJSON(t, newTestServer(t, checker), tt.body, nil)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			if resp := decodeError(t, w); resp.Reason != pipeline.ReasonUnsupportedInput {
				t.Errorf("Expected reason %s, got %s", pipeline.ReasonUnsupportedInput, resp.Reason)
			}
			if len(checker.inputs) != 0 {
				t.Error("Expected no check for a rejected body")
			}
		})
	}
}

func TestCheck_FailureStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		reason  string
		message string
	}{
		{
			name:    "input error",
			err:     &pipeline.Failure{Kind: pipeline.InputError, Reason: pipeline.ReasonContentTooLarge},
			status:  http.StatusBadRequest,
			reason:  pipeline.ReasonContentTooLarge,
			message: "too long",
		},
		{
			name:    "upstream",
			err:     &pipeline.Failure{Kind: pipeline.UpstreamUnavailable, Reason: pipeline.ReasonSourceUnavailable},
			status:  http.StatusServiceUnavailable,
			reason:  pipeline.ReasonSourceUnavailable,
			message: "could not be retrieved",
		},
		{
			name:    "timeout",
			err:     &pipeline.Failure{Kind: pipeline.UpstreamUnavailable, Reason: pipeline.ReasonTimeout},
			status:  http.StatusServiceUnavailable,
			reason:  pipeline.ReasonTimeout,
			message: "too long",
		},
		{
			name:    "plain error",
			err:     context.DeadlineExceeded,
			status:  http.StatusServiceUnavailable,
			reason:  pipeline.ReasonAnalysisUnavailable,
			message: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, newTestServer(t, &fakeChecker{err: tt.err}), `{"text":"news"}`, nil)

			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			resp := decodeError(t, w)
			if resp.Reason != tt.reason {
				t.Errorf("Expected reason %s, got %s", tt.reason, resp.Reason)
			}
			if !strings.Contains(resp.Error, tt.message) {
				t.Errorf("Expected message containing %q, got %q", tt.message, resp.Error)
			}
		})
	}
}

func TestCheck_RateLimited(t *testing.T) {
	checker := &fakeChecker{err: &pipeline.Failure{
		Kind:       pipeline.RateLimited,
		Reason:     pipeline.ReasonRateLimited,
		RetryAfter: 2500 * time.Millisecond,
	}}

	w := postJSON(t, newTestServer(t, checker), `{"text":"news"}`, map[string]string{"Accept-Language": "az-AZ,az;q=0.9"})

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "3" {
		t.Errorf("Expected Retry-After 3, got %q", got)
	}
	resp := decodeError(t, w)
	if resp.RetryAfter != 3 {
		t.Errorf("Expected retry_after 3, got %d", resp.RetryAfter)
	}
	if !strings.Contains(resp.Error, "3 saniyə") {
		t.Errorf("Expected Azerbaijani message, got %q", resp.Error)
	}
}

func TestCheck_LocaleFromQuery(t *testing.T) {
	checker := &fakeChecker{err: &pipeline.Failure{Kind: pipeline.InputError, Reason: pipeline.ReasonMissingActor}}
	s := newTestServer(t, checker)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/check?lang=az", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if resp := decodeError(t, w); !strings.Contains(resp.Error, "müəyyən") {
		t.Errorf("Expected Azerbaijani message, got %q", resp.Error)
	}
}

func TestCheck_Markdown(t *testing.T) {
	s := newTestServer(t, &fakeChecker{report: sampleReport()})

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/check?format=markdown", strings.NewReader(`{"text":"news"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Expected markdown content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "**72/100**") {
		t.Errorf("Expected rendered index, got:\n%s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	stats := cache.Stats{Hits: 3, Misses: 1}
	s := newTestServer(t, &fakeChecker{stats: &stats})

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Errorf("Unexpected health response: %+v", resp)
	}
	if resp.Cache == nil || resp.Cache.Hits != 3 {
		t.Errorf("Expected cache stats, got %+v", resp.Cache)
	}
}

func TestHealth_NoCache(t *testing.T) {
	s := newTestServer(t, &fakeChecker{})

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), `"cache"`) {
		t.Errorf("Expected no cache section, got %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeChecker{})

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "credence_requests_in_flight") {
		t.Error("Expected credence metrics in exposition")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, &fakeChecker{})

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("Expected propagated request ID, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, panickingChecker{})

	w := postJSON(t, s, `{"text":"news"}`, nil)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

type panickingChecker struct{}

func (panickingChecker) Handle(context.Context, string, model.RawInput) (*model.CredibilityReport, error) {
	panic("boom")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, err := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, &fakeChecker{}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
