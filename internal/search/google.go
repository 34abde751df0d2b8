package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/credence/internal/fetch"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
)

// The Custom Search JSON API returns at most ten results per call.
const googleMaxNum = 10

// GoogleConfig configures the Custom Search JSON API client
type GoogleConfig struct {
	APIKey   string
	EngineID string // Programmable Search Engine ID (cx)
	BaseURL  string // Endpoint override for tests and proxies
	Timeout  time.Duration

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// GoogleProvider searches with the Google Custom Search JSON API
type GoogleProvider struct {
	service  *customsearch.Service
	engineID string
}

// NewGoogleProvider creates a provider. The API key travels as a query
// parameter, so no Google credentials are looked up.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google search API key is required")
	}
	if cfg.EngineID == "" {
		return nil, fmt.Errorf("google search engine ID is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &transport.APIKey{
			Key: cfg.APIKey,
			Transport: &http.Transport{
				Proxy: fetch.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}
	return &GoogleProvider{service: service, engineID: cfg.EngineID}, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string { return "google" }

// Search runs one Custom Search query
func (p *GoogleProvider) Search(ctx context.Context, q Query) ([]Result, error) {
	call := p.service.Cse.List().
		Q(BuildQuery(q.Terms, q.Domains)).
		Cx(p.engineID).
		Num(int64(clampNum(q.MaxResults)))
	if days := recencyDays(q.Recency); days > 0 {
		call = call.DateRestrict(fmt.Sprintf("d%d", days))
	}
	if q.Country != "" {
		call = call.Gl(q.Country)
	}
	if q.Language != "" {
		call = call.Hl(q.Language)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:       item.Title,
			Link:        item.Link,
			Snippet:     item.Snippet,
			DisplayLink: item.DisplayLink,
		})
	}
	return results, nil
}

// BuildQuery appends a site: OR clause for domains to terms.
func BuildQuery(terms string, domains []string) string {
	terms = strings.TrimSpace(terms)
	if len(domains) == 0 {
		return terms
	}
	sites := make([]string, 0, len(domains))
	for _, d := range domains {
		sites = append(sites, "site:"+d)
	}
	clause := strings.Join(sites, " OR ")
	if len(sites) > 1 {
		clause = "(" + clause + ")"
	}
	if terms == "" {
		return clause
	}
	return terms + " " + clause
}

func clampNum(n int) int {
	if n <= 0 {
		return 5
	}
	if n > googleMaxNum {
		return googleMaxNum
	}
	return n
}

// recencyDays rounds up so a 36h window still covers two days.
func recencyDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	day := 24 * time.Hour
	return int((d + day - 1) / day)
}

func classifyGoogle(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   "google",
			StatusCode: apiErr.Code,
			Retryable:  retryableStatus(apiErr.Code),
			Err:        err,
		}
	}
	return &Error{Provider: "google", Retryable: IsRetryable(err), Err: err}
}
