// Package pipeline runs a submission through admission, normalization,
// caching, source extraction, evidence search and synthesis.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/extract"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/metrics"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/ratelimit"
	"github.com/ppiankov/credence/internal/score"
	"golang.org/x/sync/errgroup"
)

// Normalizer validates a submission and produces the request to analyze
type Normalizer interface {
	Normalize(ctx context.Context, actorID string, in model.RawInput) (*model.AnalysisRequest, error)
}

// SourceExtractor finds the sources a text claims for itself
type SourceExtractor interface {
	Extract(ctx context.Context, text string) ([]model.ClaimedSource, error)
}

// KeywordDeriver picks search terms for a text. It never fails.
type KeywordDeriver interface {
	Derive(ctx context.Context, text string) extract.Keywords
}

// EvidenceGatherer runs the corroborating searches
type EvidenceGatherer interface {
	Gather(ctx context.Context, text string, keywords []string, sources []model.ClaimedSource) model.EvidenceSet
}

// Synthesizer produces the final report
type Synthesizer interface {
	Synthesize(ctx context.Context, req *model.AnalysisRequest, sources []model.ClaimedSource, evidence model.EvidenceSet, assessment model.Score) (*model.CredibilityReport, error)
}

// Components are the collaborators of a Pipeline. Reports is optional; a
// nil cache disables result caching.
type Components struct {
	Admitter    ratelimit.Admitter
	Normalizer  Normalizer
	Reports     *cache.ReportCache
	Extractor   SourceExtractor
	Keywords    KeywordDeriver
	Gatherer    EvidenceGatherer
	Synthesizer Synthesizer
	Metrics     *metrics.Metrics
}

// Options tunes orchestration
type Options struct {
	RequestTimeout    time.Duration // Bound on a whole check
	ExtractionFailure string        // model.ExtractionFail or model.ExtractionDegrade
}

// Pipeline orchestrates the complete check process
type Pipeline struct {
	admitter    ratelimit.Admitter
	normalizer  Normalizer
	reports     *cache.ReportCache
	extractor   SourceExtractor
	keywords    KeywordDeriver
	gatherer    EvidenceGatherer
	synthesizer Synthesizer
	attribution *extract.AttributionScanner
	scorer      *score.Scorer
	metrics     *metrics.Metrics
	opts        Options
	now         func() time.Time
	log         logger.Logger
}

// New creates a pipeline from its components.
func New(c Components, opts Options, log logger.Logger) *Pipeline {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.ExtractionFailure == "" {
		opts.ExtractionFailure = model.ExtractionFail
	}
	return &Pipeline{
		admitter:    c.Admitter,
		normalizer:  c.Normalizer,
		reports:     c.Reports,
		extractor:   c.Extractor,
		keywords:    c.Keywords,
		gatherer:    c.Gatherer,
		synthesizer: c.Synthesizer,
		attribution: extract.NewAttributionScanner(),
		scorer:      score.NewScorer(),
		metrics:     c.Metrics,
		opts:        opts,
		now:         time.Now,
		log:         logger.OrNop(log),
	}
}

// Handle checks one submission for actorID. Every error it returns is a
// *Failure. A report may carry caveats when evidence was partial; that is
// not an error.
func (p *Pipeline) Handle(ctx context.Context, actorID string, in model.RawInput) (*model.CredibilityReport, error) {
	done := p.metrics.TrackInFlight()
	defer done()

	start := p.now()
	log := p.log.With(logger.String("actor", actorID), logger.String("kind", string(in.Kind)))

	report, err := p.handle(ctx, actorID, in, log)
	if err != nil {
		f := classify(StageFailed, err)
		p.metrics.ObserveRequest(string(in.Kind), outcomeOf(f))
		log.Warn("check failed",
			logger.String("failure", string(f.Kind)),
			logger.String("reason", f.Reason),
			logger.String("stage", string(f.Stage)),
			logger.Duration("elapsed", p.now().Sub(start)),
			logger.Error(f.Err))
		return nil, f
	}

	outcome := metrics.OutcomeOK
	switch {
	case report.Cached:
		outcome = metrics.OutcomeCached
	case report.Incomplete():
		outcome = metrics.OutcomeIncomplete
	}
	p.metrics.ObserveRequest(string(in.Kind), outcome)
	return report, nil
}

func (p *Pipeline) handle(ctx context.Context, actorID string, in model.RawInput, log logger.Logger) (*model.CredibilityReport, error) {
	if err := p.admit(ctx, actorID, in.Kind); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	stop := p.stage(StageNormalizing)
	req, err := p.normalizer.Normalize(ctx, actorID, in)
	stop()
	if err != nil {
		return nil, classify(StageNormalizing, err)
	}
	log = log.With(logger.String("request_id", req.ID), logger.String("fingerprint", req.Fingerprint))

	if p.reports == nil {
		return p.analyze(ctx, req, log)
	}

	if cached, ok := p.reports.Get(ctx, req.Fingerprint); ok {
		p.metrics.ObserveCache("hit")
		log.Info("served from cache")
		return markCached(cached), nil
	}
	p.metrics.ObserveCache("miss")

	report, shared, err := p.reports.Do(ctx, req.Fingerprint, func(ctx context.Context) (*model.CredibilityReport, error) {
		return p.analyze(ctx, req, log)
	})
	if err != nil {
		return nil, classify(StageCacheCheck, err)
	}
	if shared {
		p.metrics.ObserveCache("shared")
		log.Info("joined an in-flight check")
		return markCached(report), nil
	}
	return report, nil
}

// admit consults the limiter before any request state exists.
func (p *Pipeline) admit(ctx context.Context, actorID string, kind model.InputKind) error {
	decision, err := p.admitter.Admit(ctx, actorID, kind)
	if err != nil {
		if errors.Is(err, ratelimit.ErrMissingActor) {
			return classify(StageAdmitted, err)
		}
		return &Failure{Kind: UpstreamUnavailable, Reason: ReasonLimiterUnavailable, Stage: StageAdmitted, Err: err}
	}
	if !decision.Allowed {
		p.metrics.ObserveDenial(string(kind))
		return &Failure{
			Kind:       RateLimited,
			Reason:     ReasonRateLimited,
			RetryAfter: time.Duration(decision.RetryAfterSeconds()) * time.Second,
			Stage:      StageAdmitted,
		}
	}
	return nil
}

// analyze runs the uncached stages for one request.
func (p *Pipeline) analyze(ctx context.Context, req *model.AnalysisRequest, log logger.Logger) (*model.CredibilityReport, error) {
	start := p.now()

	// Keywords do not depend on the extracted sources, so both oracle calls
	// run together.
	var (
		sources    []model.ClaimedSource
		extractErr error
		keywords   extract.Keywords
		g          errgroup.Group
	)
	stop := p.stage(StageExtracting)
	g.Go(func() error {
		sources, extractErr = p.extractor.Extract(ctx, req.Text)
		return nil
	})
	g.Go(func() error {
		keywords = p.keywords.Derive(ctx, req.Text)
		return nil
	})
	_ = g.Wait()
	stop()

	var caveats []model.Caveat
	if extractErr != nil {
		if ctx.Err() != nil || p.opts.ExtractionFailure != model.ExtractionDegrade {
			return nil, classify(StageExtracting, extractErr)
		}
		log.Warn("source extraction failed, continuing without sources", logger.Error(extractErr))
		sources = nil
		caveats = append(caveats, model.Caveat{
			Code:    model.CaveatExtractionSkipped,
			Message: "the cited sources could not be identified; per-source verification was skipped",
		})
	}
	if keywords.Heuristic {
		caveats = append(caveats, model.Caveat{
			Code:    model.CaveatKeywordsHeuristic,
			Message: "search keywords were picked automatically from the text",
		})
	}
	for _, note := range req.Notes {
		caveats = append(caveats, model.Caveat{Code: model.CaveatTruncated, Message: note})
	}
	log.Debug("sources extracted",
		logger.Int("sources", len(sources)),
		logger.Strings("keywords", keywords.Terms))

	stop = p.stage(StageSearching)
	evidence := p.gatherer.Gather(ctx, req.Text, keywords.Terms, sources)
	stop()
	if err := ctx.Err(); err != nil {
		return nil, classify(StageSearching, err)
	}

	attributions := p.attribution.Scan(req.Text)
	assessment := p.scorer.Assess(req.Text, sources, evidence, attributions)

	stop = p.stage(StageSynthesizing)
	report, err := p.synthesizer.Synthesize(ctx, req, sources, evidence, assessment)
	stop()
	if err != nil {
		return nil, classify(StageSynthesizing, err)
	}
	report.Caveats = append(caveats, report.Caveats...)

	if p.reports != nil {
		stop = p.stage(StageCaching)
		if err := p.reports.Put(ctx, req.Fingerprint, report); err != nil {
			log.Warn("report cache write failed", logger.Error(err))
		}
		stop()
	}

	log.Info("check complete",
		logger.Int("sources", len(sources)),
		logger.Int("evidence", evidence.Total()),
		logger.Int("index", assessment.Index),
		logger.Int("caveats", len(report.Caveats)),
		logger.Duration("elapsed", p.now().Sub(start)))
	return report, nil
}

// CacheStats reports the result cache counters, or false when caching is off.
func (p *Pipeline) CacheStats() (cache.Stats, bool) {
	if p.reports == nil {
		return cache.Stats{}, false
	}
	return p.reports.Stats(), true
}

// stage starts timing a stage and returns the function that records it.
func (p *Pipeline) stage(s Stage) func() {
	start := p.now()
	return func() {
		p.metrics.ObserveStage(string(s), p.now().Sub(start))
	}
}

// markCached returns a copy flagged as served without fresh analysis. The
// stored report is shared and stays untouched.
func markCached(r *model.CredibilityReport) *model.CredibilityReport {
	cp := *r
	cp.Cached = true
	return &cp
}

func outcomeOf(f *Failure) string {
	switch {
	case f.Kind == RateLimited:
		return metrics.OutcomeRateLimited
	case f.Kind == InputError:
		return metrics.OutcomeInputError
	case f.Reason == ReasonCanceled:
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeUnavailable
	}
}
