package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/extract"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   FailureKind
		reason string
	}{
		{"too large", fmt.Errorf("normalize: %w", normalize.ErrContentTooLarge), InputError, ReasonContentTooLarge},
		{"unsupported", normalize.ErrUnsupportedInput, InputError, ReasonUnsupportedInput},
		{"missing actor", ratelimit.ErrMissingActor, InputError, ReasonMissingActor},
		{"fetch failed", normalize.ErrSourceUnavailable, UpstreamUnavailable, ReasonSourceUnavailable},
		{"oracle", fmt.Errorf("%w: boom", extract.ErrAnalysisUnavailable), UpstreamUnavailable, ReasonAnalysisUnavailable},
		{"oracle timeout", fmt.Errorf("%w: %w", extract.ErrAnalysisUnavailable, context.DeadlineExceeded), UpstreamUnavailable, ReasonTimeout},
		{"canceled", context.Canceled, UpstreamUnavailable, ReasonCanceled},
		{"unknown", errors.New("something else"), UpstreamUnavailable, ReasonAnalysisUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := classify(StageExtracting, tt.err)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.reason, f.Reason)
			assert.Equal(t, StageExtracting, f.Stage)
			assert.ErrorIs(t, f, tt.err)
		})
	}
}

func TestClassify_KeepsExistingFailure(t *testing.T) {
	orig := &Failure{Kind: RateLimited, Reason: ReasonRateLimited, Stage: StageAdmitted}
	wrapped := fmt.Errorf("handle: %w", orig)

	assert.Same(t, orig, classify(StageFailed, wrapped))
}

func TestFailure_UserMessage(t *testing.T) {
	limited := &Failure{Kind: RateLimited, Reason: ReasonRateLimited, RetryAfter: 1500 * time.Millisecond}

	assert.Equal(t, "You are sending checks too often. Please wait 2 seconds.", limited.UserMessage("en"))
	assert.Equal(t, "Çox tez-tez sorğu göndərirsiniz. Zəhmət olmasa 2 saniyə gözləyin.", limited.UserMessage("az"))
	assert.Equal(t, limited.UserMessage("en"), limited.UserMessage("fr"), "unknown locales fall back to English")

	upstream := &Failure{Kind: UpstreamUnavailable, Reason: ReasonAnalysisUnavailable, Err: errors.New("openai: 500 internal error")}
	for _, locale := range []string{"en", "az"} {
		msg := upstream.UserMessage(locale)
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, "openai", "upstream details never reach users")
		assert.NotContains(t, msg, "500")
	}

	unknown := &Failure{Kind: UpstreamUnavailable, Reason: "new_reason"}
	assert.Equal(t, upstream.UserMessage("az"), unknown.UserMessage("az"))
}

func TestUserMessages_CoverEveryReason(t *testing.T) {
	en := userMessages["en"]
	for locale, messages := range userMessages {
		assert.Len(t, messages, len(en), "locale %s", locale)
		for reason := range en {
			assert.NotEmpty(t, messages[reason], "locale %s reason %s", locale, reason)
		}
		assert.True(t, strings.Contains(messages[ReasonRateLimited], "%d"), "locale %s", locale)
	}
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Kind: InputError, Reason: ReasonContentTooLarge, Stage: StageNormalizing, Err: normalize.ErrContentTooLarge}
	assert.Equal(t, "input_error at normalizing (content_too_large): content too large", f.Error())
	assert.Equal(t, 0, (&Failure{}).RetryAfterSeconds())
}
