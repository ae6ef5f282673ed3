package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/pkg/passback"
)

// PassbackDispatcher posts released grades to passback-capable platforms.
// Failures are logged and counted, never returned.
type PassbackDispatcher struct {
	poster    passback.Poster
	platforms map[string]struct{}
	timeout   time.Duration
	async     func(func())
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPassbackDispatcher builds a dispatcher. A nil poster disables passback.
func NewPassbackDispatcher(poster passback.Poster, platforms []string, timeout time.Duration, logger zerolog.Logger) *PassbackDispatcher {
	allowed := make(map[string]struct{}, len(platforms))
	for _, platform := range platforms {
		if normalized := strings.ToLower(strings.TrimSpace(platform)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &PassbackDispatcher{
		poster:    poster,
		platforms: allowed,
		timeout:   timeout,
		async:     func(fn func()) { go fn() },
		logger:    logger.With().Str("component", "passback_dispatcher").Logger(),
		now:       time.Now,
	}
}

// RunInline makes Dispatch post synchronously. One-shot commands use it so
// posts complete before exit.
func (d *PassbackDispatcher) RunInline() {
	d.async = func(fn func()) { fn() }
}

// Eligible reports whether the submission's platform accepts grade passback.
func (d *PassbackDispatcher) Eligible(submission models.Submission) bool {
	if d == nil || d.poster == nil || strings.TrimSpace(submission.LineItemURL) == "" {
		return false
	}
	_, ok := d.platforms[strings.ToLower(strings.TrimSpace(submission.Platform))]
	return ok
}

// Dispatch posts the grade in the background, detached from the request.
func (d *PassbackDispatcher) Dispatch(ctx context.Context, submission models.Submission) {
	if !d.Eligible(submission) {
		return
	}

	detached := context.WithoutCancel(ctx)
	d.async(func() {
		postCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		score := passback.Score{
			UserID:       submission.SubmitterID,
			ScoreGiven:   submission.ScoreObtained,
			ScoreMaximum: submission.ScoreMax,
			Comment:      submission.Feedback,
			Timestamp:    d.now(),
		}

		platform := strings.ToLower(submission.Platform)
		if err := d.poster.PostScore(postCtx, submission.LineItemURL, score); err != nil {
			d.logger.Warn().
				Err(fmt.Errorf("%w: %v", ErrPassbackFailed, err)).
				Str("submission_id", submission.ID).
				Str("platform", platform).
				Msg("grade passback failed")
			observability.PassbackResults().WithLabelValues(platform, "failure").Inc()
			return
		}

		observability.PassbackResults().WithLabelValues(platform, "success").Inc()
		d.logger.Info().Str("submission_id", submission.ID).Str("platform", platform).Msg("grade passed back")
	})
}
