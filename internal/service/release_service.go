package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

const (
	releaseLockKey   = "grader:release-sweep:lock"
	releaseBatchSize = 500
)

// ErrSweepLocked indicates another replica holds the sweep lock.
var ErrSweepLocked = errors.New("release sweep already running")

// releaseUnlock deletes the lock only while it still holds our token.
var releaseUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepResult counts what a release sweep did.
type SweepResult struct {
	Examined int
	Advanced int
	Skipped  int
	Errors   int
}

// ReleaseService promotes held submissions once their release time has passed.
type ReleaseService interface {
	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
	RunOnce(ctx context.Context) (SweepResult, error)
	Run(ctx context.Context)
}

type releaseService struct {
	repo     repository.SubmissionRepository
	lock     *redis.Client
	lockTTL  time.Duration
	interval time.Duration
	passback *PassbackDispatcher
	events   EventPublisher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewReleaseService builds the sweep. A nil redis client sweeps without a lock.
func NewReleaseService(repo repository.SubmissionRepository, lock *redis.Client, lockTTL, interval time.Duration, passback *PassbackDispatcher, events EventPublisher, logger zerolog.Logger) ReleaseService {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}

	return &releaseService{
		repo:     repo,
		lock:     lock,
		lockTTL:  lockTTL,
		interval: interval,
		passback: passback,
		events:   events,
		logger:   logger.With().Str("component", "release_service").Logger(),
		now:      time.Now,
	}
}

// Sweep advances every pending submission whose release time is at or before now.
// Approval-held results advance too but are only announced once they become visible.
// Records missing required fields are counted as errors and left alone.
func (s *releaseService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grader/internal/service/release")
	ctx, span := tracer.Start(ctx, "release.sweep")
	defer span.End()

	result := SweepResult{}
	candidates, err := s.repo.ListPendingRelease(ctx, releaseBatchSize)
	if err != nil {
		span.RecordError(err)
		observability.ReleaseSweep().WithLabelValues("failed").Inc()
		return result, fmt.Errorf("list pending submissions: %w", err)
	}

	for _, submission := range candidates {
		result.Examined++

		if err := validateReleasable(submission); err != nil {
			result.Errors++
			observability.Logger(ctx, s.logger).Warn().Err(err).Str("submission_id", submission.ID).Msg("skipping malformed submission")
			continue
		}

		if now.Before(submission.ReleaseAt) {
			result.Skipped++
			continue
		}

		advanced, err := s.repo.AdvanceToReady(ctx, submission.ID, now)
		if err != nil {
			result.Errors++
			observability.Logger(ctx, s.logger).Error().Err(err).Str("submission_id", submission.ID).Msg("failed to advance submission")
			continue
		}
		if !advanced {
			result.Skipped++
			continue
		}

		result.Advanced++
		submission.State = models.SubmissionStateReadyToRelease
		if !submission.IsVisible() {
			continue
		}
		s.passback.Dispatch(ctx, submission)
		if s.events != nil {
			s.events.Publish(ctx, SubjectSubmissionReleased, NewSubmissionEvent(submission, now))
		}
	}

	span.SetAttributes(
		attribute.Int("release.examined", result.Examined),
		attribute.Int("release.advanced", result.Advanced),
		attribute.Int("release.errors", result.Errors),
	)
	observability.ReleaseSweep().WithLabelValues("advanced").Add(float64(result.Advanced))
	observability.ReleaseSweep().WithLabelValues("skipped").Add(float64(result.Skipped))
	observability.ReleaseSweep().WithLabelValues("error").Add(float64(result.Errors))

	observability.Logger(ctx, s.logger).Info().
		Int("examined", result.Examined).
		Int("advanced", result.Advanced).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("release sweep finished")

	return result, nil
}

// RunOnce sweeps at the current time while holding the cluster lock.
func (s *releaseService) RunOnce(ctx context.Context) (SweepResult, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	defer unlock()

	if observability.CorrelationID(ctx) == "" {
		ctx = observability.WithCorrelationID(ctx, "sweep-"+uuid.NewString())
	}
	return s.Sweep(ctx, s.now().UTC())
}

// Run sweeps on every tick until ctx is cancelled.
func (s *releaseService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("release scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("release scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrSweepLocked) {
					s.logger.Debug().Msg("release sweep held by another replica")
					continue
				}
				s.logger.Error().Err(err).Msg("release sweep failed")
			}
		}
	}
}

func (s *releaseService) acquire(ctx context.Context) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}

	token := uuid.NewString()
	ok, err := s.lock.SetNX(ctx, releaseLockKey, token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		observability.ReleaseSweep().WithLabelValues("locked").Inc()
		return nil, ErrSweepLocked
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseUnlock.Run(releaseCtx, s.lock, []string{releaseLockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to release sweep lock")
		}
	}, nil
}

func validateReleasable(submission models.Submission) error {
	var missing []string
	if submission.ReleaseAt.IsZero() {
		missing = append(missing, "release_at")
	}
	if strings.TrimSpace(submission.SubmitterID) == "" {
		missing = append(missing, "submitter_id")
	}
	if submission.AssignmentID == 0 {
		missing = append(missing, "assignment_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("submission missing %s", strings.Join(missing, ", "))
	}
	return nil
}
