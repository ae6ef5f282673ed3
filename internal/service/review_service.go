package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/utils"
)

const scoreTolerance = 1e-9

// ReviewService drives the instructor side of the submission state machine.
type ReviewService interface {
	List(ctx context.Context, scope repository.TenantScope, query dto.SubmissionListQuery) ([]dto.SubmissionResponse, utils.PageMeta, error)
	Get(ctx context.Context, scope repository.TenantScope, id string) (dto.SubmissionResponse, error)
	Approve(ctx context.Context, scope repository.TenantScope, id string) (dto.SubmissionResponse, error)
	UpdateReview(ctx context.Context, scope repository.TenantScope, id string, payload dto.ReviewUpdateRequest) (dto.SubmissionResponse, error)
	SaveNotes(ctx context.Context, scope repository.TenantScope, id string, payload dto.NotesRequest) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, scope repository.TenantScope, id string) error
	View(ctx context.Context, id string, submitterID string) (dto.GradeResultResponse, error)
}

type reviewService struct {
	repo      repository.SubmissionRepository
	validator *validator.Validate
	passback  *PassbackDispatcher
	events    EventPublisher
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewReviewService constructs the review service.
func NewReviewService(repo repository.SubmissionRepository, validate *validator.Validate, passback *PassbackDispatcher, events EventPublisher, logger zerolog.Logger) ReviewService {
	return &reviewService{
		repo:      repo,
		validator: validate,
		passback:  passback,
		events:    events,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "review_service").Logger(),
		now:       time.Now,
	}
}

func (s *reviewService) List(ctx context.Context, scope repository.TenantScope, query dto.SubmissionListQuery) ([]dto.SubmissionResponse, utils.PageMeta, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, utils.PageMeta{}, err
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	filter := repository.SubmissionFilter{
		Scope:        scope,
		AssignmentID: query.AssignmentID,
		SubmitterID:  strings.TrimSpace(query.SubmitterID),
		Reviewed:     query.Reviewed,
		Page:         page,
		PageSize:     pageSize,
	}
	if state := models.SubmissionState(query.State); state.Valid() {
		filter.State = &state
	}

	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, utils.PageMeta{}, err
	}

	return dto.NewSubmissionResponseSlice(submissions), utils.PageMeta{Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *reviewService) Get(ctx context.Context, scope repository.TenantScope, id string) (dto.SubmissionResponse, error) {
	submission, err := s.load(ctx, scope, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *reviewService) Approve(ctx context.Context, scope repository.TenantScope, id string) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-grader/internal/service/review")
	ctx, span := tracer.Start(ctx, "review.approve")
	span.SetAttributes(attribute.String("review.submission_id", id))
	defer span.End()

	submission, err := s.load(ctx, scope, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	if submission.State == models.SubmissionStateReleased {
		span.SetAttributes(attribute.Bool("review.idempotent", true))
		return dto.NewSubmissionResponse(submission), nil
	}

	releasedAt := s.now().UTC()
	changed, err := s.repo.Release(ctx, id, releasedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err = s.load(ctx, scope, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if changed {
		observability.Logger(ctx, s.logger).Info().Str("submission_id", id).Msg("submission approved and released")
		s.passback.Dispatch(ctx, submission)
		if s.events != nil {
			s.events.Publish(ctx, SubjectSubmissionReleased, NewSubmissionEvent(submission, releasedAt))
		}
	}

	span.SetAttributes(attribute.String("review.state", string(submission.State)))
	return dto.NewSubmissionResponse(submission), nil
}

func (s *reviewService) UpdateReview(ctx context.Context, scope repository.TenantScope, id string, payload dto.ReviewUpdateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.load(ctx, scope, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	update := repository.ReviewUpdate{}
	if payload.Score != nil {
		score := *payload.Score
		if score < 0 || score > submission.ScoreMax+scoreTolerance {
			return dto.SubmissionResponse{}, fmt.Errorf("%w: %.2f not in [0, %.2f]", ErrScoreOutOfRange, score, submission.ScoreMax)
		}
		update.ScoreObtained = &score
	}
	if payload.Feedback != nil {
		feedback := strings.TrimSpace(s.sanitizer.Sanitize(*payload.Feedback))
		update.Feedback = &feedback
	}

	if err := s.repo.UpdateReview(ctx, id, update); err != nil {
		return dto.SubmissionResponse{}, translateSubmissionErr(err)
	}

	observability.Logger(ctx, s.logger).Info().Str("submission_id", id).Bool("score_changed", update.ScoreObtained != nil).Msg("submission reviewed")

	submission, err = s.load(ctx, scope, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *reviewService) SaveNotes(ctx context.Context, scope repository.TenantScope, id string, payload dto.NotesRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if _, err := s.load(ctx, scope, id); err != nil {
		return dto.SubmissionResponse{}, err
	}

	notes := strings.TrimSpace(s.sanitizer.Sanitize(payload.Notes))
	if err := s.repo.UpdateNotes(ctx, id, notes); err != nil {
		return dto.SubmissionResponse{}, translateSubmissionErr(err)
	}

	submission, err := s.load(ctx, scope, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *reviewService) Delete(ctx context.Context, scope repository.TenantScope, id string) error {
	if _, err := s.load(ctx, scope, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return translateSubmissionErr(err)
	}

	observability.Logger(ctx, s.logger).Info().Str("submission_id", id).Msg("submission deleted")
	return nil
}

// View returns the submitter's own result. Other submitters get not found.
func (s *reviewService) View(ctx context.Context, id string, submitterID string) (dto.GradeResultResponse, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.GradeResultResponse{}, translateSubmissionErr(err)
	}
	if submitterID == "" || submission.SubmitterID != submitterID {
		return dto.GradeResultResponse{}, ErrSubmissionNotFound
	}

	return dto.NewGradeResultResponse(submission), nil
}

func (s *reviewService) load(ctx context.Context, scope repository.TenantScope, id string) (models.Submission, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, translateSubmissionErr(err)
	}
	if !inScope(submission, scope) {
		return models.Submission{}, ErrSubmissionNotFound
	}
	return submission, nil
}

// inScope reports whether a tenant-bound reviewer may see the submission.
// An empty scope sees every tenant.
func inScope(submission models.Submission, scope repository.TenantScope) bool {
	if scope.InstitutionID != "" && submission.InstitutionID != nil && *submission.InstitutionID != scope.InstitutionID {
		return false
	}
	if scope.CourseID != "" && submission.CourseID != nil && *submission.CourseID != scope.CourseID {
		return false
	}
	return true
}

func translateSubmissionErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSubmissionNotFound
	}
	return err
}
