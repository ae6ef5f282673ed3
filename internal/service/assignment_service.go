package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/utils"
	"github.com/noah-isme/gema-grader/pkg/extract"
)

const maxSlugAttempts = 100

// AssignmentService manages assignment configurations.
type AssignmentService interface {
	List(ctx context.Context, scope repository.TenantScope, query dto.AssignmentListQuery) ([]dto.AssignmentResponse, utils.PageMeta, error)
	Get(ctx context.Context, scope repository.TenantScope, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, scope repository.TenantScope, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, scope repository.TenantScope, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, scope repository.TenantScope, id uint) error
	GenerateAnswerKey(ctx context.Context, document extract.Document) (dto.AnswerKeyResponse, error)
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	extractor extract.Extractor
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, extractor extract.Extractor, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		extractor: extractor,
		validator: validate,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, scope repository.TenantScope, query dto.AssignmentListQuery) ([]dto.AssignmentResponse, utils.PageMeta, error) {
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

	assignments, total, err := s.repo.ListWithFilter(ctx, repository.AssignmentFilter{
		Scope:    scope,
		Search:   query.Search,
		Mode:     query.Mode,
		Sort:     query.Sort,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, utils.PageMeta{}, err
	}

	return dto.NewAssignmentResponseSlice(assignments), utils.PageMeta{Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *assignmentService) Get(ctx context.Context, scope repository.TenantScope, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, scope, id, false)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, scope repository.TenantScope, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := assignmentFromRequest(payload)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if assignment.InstitutionID == nil {
		assignment.InstitutionID = optionalString(scope.InstitutionID)
	}
	if assignment.CourseID == nil {
		assignment.CourseID = optionalString(scope.CourseID)
	}

	base := assignment.Slug
	if base == "" {
		base = Slugify(assignment.Title)
	}
	slug, err := s.uniqueSlug(ctx, base, 0)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	assignment.Slug = slug

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Str("slug", assignment.Slug).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, scope repository.TenantScope, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.load(ctx, scope, id, true)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.DisplayTitle != nil {
		assignment.DisplayTitle = strings.TrimSpace(*payload.DisplayTitle)
	}
	if payload.GradingMode != nil {
		mode, ok := models.ParseGradingMode(*payload.GradingMode)
		if !ok {
			return dto.AssignmentResponse{}, fmt.Errorf("%w: unknown grading mode %q", ErrInvalidAssignment, *payload.GradingMode)
		}
		assignment.GradingMode = mode
	}
	if payload.TotalPoints != nil {
		assignment.TotalPoints = *payload.TotalPoints
	}
	if payload.AnswerKeyURL != nil {
		assignment.AnswerKeyURL = strings.TrimSpace(*payload.AnswerKeyURL)
	}
	if payload.RubricURL != nil {
		assignment.RubricURL = strings.TrimSpace(*payload.RubricURL)
	}
	if payload.RubricText != nil {
		assignment.RubricText = *payload.RubricText
	}
	if payload.OracleModel != nil {
		assignment.OracleModel = strings.TrimSpace(*payload.OracleModel)
	}
	if payload.GradingDifficulty != nil {
		assignment.GradingDifficulty = strings.TrimSpace(*payload.GradingDifficulty)
	}
	if payload.StudentLevel != nil {
		assignment.StudentLevel = strings.TrimSpace(*payload.StudentLevel)
	}
	if payload.FeedbackTone != nil {
		assignment.FeedbackTone = strings.TrimSpace(*payload.FeedbackTone)
	}
	if payload.OracleNotes != nil {
		assignment.OracleNotes = *payload.OracleNotes
	}
	if payload.ReleaseDelay != nil {
		assignment.ReleaseDelay = string(grading.ParseReleaseDelay(*payload.ReleaseDelay))
	}
	if payload.RequiresApproval != nil {
		assignment.RequiresApproval = *payload.RequiresApproval
	}

	if err := validateAssignment(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Delete(ctx context.Context, scope repository.TenantScope, id uint) error {
	if _, err := s.load(ctx, scope, id, true); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.logger.Info().Uint("assignment_id", id).Msg("assignment deleted")
	return nil
}

// GenerateAnswerKey turns a completed form into a flat answer key.
func (s *assignmentService) GenerateAnswerKey(ctx context.Context, document extract.Document) (dto.AnswerKeyResponse, error) {
	if len(document.Data) == 0 {
		return dto.AnswerKeyResponse{}, ErrEmptySubmission
	}

	fields, err := s.extractor.StructuredFields(ctx, document)
	if err != nil {
		return dto.AnswerKeyResponse{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	data, count, err := grading.BuildAnswerKey(fields)
	if err != nil {
		return dto.AnswerKeyResponse{}, err
	}
	if count == 0 {
		return dto.AnswerKeyResponse{}, ErrEmptySubmission
	}

	s.logger.Info().Str("filename", document.Filename).Int("fields", count).Msg("answer key generated")

	return dto.AnswerKeyResponse{FieldCount: count, AnswerKey: data}, nil
}

// load fetches an assignment visible to scope. Writes require the caller to own
// the tenant row, so tenant-bound callers cannot modify global assignments.
func (s *assignmentService) load(ctx context.Context, scope repository.TenantScope, id uint, write bool) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if !assignmentInScope(assignment, scope, write) {
		return models.Assignment{}, ErrAssignmentNotFound
	}
	return assignment, nil
}

func assignmentInScope(assignment models.Assignment, scope repository.TenantScope, write bool) bool {
	if scope.InstitutionID != "" {
		if assignment.InstitutionID == nil {
			if write {
				return false
			}
		} else if *assignment.InstitutionID != scope.InstitutionID {
			return false
		}
	}
	if scope.CourseID != "" && assignment.CourseID != nil && *assignment.CourseID != scope.CourseID {
		return false
	}
	return true
}

func (s *assignmentService) uniqueSlug(ctx context.Context, base string, excludeID uint) (string, error) {
	if base == "" {
		base = "assignment"
	}

	candidate := base
	for attempt := 2; attempt <= maxSlugAttempts+1; attempt++ {
		exists, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}

	return "", fmt.Errorf("%w: no free slug for %q", ErrInvalidAssignment, base)
}

// assignmentFromRequest builds a validated model from a create payload.
func assignmentFromRequest(payload dto.AssignmentCreateRequest) (models.Assignment, error) {
	mode, ok := models.ParseGradingMode(payload.GradingMode)
	if !ok {
		return models.Assignment{}, fmt.Errorf("%w: unknown grading mode %q", ErrInvalidAssignment, payload.GradingMode)
	}

	assignment := models.Assignment{
		Title:             strings.TrimSpace(payload.Title),
		DisplayTitle:      strings.TrimSpace(payload.DisplayTitle),
		Slug:              Slugify(payload.Slug),
		GradingMode:       mode,
		TotalPoints:       payload.TotalPoints,
		AnswerKeyURL:      strings.TrimSpace(payload.AnswerKeyURL),
		RubricURL:         strings.TrimSpace(payload.RubricURL),
		RubricText:        payload.RubricText,
		OracleModel:       strings.TrimSpace(payload.OracleModel),
		GradingDifficulty: strings.TrimSpace(payload.GradingDifficulty),
		StudentLevel:      strings.TrimSpace(payload.StudentLevel),
		FeedbackTone:      strings.TrimSpace(payload.FeedbackTone),
		OracleNotes:       payload.OracleNotes,
		ReleaseDelay:      string(grading.ParseReleaseDelay(payload.ReleaseDelay)),
		RequiresApproval:  payload.RequiresApproval,
		InstitutionID:     trimmedPtr(payload.InstitutionID),
		CourseID:          trimmedPtr(payload.CourseID),
	}

	if err := validateAssignment(assignment); err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func validateAssignment(assignment models.Assignment) error {
	if assignment.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidAssignment)
	}
	if assignment.TotalPoints <= 0 {
		return fmt.Errorf("%w: total_points must be positive", ErrInvalidAssignment)
	}
	switch assignment.GradingMode {
	case models.GradingModeFieldKey:
		if assignment.AnswerKeyURL == "" {
			return fmt.Errorf("%w: answer_key_url is required for field-key grading", ErrInvalidAssignment)
		}
	case models.GradingModeOracle:
		if assignment.AnswerKeyURL != "" {
			return fmt.Errorf("%w: answer_key_url is only used by field-key grading", ErrInvalidAssignment)
		}
	default:
		return fmt.Errorf("%w: unknown grading mode %q", ErrInvalidAssignment, assignment.GradingMode)
	}
	return nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	return optionalString(*value)
}

// Slugify folds text to lowercase ASCII words joined by hyphens.
func Slugify(value string) string {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, value)
	if err != nil {
		folded = value
	}

	var builder strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			builder.WriteRune(r)
			pendingHyphen = false
		default:
			pendingHyphen = true
		}
	}

	slug := builder.String()
	if len(slug) > 200 {
		slug = strings.TrimRight(slug[:200], "-")
	}
	return slug
}
