package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/pkg/ai"
	"github.com/noah-isme/gema-grader/pkg/extract"
	"github.com/noah-isme/gema-grader/pkg/fetch"
)

// FileUploader abstracts upload destinations.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// GradingRequest is one inbound submission. Document, InlineText or both may be set.
type GradingRequest struct {
	Launch     LaunchContext
	Document   *extract.Document
	InlineText string
}

// GradingService scores submissions and stores them under their release policy.
type GradingService interface {
	Grade(ctx context.Context, request GradingRequest) (dto.GradeResultResponse, error)
}

// GradingDependencies wires the grading pipeline.
type GradingDependencies struct {
	Resolver      AssignmentResolver
	Submissions   repository.SubmissionRepository
	Usage         repository.OracleUsageRepository
	Extractor     extract.Extractor
	Fetcher       fetch.Fetcher
	Oracle        ai.Oracle
	Storage       FileUploader
	Passback      *PassbackDispatcher
	Events        EventPublisher
	OracleTimeout time.Duration
	Logger        zerolog.Logger
}

type gradingService struct {
	deps   GradingDependencies
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// scored is the outcome of either grading mode.
type scored struct {
	score           float64
	max             float64
	feedback        string
	incorrectFields []string
	text            string
	usage           *ai.GradingReply
}

// NewGradingService builds the grading pipeline.
func NewGradingService(deps GradingDependencies) GradingService {
	if deps.OracleTimeout <= 0 {
		deps.OracleTimeout = 60 * time.Second
	}
	return &gradingService{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "grading_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/internal/service/grading"),
		now:    time.Now,
	}
}

func (s *gradingService) Grade(ctx context.Context, request GradingRequest) (dto.GradeResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.String("grading.submitter_id", request.Launch.SubmitterID),
		attribute.String("grading.platform", request.Launch.Platform),
	))
	defer span.End()

	start := time.Now()
	mode := "unknown"
	fail := func(err error, stage string) (dto.GradeResultResponse, error) {
		observability.GradingOutcomes().WithLabelValues(mode, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		return dto.GradeResultResponse{}, err
	}

	assignment, err := s.deps.Resolver.Resolve(ctx, request.Launch)
	if err != nil {
		return fail(err, "resolve failed")
	}
	mode = string(assignment.GradingMode)
	span.SetAttributes(
		attribute.Int("grading.assignment_id", int(assignment.ID)),
		attribute.String("grading.mode", mode),
	)

	submissionID := uuid.NewString()
	submittedAt := s.now().UTC()

	var outcome scored
	switch assignment.GradingMode {
	case models.GradingModeFieldKey:
		outcome, err = s.gradeFieldKey(ctx, assignment, request)
	case models.GradingModeOracle:
		outcome, err = s.gradeOracle(ctx, assignment, request)
	default:
		err = fmt.Errorf("%w: unknown grading mode %q", ErrInvalidAssignment, assignment.GradingMode)
	}
	if err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Uint("assignment_id", assignment.ID).Str("mode", mode).Msg("grading failed")
		return fail(err, "grading failed")
	}

	fileURL := s.storeOriginal(ctx, submissionID, request.Document)

	delayHours := grading.ParseReleaseDelay(assignment.ReleaseDelay).Hours()
	state := grading.InitialState(delayHours, assignment.RequiresApproval)

	submissionType := models.SubmissionTypeInline
	if request.Document != nil {
		submissionType = models.SubmissionTypeFile
	}

	submission := models.Submission{
		ID:                submissionID,
		AssignmentID:      assignment.ID,
		SubmitterID:       request.Launch.SubmitterID,
		InstitutionID:     optionalString(request.Launch.InstitutionID),
		CourseID:          optionalString(request.Launch.CourseID),
		GradingMode:       assignment.GradingMode,
		SubmittedAt:       submittedAt,
		SubmissionType:    submissionType,
		SubmissionText:    outcome.text,
		FileURL:           fileURL,
		ScoreObtained:     outcome.score,
		ScoreMax:          outcome.max,
		Feedback:          outcome.feedback,
		ReleaseDelayHours: delayHours,
		ReleaseAt:         grading.ReleaseAt(submittedAt, delayHours),
		RequiresApproval:  assignment.RequiresApproval,
		State:             state,
		Platform:          strings.ToLower(strings.TrimSpace(request.Launch.Platform)),
		LineItemURL:       strings.TrimSpace(request.Launch.LineItemURL),
	}
	if outcome.incorrectFields != nil {
		submission.IncorrectFields = datatypes.JSONSlice[string](outcome.incorrectFields)
	}

	if err := s.deps.Submissions.Create(ctx, &submission); err != nil {
		observability.Logger(ctx, s.logger).Error().Err(err).Str("submission_id", submissionID).Uint("assignment_id", assignment.ID).Msg("failed to persist submission")
		return fail(fmt.Errorf("%w: %v", ErrPersistenceFailed, err), "persistence failed")
	}
	submission.Assignment = assignment

	if outcome.usage != nil {
		s.recordUsage(ctx, submission, *outcome.usage)
	}

	if state == models.SubmissionStateReadyToRelease {
		s.deps.Passback.Dispatch(ctx, submission)
	}
	if s.deps.Events != nil {
		s.deps.Events.Publish(ctx, SubjectSubmissionGraded, NewSubmissionEvent(submission, submittedAt))
	}

	observability.GradingOutcomes().WithLabelValues(mode, string(state)).Inc()
	observability.GradingLatency().WithLabelValues(mode).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("grading.state", string(state)))
	span.SetStatus(codes.Ok, "graded")

	observability.Logger(ctx, s.logger).Info().
		Str("submission_id", submission.ID).
		Uint("assignment_id", assignment.ID).
		Str("mode", mode).
		Float64("score", submission.ScoreObtained).
		Float64("score_max", submission.ScoreMax).
		Str("state", string(state)).
		Msg("submission graded")

	return dto.NewGradeResultResponse(submission), nil
}

func (s *gradingService) gradeFieldKey(ctx context.Context, assignment models.Assignment, request GradingRequest) (scored, error) {
	document, err := submittedDocument(request)
	if err != nil {
		return scored{}, err
	}

	fields, err := s.deps.Extractor.StructuredFields(ctx, document)
	if err != nil {
		return scored{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(fields) == 0 {
		return scored{}, ErrEmptySubmission
	}

	if strings.TrimSpace(assignment.AnswerKeyURL) == "" {
		return scored{}, fmt.Errorf("%w: no answer key configured", ErrAnswerKeyUnavailable)
	}
	raw, err := s.deps.Fetcher.Fetch(ctx, assignment.AnswerKeyURL)
	if err != nil {
		return scored{}, fmt.Errorf("%w: %v", ErrAnswerKeyUnavailable, err)
	}

	key, err := grading.ParseAnswerKey(raw)
	if err != nil {
		return scored{}, err
	}

	result := grading.Compare(fields, key)
	return scored{
		score:           float64(result.Score),
		max:             float64(result.Total),
		feedback:        result.Feedback(),
		incorrectFields: result.IncorrectFields,
	}, nil
}

func (s *gradingService) gradeOracle(ctx context.Context, assignment models.Assignment, request GradingRequest) (scored, error) {
	text := strings.TrimSpace(request.InlineText)
	if request.Document != nil {
		extracted, err := s.deps.Extractor.PlainText(ctx, *request.Document)
		if err != nil {
			return scored{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		text = strings.TrimSpace(strings.Join([]string{text, extracted}, "\n\n"))
	}
	if text == "" {
		return scored{}, ErrEmptySubmission
	}

	rubricContent, err := s.rubricContent(ctx, assignment)
	if err != nil {
		return scored{}, err
	}
	rubric := grading.ParseRubric(rubricContent, assignment.TotalPoints)
	budget := rubric.Points
	if budget <= 0 {
		budget = assignment.TotalPoints
	}

	oracleRequest := grading.BuildOracleRequest(grading.PromptInput{
		AssignmentTitle:   assignment.Label(),
		GradingDifficulty: assignment.GradingDifficulty,
		StudentLevel:      assignment.StudentLevel,
		FeedbackTone:      assignment.FeedbackTone,
		InstructorNotes:   assignment.OracleNotes,
		Model:             assignment.OracleModel,
		RubricText:        rubric.Text,
		SubmissionText:    text,
		PointsBudget:      budget,
	})

	if s.deps.Oracle == nil {
		return scored{}, fmt.Errorf("%w: no oracle configured", ErrOracleUnavailable)
	}

	oracleCtx, cancel := context.WithTimeout(ctx, s.deps.OracleTimeout)
	defer cancel()
	reply, err := s.deps.Oracle.Grade(oracleCtx, oracleRequest)
	if err != nil {
		return scored{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	verdict, err := grading.ParseOracleReply(reply.RawText, budget)
	if err != nil {
		observability.OracleMalformedReplies().Inc()
		observability.Logger(ctx, s.logger).Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("oracle reply did not match expected format, scoring zero")
	}

	return scored{
		score:    float64(verdict.Score),
		max:      float64(budget),
		feedback: verdict.Feedback,
		text:     text,
		usage:    &reply,
	}, nil
}

func (s *gradingService) rubricContent(ctx context.Context, assignment models.Assignment) (string, error) {
	if text := strings.TrimSpace(assignment.RubricText); text != "" {
		return text, nil
	}
	if strings.TrimSpace(assignment.RubricURL) == "" {
		return "", nil
	}

	raw, err := s.deps.Fetcher.Fetch(ctx, assignment.RubricURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRubricUnavailable, err)
	}
	return string(raw), nil
}

// storeOriginal uploads the submitted file for instructor preview. Failures only log.
func (s *gradingService) storeOriginal(ctx context.Context, submissionID string, document *extract.Document) string {
	if document == nil || s.deps.Storage == nil {
		return ""
	}

	name := submissionID
	if document.Filename != "" {
		name = submissionID + "-" + document.Filename
	}
	url, err := s.deps.Storage.Upload(ctx, name, bytes.NewReader(document.Data))
	if err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Str("submission_id", submissionID).Msg("failed to store submission file")
		return ""
	}
	return url
}

func (s *gradingService) recordUsage(ctx context.Context, submission models.Submission, reply ai.GradingReply) {
	if s.deps.Usage == nil {
		return
	}

	usage := models.OracleUsage{
		SubmissionID:     submission.ID,
		AssignmentID:     submission.AssignmentID,
		SubmitterID:      submission.SubmitterID,
		InstitutionID:    submission.InstitutionID,
		Model:            reply.Model,
		PromptTokens:     reply.Usage.PromptTokens,
		CompletionTokens: reply.Usage.CompletionTokens,
		TotalTokens:      reply.Usage.TotalTokens,
		Raw: map[string]interface{}{
			"prompt_tokens":     reply.Usage.PromptTokens,
			"completion_tokens": reply.Usage.CompletionTokens,
			"total_tokens":      reply.Usage.TotalTokens,
		},
	}
	if err := s.deps.Usage.Create(ctx, &usage); err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to record oracle usage")
	}
}

// submittedDocument returns the uploaded file, or the inline text as a document.
func submittedDocument(request GradingRequest) (extract.Document, error) {
	if request.Document != nil && len(request.Document.Data) > 0 {
		return *request.Document, nil
	}
	if text := strings.TrimSpace(request.InlineText); text != "" {
		return extract.Document{Filename: "inline.txt", Data: []byte(text)}, nil
	}
	return extract.Document{}, ErrEmptySubmission
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
