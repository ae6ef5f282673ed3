package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
	"github.com/noah-isme/gema-grader/pkg/extract"
)

var errFileTooLarge = errors.New("file too large")

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func userRoleFromContext(c *fiber.Ctx) string {
	if role, ok := c.Locals("user_role").(string); ok {
		return strings.ToLower(strings.TrimSpace(role))
	}
	return ""
}

// launchContext converts the authenticated launch into the grading context.
func launchContext(c *fiber.Ctx, slugOverride string) service.LaunchContext {
	launch, _ := middleware.LaunchFromContext(c)
	submitter := launch.UserID
	if submitter == "" {
		submitter = userIDFromContext(c)
	}

	return service.LaunchContext{
		SubmitterID:       submitter,
		InstitutionID:     launch.InstitutionID,
		CourseID:          launch.CourseID,
		Platform:          launch.Platform,
		LineItemURL:       launch.LineItemURL,
		ResourceLinkTitle: launch.ResourceLinkTitle,
		CustomSlug:        launch.AssignmentSlug,
		SlugOverride:      strings.TrimSpace(slugOverride),
	}
}

// tenantScope restricts instructors to their launch tenant. Admins without a
// tenant claim see everything.
func tenantScope(c *fiber.Ctx) repository.TenantScope {
	launch, _ := middleware.LaunchFromContext(c)
	return repository.TenantScope{
		InstitutionID: launch.InstitutionID,
		CourseID:      launch.CourseID,
	}
}

func readFormDocument(file *multipart.FileHeader, maxBytes int64) (*extract.Document, error) {
	if maxBytes > 0 && file.Size > maxBytes {
		return nil, errFileTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	reader := io.Reader(src)
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errFileTooLarge
	}

	return &extract.Document{Filename: file.Filename, Data: data}, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err error) (map[string]string, bool) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil, false
	}

	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details, true
}

// respondError maps service errors to a status and a message that never
// exposes internal detail.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	log := requestLogger(logger, c)
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, service.UserMessage(err))
	case errors.Is(err, service.ErrEmptySubmission),
		errors.Is(err, service.ErrExtractionFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, service.UserMessage(err))
	case errors.Is(err, service.ErrScoreOutOfRange):
		return utils.SendError(c, fiber.StatusBadRequest, service.UserMessage(err))
	case errors.Is(err, service.ErrInvalidAssignment):
		return utils.SendError(c, fiber.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidAssignment.Error()+": "))
	case errors.Is(err, service.ErrAnswerKeyUnavailable),
		errors.Is(err, service.ErrRubricUnavailable):
		log.Warn().Err(err).Msg("grading material unavailable")
		return utils.SendError(c, fiber.StatusBadGateway, service.UserMessage(err))
	case errors.Is(err, service.ErrOracleUnavailable):
		log.Warn().Err(err).Msg("grading oracle unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, service.UserMessage(err))
	case errors.Is(err, service.ErrSeedDisabled):
		return utils.SendError(c, fiber.StatusForbidden, "seeding disabled")
	case errors.Is(err, service.ErrSeedUnauthorized):
		return utils.SendError(c, fiber.StatusForbidden, "invalid token")
	case errors.Is(err, service.ErrSweepLocked):
		return utils.SendError(c, fiber.StatusConflict, "release sweep already running")
	default:
		log.Error().Err(err).Msg("request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, service.UserMessage(err))
	}
}
