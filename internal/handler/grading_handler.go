package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// GradingHandler accepts learner submissions and shows their results.
type GradingHandler struct {
	grading   service.GradingService
	reviews   service.ReviewService
	validator *validator.Validate
	maxUpload int64
	logger    zerolog.Logger
}

// NewGradingHandler builds the learner facing handler.
func NewGradingHandler(grading service.GradingService, reviews service.ReviewService, validator *validator.Validate, maxUploadMB int, logger zerolog.Logger) *GradingHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &GradingHandler{
		grading:   grading,
		reviews:   reviews,
		validator: validator,
		maxUpload: int64(maxUploadMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *GradingHandler) Register(router fiber.Router, submitMiddleware ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, submitMiddleware...), h.submit)
	router.Post("", handlers...)
	router.Get("/:id", h.view)
}

func (h *GradingHandler) submit(c *fiber.Ctx) error {
	payload := dto.GradeSubmissionRequest{
		Text: c.FormValue("text"),
		Slug: c.Query("slug"),
	}
	if err := h.validator.Struct(payload); err != nil {
		return respondError(c, h.logger, err)
	}

	request := service.GradingRequest{
		Launch:     launchContext(c, payload.Slug),
		InlineText: payload.Text,
	}

	file, err := c.FormFile("file")
	switch {
	case err == nil:
		document, readErr := readFormDocument(file, h.maxUpload)
		if readErr != nil {
			if errors.Is(readErr, errFileTooLarge) {
				return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			}
			return utils.SendError(c, fiber.StatusBadRequest, "could not read uploaded file")
		}
		request.Document = document
	case strings.TrimSpace(payload.Text) == "":
		return utils.SendError(c, fiber.StatusBadRequest, "a file or text is required")
	}

	if request.Launch.SubmitterID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.grading.Grade(c.UserContext(), request)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", result)
}

func (h *GradingHandler) view(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid id")
	}

	result, err := h.reviews.View(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", result)
}
