package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// ReviewHandler exposes the instructor review queue.
type ReviewHandler struct {
	service   service.ReviewService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service service.ReviewService, validator *validator.Validate, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register wires review routes.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("/:id/approve", h.approve)
	router.Patch("/:id", h.update)
	router.Put("/:id/notes", h.notes)
	router.Delete("/:id", h.delete)
}

func (h *ReviewHandler) list(c *fiber.Ctx) error {
	var query dto.SubmissionListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	items, meta, err := h.service.List(c.UserContext(), tenantScope(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, items, "submissions retrieved", meta)
}

func (h *ReviewHandler) get(c *fiber.Ctx) error {
	item, err := h.service.Get(c.UserContext(), tenantScope(c), submissionID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", item)
}

func (h *ReviewHandler) approve(c *fiber.Ctx) error {
	item, err := h.service.Approve(c.UserContext(), tenantScope(c), submissionID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().Str("submission_id", item.ID).Str("reviewer", userIDFromContext(c)).Msg("submission approved")
	return utils.SendSuccess(c, "submission approved", item)
}

func (h *ReviewHandler) update(c *fiber.Ctx) error {
	var payload dto.ReviewUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if payload.Score == nil && payload.Feedback == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "score or feedback is required")
	}

	item, err := h.service.UpdateReview(c.UserContext(), tenantScope(c), submissionID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission reviewed", item)
}

func (h *ReviewHandler) notes(c *fiber.Ctx) error {
	var payload dto.NotesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.service.SaveNotes(c.UserContext(), tenantScope(c), submissionID(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notes saved", item)
}

func (h *ReviewHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), tenantScope(c), submissionID(c)); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission deleted", nil)
}

func submissionID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("id"))
}
