package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// ReleaseHandler lets admins trigger the release sweep by hand.
type ReleaseHandler struct {
	service service.ReleaseService
	logger  zerolog.Logger
	now     func() time.Time
}

// NewReleaseHandler constructs the handler.
func NewReleaseHandler(service service.ReleaseService, logger zerolog.Logger) *ReleaseHandler {
	return &ReleaseHandler{
		service: service,
		logger:  logger.With().Str("component", "release_handler").Logger(),
		now:     time.Now,
	}
}

// Register wires release routes.
func (h *ReleaseHandler) Register(router fiber.Router) {
	router.Post("/sweep", h.sweep)
}

func (h *ReleaseHandler) sweep(c *fiber.Ctx) error {
	ranAt := h.now().UTC()
	result, err := h.service.Sweep(c.UserContext(), ranAt)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Str("triggered_by", userIDFromContext(c)).
		Int("advanced", result.Advanced).
		Msg("manual release sweep")

	return utils.SendSuccess(c, "release sweep completed", dto.SweepResponse{
		Examined: result.Examined,
		Advanced: result.Advanced,
		Skipped:  result.Skipped,
		Errors:   result.Errors,
		RanAt:    ranAt,
	})
}
