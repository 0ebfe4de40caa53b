package http

import (
	"strings"

	"sentinel_server/core/domain"
	"sentinel_server/core/service/pipeline"
	"sentinel_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ScanHandler handles text scan requests.
type ScanHandler struct {
	pipeline *pipeline.Service
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(pipelineService *pipeline.Service) *ScanHandler {
	return &ScanHandler{pipeline: pipelineService}
}

// Register registers scan routes.
func (h *ScanHandler) Register(router fiber.Router) {
	router.Post("/scan", h.Scan)
	router.Post("/scan/preview", h.Preview)
}

type scanRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	// UserID identifies the member whose content is being scanned.
	// Internal services call this endpoint on behalf of members, so
	// the subject is part of the payload, not the auth token.
	UserID string `json:"user_id"`
}

func (r *scanRequest) source() domain.ScanSource {
	switch src := domain.ScanSource(strings.ToLower(r.Source)); src {
	case domain.SourceCheckIn, domain.SourceChat, domain.SourceReflection, domain.SourceJournal, domain.SourceGoal:
		return src
	default:
		return domain.SourceUnknown
	}
}

// Scan runs text through the full detection pipeline: detect, open an
// alert when the tier warrants one, and dispatch notifications.
func (h *ScanHandler) Scan(c *fiber.Ctx) error {
	var req scanRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.UserID == "" {
		return AppErrorResponse(c, apperr.MissingField("user_id"))
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid user_id")
	}

	outcome, err := h.pipeline.ScanText(c.Context(), userID, req.Text, req.source())
	if err != nil {
		return InternalErrorResponse(c, err, "scan")
	}

	return SuccessResponse(c, outcome)
}

// Preview runs detection only, without persisting an alert or sending
// notifications. Used by moderation tooling to test phrasing.
func (h *ScanHandler) Preview(c *fiber.Ctx) error {
	var req scanRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	result := h.pipeline.ScanOnly(req.Text, req.source())
	return SuccessResponse(c, result)
}
