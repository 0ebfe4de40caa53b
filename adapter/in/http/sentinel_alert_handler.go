package http

import (
	"strconv"
	"time"

	"sentinel_server/core/domain"
	"sentinel_server/core/service/alert"
	"sentinel_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AlertHandler handles alert review requests.
type AlertHandler struct {
	alertService *alert.Service
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(alertService *alert.Service) *AlertHandler {
	return &AlertHandler{alertService: alertService}
}

// Register registers alert routes.
func (h *AlertHandler) Register(router fiber.Router) {
	alerts := router.Group("/alerts")

	alerts.Get("/", h.ListAlerts)
	alerts.Get("/stats", h.GetStats)
	alerts.Get("/:id", h.GetAlert)
	alerts.Post("/:id/acknowledge", h.AcknowledgeAlert)
	alerts.Post("/:id/resolve", h.ResolveAlert)
	alerts.Post("/:id/notes", h.AddNote)
}

func alertID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid alert id")
	}
	return id, nil
}

// ListAlerts returns alerts matching the query filter, newest first.
func (h *AlertHandler) ListAlerts(c *fiber.Ctx) error {
	if _, err := MustGetUserID(c); err != nil {
		return err
	}

	params := GetPaginationParams(c, 50)
	filter := &domain.AlertFilter{
		Limit:  params.Limit,
		Offset: params.Offset,
	}

	if tier := c.Query("tier"); tier != "" {
		t, err := domain.ParseTier(tier)
		if err != nil {
			return AppErrorResponse(c, err)
		}
		filter.Tier = &t
	}
	if status := c.Query("status"); status != "" {
		s := domain.AlertStatus(status)
		filter.Status = &s
	}
	if src := c.Query("source"); src != "" {
		s := domain.ScanSource(src)
		filter.Source = &s
	}
	if member := c.Query("member_id"); member != "" {
		id, err := uuid.Parse(member)
		if err != nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "invalid member_id")
		}
		filter.UserID = &id
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "invalid since timestamp")
		}
		filter.Since = &t
	}

	alerts, total, err := h.alertService.List(c.Context(), filter)
	if err != nil {
		return InternalErrorResponse(c, err, "list alerts")
	}

	return SuccessResponse(c, fiber.Map{
		"alerts": alerts,
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

// GetAlert returns one alert with its notes.
func (h *AlertHandler) GetAlert(c *fiber.Ctx) error {
	if _, err := MustGetUserID(c); err != nil {
		return err
	}

	id, err := alertID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	a, err := h.alertService.GetByID(c.Context(), id)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, a)
}

// AcknowledgeAlert moves an alert to ACKNOWLEDGED. A reviewer who
// loses the race gets a conflict with the current status.
func (h *AlertHandler) AcknowledgeAlert(c *fiber.Ctx) error {
	reviewerID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	id, err := alertID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	a, err := h.alertService.Acknowledge(c.Context(), id, reviewerID)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, a)
}

type resolveRequest struct {
	Note string `json:"note"`
}

// ResolveAlert moves an alert to RESOLVED with an optional note.
func (h *AlertHandler) ResolveAlert(c *fiber.Ctx) error {
	reviewerID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	id, err := alertID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req resolveRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	a, err := h.alertService.Resolve(c.Context(), id, reviewerID, req.Note)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, a)
}

type noteRequest struct {
	Body string `json:"body"`
}

// AddNote appends an annotation without changing alert status.
func (h *AlertHandler) AddNote(c *fiber.Ctx) error {
	reviewerID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	id, err := alertID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req noteRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.alertService.AddNote(c.Context(), id, reviewerID, req.Body); err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"alert_id": id})
}

// GetStats reports alert counts per status.
func (h *AlertHandler) GetStats(c *fiber.Ctx) error {
	if _, err := MustGetUserID(c); err != nil {
		return err
	}

	counts, err := h.alertService.StatusCounts(c.Context())
	if err != nil {
		return InternalErrorResponse(c, err, "alert stats")
	}

	return SuccessResponse(c, counts)
}
