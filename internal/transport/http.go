package transport

import (
	"errors"
	"io"
	"log/slog"

	"whatsapp-campaign-launcher/internal/app"
	"whatsapp-campaign-launcher/internal/domain"
	"whatsapp-campaign-launcher/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler holds the campaign launcher HTTP handlers.
type Handler struct {
	svc *app.CampaignService
	log *slog.Logger
}

// NewHandler wires up a Handler with its dependencies.
func NewHandler(svc *app.CampaignService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts all routes onto the given router. Every route is tenant scoped.
func (h *Handler) Register(router fiber.Router) {
	g := router.Group("/campaign-launcher", middleware.TenantScope())
	g.Post("/upload", h.Upload)
	g.Post("/validate", h.Validate)
	g.Post("/launch", h.Launch)
	g.Get("/channels", h.ListChannels)
}

// Upload stages a CSV for the calling operator.
//
// POST /campaign-launcher/upload
// Multipart: file=<csv>, encoding=<charset, optional>
func (h *Handler) Upload(c *fiber.Ctx) error {
	key, _ := middleware.StagingKey(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, domain.ErrNoFile)
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return h.fail(c, err)
	}

	res, err := h.svc.Upload(c.UserContext(), key, data, c.FormValue("encoding"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

type validateRequest struct {
	PhoneColumn      string                   `json:"phone_column"`
	NameColumn       string                   `json:"name_column"`
	VariableMappings []domain.VariableMapping `json:"variable_mappings"`
}

// Validate checks a column selection against the staged CSV.
//
// POST /campaign-launcher/validate
// Body: { "phone_column": "...", "name_column": "...", "variable_mappings": [...] }
func (h *Handler) Validate(c *fiber.Ctx) error {
	key, _ := middleware.StagingKey(c)

	var req validateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	res, err := h.svc.Validate(c.UserContext(), key, app.ValidateInput{
		PhoneColumn: req.PhoneColumn,
		NameColumn:  req.NameColumn,
		Mappings:    req.VariableMappings,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(res)
}

type launchRequest struct {
	ChannelID         string                   `json:"channel_id"`
	PhoneColumn       string                   `json:"phone_column"`
	NameColumn        string                   `json:"name_column"`
	VariableMappings  []domain.VariableMapping `json:"variable_mappings"`
	DelayMS           *int                     `json:"delay_ms"`
	TemplateName      string                   `json:"template_name"`
	TemplateNamespace string                   `json:"template_namespace"`
	TemplateLanguage  string                   `json:"template_language"`
	TemplateBodyText  string                   `json:"template_body_text"`
}

// Launch dispatches the staged CSV and streams progress as server-sent events.
// Input errors are answered with a JSON error before the stream opens.
//
// POST /campaign-launcher/launch
func (h *Handler) Launch(c *fiber.Ctx) error {
	key, _ := middleware.StagingKey(c)

	var req launchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "channel_id must be a valid UUID"})
	}

	launch, err := h.svc.PrepareLaunch(c.UserContext(), key, app.LaunchInput{
		ChannelID:         channelID,
		PhoneColumn:       req.PhoneColumn,
		NameColumn:        req.NameColumn,
		Mappings:          req.VariableMappings,
		DelayMS:           req.DelayMS,
		TemplateName:      req.TemplateName,
		TemplateNamespace: req.TemplateNamespace,
		TemplateLanguage:  req.TemplateLanguage,
		TemplateBodyText:  req.TemplateBodyText,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return h.stream(c, launch)
}

// ListChannels returns the tenant's channels with their approved templates.
//
// GET /campaign-launcher/channels
func (h *Handler) ListChannels(c *fiber.Ctx) error {
	key, _ := middleware.StagingKey(c)

	channels, err := h.svc.ListChannels(c.UserContext(), key.TenantID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"channels": channels})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoFile),
		errors.Is(err, domain.ErrEmptyDataset),
		errors.Is(err, domain.ErrInvalidCSV),
		errors.Is(err, domain.ErrInvalidLaunch),
		errors.Is(err, domain.ErrNoStagedImport):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrChannelNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrLaunchInProgress):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "request_id", middleware.RequestID(c), "err", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
