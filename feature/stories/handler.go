package stories

import (
	"errors"

	"story-pipeline/core/events"
	"story-pipeline/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler exposes the event intake and the share id audit over HTTP.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the story routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	ev := app.Group("/events")
	ev.Post("/storage", h.HandleStorageNotification)
	ev.Post("/object-finalized", h.HandleObjectFinalized)
	ev.Post("/document-created", h.HandleDocumentCreated)
	ev.Post("/document-updated", h.HandleDocumentUpdated)

	app.Get("/reconcile/shareids", h.HandleShareIDAudit)
	app.Get("/reconcile/shareids/:id", h.HandleShareIDAuditOne)
}

// HandleStorageNotification accepts a MinIO/S3 bucket notification webhook.
// Non-create records are ignored. Any failing record fails the request so
// the sender redelivers the whole payload.
func (h *Handler) HandleStorageNotification(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var payload events.NotificationPayload
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, err)
	}
	objects, err := payload.ObjectEvents()
	if err != nil {
		return badRequest(c, err)
	}

	outcomes := make([]string, 0, len(objects))
	for _, ev := range objects {
		out, err := h.service.HandleObject(c.UserContext(), SourceWebhook, ev)
		if err != nil {
			l.Error("Failed to handle storage notification", zap.String("name", ev.Name), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		outcomes = append(outcomes, string(out))
	}
	return c.JSON(fiber.Map{"outcomes": outcomes})
}

// HandleObjectFinalized accepts {name, contentType, bucket?, etag?, sequencer?, size?}.
func (h *Handler) HandleObjectFinalized(c *fiber.Ctx) error {
	var ev events.ObjectFinalized
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, err)
	}
	out, err := h.service.HandleObject(c.UserContext(), SourceWebhook, ev)
	return h.respond(c, "object-finalized", out, err)
}

// HandleDocumentCreated accepts {recordId, after}.
func (h *Handler) HandleDocumentCreated(c *fiber.Ctx) error {
	var ev events.DocumentCreated
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, err)
	}
	out, err := h.service.HandleCreated(c.UserContext(), SourceWebhook, ev)
	return h.respond(c, "document-created", out, err)
}

// HandleDocumentUpdated accepts {recordId, before, after}.
func (h *Handler) HandleDocumentUpdated(c *fiber.Ctx) error {
	var ev events.DocumentUpdated
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, err)
	}
	out, err := h.service.HandleUpdated(c.UserContext(), SourceWebhook, ev)
	return h.respond(c, "document-updated", out, err)
}

// HandleShareIDAudit returns the share id audit and the repair it would apply.
// Nothing is written.
func (h *Handler) HandleShareIDAudit(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	plan, err := h.service.AuditShareIDs(c.UserContext())
	if err != nil {
		l.Error("Share id audit failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(plan)
}

// HandleShareIDAuditOne returns the share id audit of a single record.
func (h *Handler) HandleShareIDAuditOne(c *fiber.Ctx) error {
	id := c.Params("id")
	res, err := h.service.AuditShareID(c.UserContext(), id)
	if err != nil {
		logger.WithRayID(h.logger, c).Error("Share id audit failed", zap.String("story_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if res == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "story " + id + " not found"})
	}
	return c.JSON(res)
}

func (h *Handler) respond(c *fiber.Ctx, kind string, out Outcome, err error) error {
	if err != nil {
		if errors.Is(err, events.ErrInvalidEvent) {
			return badRequest(c, err)
		}
		logger.WithRayID(h.logger, c).Error("Event handling failed", zap.String("kind", kind), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"outcome": out})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}
