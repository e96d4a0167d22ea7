package stories

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the stories feature.
func NewFeature(cfg Config, deps Deps) *Feature {
	svc := NewService(cfg, deps)
	return &Feature{service: svc, handler: NewHandler(svc, svc.logger)}
}

// Service returns the feature's service, shared with the listeners and the scheduler.
func (f *Feature) Service() *Service {
	return f.service
}

// Listener builds an in-process listener over the feature's service.
func (f *Feature) Listener(logger *zap.Logger) *Listener {
	return NewListener(f.service, f.service.storage, f.service.bucket, logger)
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "stories"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
