// Package loader provides the feature loading system.
//
// Each feature implements the Feature interface, which defines its name, whether it
// is enabled, and its route registration.
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager holds the registry: Register() adds a feature and LoadAll() loads
// the enabled ones in registration order.
package loader
