// Package logger builds the zap logger shared by every component.
//
// Level "debug" selects zap's development preset, anything else the production
// preset. Format "console" switches to colored console output; the default is JSON
// with "level", "time" and "message" keys.
//
// # Request correlation
//
// The rayid middleware stores a request id in the fiber context. WithRayID attaches
// it to a logger so that all lines of one webhook delivery can be correlated.
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	l := logger.WithRayID(log, c)
//	l.Error("Event handling failed", zap.Error(err))
package logger
