// Package utils provides common utility functions for the story pipeline.
// It includes helper functions for loosely typed document values (numbers that may
// arrive as strings or floats, timestamps stored in several encodings) and other
// shared logic that doesn't fit into domain-specific packages.
package utils
