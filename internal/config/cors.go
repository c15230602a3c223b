package config

import (
	"fmt"
	"strings"
)

// validateCORSOrigins rejects wildcard origins and enforces HTTPS except
// for localhost, adapted from the teacher's storage-layer CORS validator
// into a startup-time Config check.
func validateCORSOrigins(origins []string) error {
	for _, origin := range origins {
		if origin == "*" {
			return fmt.Errorf("config: wildcard CORS origin not allowed")
		}
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://localhost") {
			return fmt.Errorf("config: only https origins allowed (except http://localhost for development): %q", origin)
		}
		if origin == "" || strings.Contains(origin, " ") {
			return fmt.Errorf("config: invalid CORS origin format: %q", origin)
		}
	}
	return nil
}
