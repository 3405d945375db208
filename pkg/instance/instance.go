package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the detected instance identifier.
const EnvInstanceID = "TAPPING_INSTANCE_ID"

// GetID identifies this process in logs and lock values. It prefers the
// explicit override, then the Cloud Run revision, then the hostname.
func GetID(service string) string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if revision := strings.TrimSpace(os.Getenv("K_REVISION")); revision != "" {
		return revision
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if service == "" {
		service = "tapping"
	}
	return service + "-0"
}
