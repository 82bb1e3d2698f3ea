package instance

import (
	"os"
	"strings"
)

// EnvInstanceID overrides the detected instance identifier.
const EnvInstanceID = "SHOPDESK_INSTANCE_ID"

const defaultID = "local"

// GetID returns the identifier of the running process for log correlation.
// Lookup order: SHOPDESK_INSTANCE_ID, DYNO, HOSTNAME.
func GetID() string {
	for _, key := range []string{EnvInstanceID, "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return defaultID
}
