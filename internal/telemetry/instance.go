package telemetry

import (
	"os"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

const appID = "gaul-gnss"

var (
	protectedID = machineid.ProtectedID
	hostname    = os.Hostname
)

// InstanceID names this receiver in telemetry. An explicit override wins;
// otherwise the app-scoped machine id is used, then the hostname.
func InstanceID(override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	if id, err := protectedID(appID); err == nil && id != "" {
		// The full HMAC is 64 hex chars; 12 is plenty to tell boards apart.
		if len(id) > 12 {
			id = id[:12]
		}
		return id
	}
	if h, err := hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
