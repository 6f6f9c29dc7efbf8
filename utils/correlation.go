package utils

import "github.com/google/uuid"

// CorrelationHeader is set on every portal request so a booking attempt can
// be traced across client logs and portal logs.
const CorrelationHeader = "X-Correlation-ID"

// NewCorrelationID returns a fresh short request token. Eight hex chars is
// plenty for correlating one patient session's requests.
func NewCorrelationID() string {
	return uuid.NewString()[:8]
}
