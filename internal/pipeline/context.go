package pipeline

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
)

// RequestContext is owned exclusively by the goroutine handling one
// request; it is discarded once the response is written. Logger is
// pre-populated with the request id (and client IP) so every log line
// emitted while handling this request carries them without repeating the
// key-value pair at each call site.
type RequestContext struct {
	RequestID string
	ClientIP  string
	StartedAt time.Time
	UserID    string
	Logger    *slog.Logger
}

func newRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "00000000-0000-0000-0000-000000000000"
	}
	return id.String()
}

// newRequestContext stamps a fresh request id, resolves the client IP, and
// binds both into a child logger for the lifetime of the request.
func (h *Handler) newRequestContext(r *http.Request) *RequestContext {
	reqID := newRequestID()
	ip := ClientIP(r)
	return &RequestContext{
		RequestID: reqID,
		ClientIP:  ip,
		StartedAt: time.Now(),
		Logger:    h.logger().With("request_id", reqID, "client_ip", ip),
	}
}
