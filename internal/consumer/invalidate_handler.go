package consumer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/events"
)

// SeriesInvalidator is the part of domain.Service the handler needs.
type SeriesInvalidator interface {
	InvalidateSeries(userID string)
}

// InvalidateHandler drops cached series when any process announces a resync.
type InvalidateHandler struct {
	service SeriesInvalidator
}

// NewInvalidateHandler constructs an InvalidateHandler.
func NewInvalidateHandler(service SeriesInvalidator) *InvalidateHandler {
	return &InvalidateHandler{service: service}
}

// Handle invalidates the user named by a score resynchronized event.
func (h *InvalidateHandler) Handle(_ context.Context, msg Message) error {
	if msg.EventType != events.ScoreResynchronizedType {
		log.WithField("event_type", msg.EventType).Debug("ignoring event")
		return nil
	}
	h.service.InvalidateSeries(msg.UserID)
	return nil
}
