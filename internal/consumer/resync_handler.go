package consumer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/events"
)

// Resynchronizer is the part of domain.Service the handler needs.
type Resynchronizer interface {
	Resynchronize(ctx context.Context, userID string) (domain.SyncResult, error)
}

// ResyncHandler replays a user's score history whenever one of their runs changes.
type ResyncHandler struct {
	service Resynchronizer
}

// NewResyncHandler constructs a ResyncHandler.
func NewResyncHandler(service Resynchronizer) *ResyncHandler {
	return &ResyncHandler{service: service}
}

// Handle resynchronizes the event's user. Event types other than run changes
// are acknowledged without work.
func (h *ResyncHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.RunCreated, events.RunUpdated, events.RunDeleted:
	default:
		log.WithField("event_type", msg.EventType).Debug("ignoring event")
		return nil
	}

	result, err := h.service.Resynchronize(ctx, msg.UserID)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id":    msg.UserID,
		"run_id":     msg.Payload.RunID,
		"event_type": msg.EventType,
		"points":     result.Points,
	}).Info("scores resynchronized")
	return nil
}
