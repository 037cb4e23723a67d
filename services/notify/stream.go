package notify

import (
	"context"

	"marketdata_backend/models"
	"marketdata_backend/services/stream"
)

// StreamNotifier pushes triggered alerts to connected WebSocket clients.
type StreamNotifier struct {
	hub *stream.Hub
}

// NewStreamNotifier creates a notifier backed by the stream hub.
func NewStreamNotifier(hub *stream.Hub) *StreamNotifier {
	return &StreamNotifier{hub: hub}
}

// AlertTriggered broadcasts the alert over the hub.
func (n *StreamNotifier) AlertTriggered(_ context.Context, rule models.AlertRule) error {
	n.hub.BroadcastAlert(rule)
	return nil
}
