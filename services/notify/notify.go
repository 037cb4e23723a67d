package notify

import (
	"context"
	"log"

	"marketdata_backend/models"
)

// Notifier delivers a triggered alert to an output channel. Delivery is
// best effort: a failed delivery is logged by the caller and never causes
// the alert to fire again.
type Notifier interface {
	AlertTriggered(ctx context.Context, rule models.AlertRule) error
}

// LogNotifier writes triggered alerts to the application log.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// AlertTriggered logs the triggered alert.
func (n *LogNotifier) AlertTriggered(_ context.Context, rule models.AlertRule) error {
	log.Printf("ALERT TRIGGERED: rule=%d owner=%d symbol=%s condition=%s threshold=%s message=%q",
		rule.ID, rule.OwnerID, rule.Symbol, rule.Condition, rule.Threshold.String(), rule.Message)
	return nil
}

// Composite fans a triggered alert out to multiple notifiers. Each
// notifier gets its chance to deliver; failures are logged and the rest
// still run.
type Composite struct {
	notifiers []Notifier
}

// NewComposite creates a composite over the given notifiers.
func NewComposite(notifiers ...Notifier) *Composite {
	return &Composite{notifiers: notifiers}
}

// AlertTriggered dispatches to every child notifier.
func (c *Composite) AlertTriggered(ctx context.Context, rule models.AlertRule) error {
	for _, n := range c.notifiers {
		if err := n.AlertTriggered(ctx, rule); err != nil {
			log.Printf("Alert delivery failed for rule %d: %v", rule.ID, err)
		}
	}
	return nil
}
