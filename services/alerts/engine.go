package alerts

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketdata_backend/models"
	"marketdata_backend/services/notify"

	"github.com/shopspring/decimal"
)

// Engine evaluates active alert rules against freshly committed prices.
// Evaluation runs only after prices are durably stored, so a rule never
// fires on a price that was not persisted. The repository's
// compare-and-set transition guarantees each rule fires at most once per
// active period; delivery failures are logged and never re-fire a rule.
type Engine struct {
	repo     Repository
	notifier notify.Notifier
	now      func() time.Time
}

// NewEngine creates an alert engine.
func NewEngine(repo Repository, notifier notify.Notifier) *Engine {
	return &Engine{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// SetNowFunc overrides the engine's clock. Used in tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
}

// Evaluate checks every active rule against the given prices and fires
// the ones whose condition holds. Rules for symbols absent from the map
// are skipped untouched. Returns the rules that fired in this pass.
func (e *Engine) Evaluate(ctx context.Context, prices map[string]decimal.Decimal) ([]models.AlertRule, error) {
	if len(prices) == 0 {
		return nil, nil
	}

	rules, err := e.repo.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}

	fired := make([]models.AlertRule, 0)
	for _, rule := range rules {
		price, ok := prices[rule.Symbol]
		if !ok {
			continue
		}
		if !models.ConditionHolds(rule.Condition, rule.Threshold, price) {
			continue
		}

		firedAt := e.now().UTC()
		won, err := e.repo.MarkTriggered(ctx, rule.ID, firedAt)
		if err != nil {
			log.Printf("Failed to mark alert rule %d triggered: %v", rule.ID, err)
			continue
		}
		if !won {
			// Another evaluation already fired this rule.
			continue
		}

		rule.State = models.AlertStateTriggered
		rule.TriggeredAt = &firedAt
		fired = append(fired, rule)
	}

	// Dispatch after all state transitions so a slow or failing delivery
	// never blocks the compare-and-set of the remaining rules.
	for _, rule := range fired {
		if err := e.notifier.AlertTriggered(ctx, rule); err != nil {
			log.Printf("Alert delivery failed for rule %d (%s): %v", rule.ID, rule.Symbol, err)
		}
	}

	if len(fired) > 0 {
		log.Printf("Alert evaluation fired %d of %d active rules", len(fired), len(rules))
	}
	return fired, nil
}

// Reactivate returns a triggered rule to the active state on behalf of
// its owner.
func (e *Engine) Reactivate(ctx context.Context, id, ownerID uint) (*models.AlertRule, error) {
	return e.repo.Reactivate(ctx, id, ownerID)
}
