package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Alert lifecycle states. A rule moves active -> triggered at most once;
// only an owner-initiated reactivation returns it to active.
const (
	AlertStateActive    = "active"
	AlertStateTriggered = "triggered"
)

// ConditionKind identifies how an alert threshold is compared against a price.
type ConditionKind string

const (
	ConditionGreaterOrEqual ConditionKind = "price_above"
	ConditionLessOrEqual    ConditionKind = "price_below"
	ConditionEqual          ConditionKind = "price_equal"
)

// Valid reports whether the condition kind is one of the known variants.
func (k ConditionKind) Valid() bool {
	switch k {
	case ConditionGreaterOrEqual, ConditionLessOrEqual, ConditionEqual:
		return true
	}
	return false
}

// ConditionHolds evaluates a condition kind against a threshold and price.
// Kept outside the AlertRule type so it is independently testable.
func ConditionHolds(kind ConditionKind, threshold, price decimal.Decimal) bool {
	switch kind {
	case ConditionGreaterOrEqual:
		return price.GreaterThanOrEqual(threshold)
	case ConditionLessOrEqual:
		return price.LessThanOrEqual(threshold)
	case ConditionEqual:
		return price.Equal(threshold)
	}
	return false
}

// AlertRule is a user-defined price alert. State is mutated only by the
// alert engine (fire) or the owner (reactivate/edit).
type AlertRule struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OwnerID     uint            `gorm:"index;not null" json:"owner_id"`
	Symbol      string          `gorm:"index;not null" json:"symbol"`
	Condition   ConditionKind   `gorm:"index" json:"condition"`
	Threshold   decimal.Decimal `gorm:"type:decimal(15,4)" json:"threshold"`
	Message     string          `json:"message"`
	State       string          `gorm:"index;default:active" json:"state"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsActive reports whether the rule is eligible for evaluation.
func (a *AlertRule) IsActive() bool {
	return a.State == AlertStateActive
}

// MigrateAlertModels runs database migrations for alert models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&AlertRule{},
	)
}
