package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketdata_backend/models"

	"gorm.io/gorm"
)

var (
	// ErrRuleNotFound is returned when no rule matches the id (and owner).
	ErrRuleNotFound = errors.New("alert rule not found")
	// ErrNotTriggered is returned when reactivating a rule that has not fired.
	ErrNotTriggered = errors.New("alert rule is not in triggered state")
)

// Repository persists alert rules. MarkTriggered is the at-most-once
// gate: it flips active to triggered only if the rule is still active and
// reports whether this caller won the transition.
type Repository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	ByID(ctx context.Context, id uint) (*models.AlertRule, error)
	ByOwner(ctx context.Context, ownerID uint) ([]models.AlertRule, error)
	Active(ctx context.Context) ([]models.AlertRule, error)
	MarkTriggered(ctx context.Context, id uint, at time.Time) (bool, error)
	Reactivate(ctx context.Context, id, ownerID uint) (*models.AlertRule, error)
	Delete(ctx context.Context, id, ownerID uint) error
}

// GormRepository implements Repository on Postgres via gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a gorm-backed alert repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Create stores a new rule in the active state.
func (r *GormRepository) Create(ctx context.Context, rule *models.AlertRule) error {
	rule.State = models.AlertStateActive
	rule.TriggeredAt = nil
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("create alert rule: %w", err)
	}
	return nil
}

// ByID loads one rule.
func (r *GormRepository) ByID(ctx context.Context, id uint) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := r.db.WithContext(ctx).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load alert rule %d: %w", id, err)
	}
	return &rule, nil
}

// ByOwner lists all rules belonging to an owner.
func (r *GormRepository) ByOwner(ctx context.Context, ownerID uint) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list alert rules for owner %d: %w", ownerID, err)
	}
	return rules, nil
}

// Active lists every rule currently in the active state.
func (r *GormRepository) Active(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := r.db.WithContext(ctx).
		Where("state = ?", models.AlertStateActive).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list active alert rules: %w", err)
	}
	return rules, nil
}

// MarkTriggered flips the rule from active to triggered. The WHERE clause
// on the current state makes the transition a compare-and-set: a rule that
// already fired is left untouched and the call reports false.
func (r *GormRepository) MarkTriggered(ctx context.Context, id uint, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.AlertRule{}).
		Where("id = ? AND state = ?", id, models.AlertStateActive).
		Updates(map[string]interface{}{
			"state":        models.AlertStateTriggered,
			"triggered_at": at,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("mark alert rule %d triggered: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// Reactivate returns a triggered rule to the active state so it can fire
// again. Only the owner may reactivate, and only from the triggered state.
func (r *GormRepository) Reactivate(ctx context.Context, id, ownerID uint) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load alert rule %d: %w", id, err)
	}
	if rule.State != models.AlertStateTriggered {
		return nil, ErrNotTriggered
	}

	err = r.db.WithContext(ctx).
		Model(&rule).
		Updates(map[string]interface{}{
			"state":        models.AlertStateActive,
			"triggered_at": nil,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("reactivate alert rule %d: %w", id, err)
	}

	rule.State = models.AlertStateActive
	rule.TriggeredAt = nil
	return &rule, nil
}

// Delete removes a rule owned by the given owner.
func (r *GormRepository) Delete(ctx context.Context, id, ownerID uint) error {
	tx := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.AlertRule{})
	if tx.Error != nil {
		return fmt.Errorf("delete alert rule %d: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}
