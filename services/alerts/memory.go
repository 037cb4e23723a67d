package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketdata_backend/models"
)

// MemoryRepository is an in-memory Repository used in tests and when the
// database is unavailable. The mutex makes MarkTriggered an atomic
// compare-and-set, matching the SQL implementation's semantics.
type MemoryRepository struct {
	mu     sync.Mutex
	rules  map[uint]*models.AlertRule
	nextID uint
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rules: make(map[uint]*models.AlertRule), nextID: 1}
}

func (r *MemoryRepository) Create(_ context.Context, rule *models.AlertRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule.ID = r.nextID
	r.nextID++
	rule.State = models.AlertStateActive
	rule.TriggeredAt = nil

	stored := *rule
	r.rules[rule.ID] = &stored
	return nil
}

func (r *MemoryRepository) ByID(_ context.Context, id uint) (*models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	out := *rule
	return &out, nil
}

func (r *MemoryRepository) ByOwner(_ context.Context, ownerID uint) ([]models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.AlertRule, 0)
	for _, rule := range r.rules {
		if rule.OwnerID == ownerID {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Active(_ context.Context) ([]models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.AlertRule, 0)
	for _, rule := range r.rules {
		if rule.State == models.AlertStateActive {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) MarkTriggered(_ context.Context, id uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return false, ErrRuleNotFound
	}
	if rule.State != models.AlertStateActive {
		return false, nil
	}
	rule.State = models.AlertStateTriggered
	fired := at
	rule.TriggeredAt = &fired
	return true, nil
}

func (r *MemoryRepository) Reactivate(_ context.Context, id, ownerID uint) (*models.AlertRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, ErrRuleNotFound
	}
	if rule.State != models.AlertStateTriggered {
		return nil, ErrNotTriggered
	}
	rule.State = models.AlertStateActive
	rule.TriggeredAt = nil
	out := *rule
	return &out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, ownerID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return ErrRuleNotFound
	}
	delete(r.rules, id)
	return nil
}
