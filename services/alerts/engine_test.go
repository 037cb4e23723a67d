package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketdata_backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.AlertRule
	err   error
}

func (n *recordingNotifier) AlertTriggered(_ context.Context, rule models.AlertRule) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, rule)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newRule(t *testing.T, repo Repository, symbol string, kind models.ConditionKind, threshold string) *models.AlertRule {
	t.Helper()
	rule := &models.AlertRule{
		OwnerID:   1,
		Symbol:    symbol,
		Condition: kind,
		Threshold: dec(threshold),
		Message:   "test alert",
	}
	require.NoError(t, repo.Create(context.Background(), rule))
	return rule
}

func TestFiresWhenConditionHolds(t *testing.T) {
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, notifier)

	rule := newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")

	fired, err := engine.Evaluate(context.Background(), map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, rule.ID, fired[0].ID)
	assert.Equal(t, models.AlertStateTriggered, fired[0].State)
	require.NotNil(t, fired[0].TriggeredAt)
	assert.Equal(t, 1, notifier.count())
}

func TestDoesNotFireBelowThreshold(t *testing.T) {
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, notifier)

	newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")

	fired, err := engine.Evaluate(context.Background(), map[string]decimal.Decimal{"AAPL": dec("199.99")})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Equal(t, 0, notifier.count())
}

// A rule that fired at 205 must stay silent when the next cycle commits
// 210; the condition still holds but the rule is no longer active.
func TestFiresAtMostOnce(t *testing.T) {
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, notifier)

	newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")

	ctx := context.Background()
	fired, err := engine.Evaluate(ctx, map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	fired, err = engine.Evaluate(ctx, map[string]decimal.Decimal{"AAPL": dec("210")})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Equal(t, 1, notifier.count())
}

func TestReactivateAllowsRefire(t *testing.T) {
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, notifier)

	rule := newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")

	ctx := context.Background()
	_, err := engine.Evaluate(ctx, map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)

	reactivated, err := engine.Reactivate(ctx, rule.ID, rule.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStateActive, reactivated.State)
	assert.Nil(t, reactivated.TriggeredAt)

	fired, err := engine.Evaluate(ctx, map[string]decimal.Decimal{"AAPL": dec("206")})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
	assert.Equal(t, 2, notifier.count())
}

func TestReactivateRequiresTriggeredState(t *testing.T) {
	repo := NewMemoryRepository()
	engine := NewEngine(repo, &recordingNotifier{})

	rule := newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")

	_, err := engine.Reactivate(context.Background(), rule.ID, rule.OwnerID)
	assert.ErrorIs(t, err, ErrNotTriggered)
}

func TestReactivateRequiresOwner(t *testing.T) {
	repo := NewMemoryRepository()
	engine := NewEngine(repo, &recordingNotifier{})

	rule := newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")
	_, err := engine.Evaluate(context.Background(), map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)

	_, err = engine.Reactivate(context.Background(), rule.ID, rule.OwnerID+1)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

// A failed delivery is logged, not retried: the rule stays triggered and
// never fires again on later cycles.
func TestDeliveryFailureDoesNotRefire(t *testing.T) {
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	engine := NewEngine(repo, notifier)

	rule := newRule(t, repo, "AAPL", models.ConditionGreaterOrEqual, "200")

	ctx := context.Background()
	fired, err := engine.Evaluate(ctx, map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	fired, err = engine.Evaluate(ctx, map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)
	assert.Empty(t, fired)

	stored, err := repo.ByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStateTriggered, stored.State)
}

func TestSymbolsAbsentFromPriceMapAreSkipped(t *testing.T) {
	repo := NewMemoryRepository()
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, notifier)

	rule := newRule(t, repo, "MSFT", models.ConditionLessOrEqual, "300")

	fired, err := engine.Evaluate(context.Background(), map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)
	assert.Empty(t, fired)

	stored, err := repo.ByID(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStateActive, stored.State)
}

func TestEvaluateSetsTriggeredTimestamp(t *testing.T) {
	repo := NewMemoryRepository()
	engine := NewEngine(repo, &recordingNotifier{})

	firedAt := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	engine.SetNowFunc(func() time.Time { return firedAt })

	rule := newRule(t, repo, "AAPL", models.ConditionEqual, "205")

	fired, err := engine.Evaluate(context.Background(), map[string]decimal.Decimal{"AAPL": dec("205")})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	stored, err := repo.ByID(context.Background(), rule.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TriggeredAt)
	assert.Equal(t, firedAt, stored.TriggeredAt.UTC())
}
