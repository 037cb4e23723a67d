package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewQuoteDerivesChange(t *testing.T) {
	now := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	q := NewQuote("AAPL", "premium",
		dec("100"), dec("112"), dec("99"), dec("110"),
		1000, dec("100"), now)

	assert.True(t, q.Change.Equal(dec("10")), "change = %s", q.Change)
	assert.True(t, q.ChangePercent.Equal(dec("10")), "change percent = %s", q.ChangePercent)
	assert.True(t, q.Price.Equal(q.Close))
	assert.Equal(t, now, q.Timestamp)
}

func TestNewQuoteNegativeChange(t *testing.T) {
	q := NewQuote("KO", "standard",
		dec("60"), dec("61"), dec("57"), dec("58.50"),
		500, dec("60"), time.Now())

	assert.True(t, q.Change.Equal(dec("-1.5")))
	assert.True(t, q.ChangePercent.Equal(dec("-2.5")))
}

func TestNewQuoteZeroPreviousClose(t *testing.T) {
	q := NewQuote("IPO", "extended",
		dec("10"), dec("10"), dec("10"), dec("10"),
		0, decimal.Zero, time.Now())

	assert.True(t, q.Change.Equal(dec("10")))
	assert.True(t, q.ChangePercent.IsZero(), "percent change is undefined without a previous close")
}

func TestConditionHolds(t *testing.T) {
	cases := []struct {
		kind      ConditionKind
		threshold string
		price     string
		want      bool
	}{
		{ConditionGreaterOrEqual, "200", "205", true},
		{ConditionGreaterOrEqual, "200", "200", true},
		{ConditionGreaterOrEqual, "200", "199.99", false},
		{ConditionLessOrEqual, "50", "49", true},
		{ConditionLessOrEqual, "50", "50", true},
		{ConditionLessOrEqual, "50", "50.01", false},
		{ConditionEqual, "75.25", "75.25", true},
		{ConditionEqual, "75.25", "75.2500", true},
		{ConditionEqual, "75.25", "75.26", false},
	}

	for _, tc := range cases {
		got := ConditionHolds(tc.kind, dec(tc.threshold), dec(tc.price))
		assert.Equalf(t, tc.want, got, "%s threshold=%s price=%s", tc.kind, tc.threshold, tc.price)
	}
}

func TestConditionKindValid(t *testing.T) {
	assert.True(t, ConditionGreaterOrEqual.Valid())
	assert.True(t, ConditionLessOrEqual.Valid())
	assert.True(t, ConditionEqual.Valid())
	assert.False(t, ConditionKind("percent_change").Valid())
}

func TestAlertRuleIsActive(t *testing.T) {
	rule := AlertRule{State: AlertStateActive}
	assert.True(t, rule.IsActive())

	rule.State = AlertStateTriggered
	assert.False(t, rule.IsActive())
}
