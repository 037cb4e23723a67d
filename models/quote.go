package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote represents the current market snapshot for one symbol. Change and
// ChangePercent are derived from Close and PreviousClose at construction
// time and are never stored independently of their inputs.
type Quote struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Symbol        string          `gorm:"index;not null" json:"symbol"`
	Tier          string          `gorm:"index" json:"tier"`
	Price         decimal.Decimal `gorm:"type:decimal(15,4)" json:"price"`
	Open          decimal.Decimal `gorm:"type:decimal(15,4)" json:"open"`
	High          decimal.Decimal `gorm:"type:decimal(15,4)" json:"high"`
	Low           decimal.Decimal `gorm:"type:decimal(15,4)" json:"low"`
	Close         decimal.Decimal `gorm:"type:decimal(15,4)" json:"close"`
	Volume        int64           `json:"volume"`
	PreviousClose decimal.Decimal `gorm:"type:decimal(15,4)" json:"previous_close"`
	Change        decimal.Decimal `gorm:"type:decimal(15,4)" json:"change"`
	ChangePercent decimal.Decimal `gorm:"type:decimal(10,4)" json:"change_percent"`
	Timestamp     time.Time       `gorm:"index" json:"timestamp"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewQuote builds a Quote and derives the absolute and percentage change
// from close and previous close.
func NewQuote(symbol, tier string, open, high, low, closePrice decimal.Decimal, volume int64, previousClose decimal.Decimal, timestamp time.Time) Quote {
	change := closePrice.Sub(previousClose)
	changePercent := decimal.Zero
	if !previousClose.IsZero() {
		changePercent = change.DivRound(previousClose, 6).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return Quote{
		Symbol:        symbol,
		Tier:          tier,
		Price:         closePrice,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePrice,
		Volume:        volume,
		PreviousClose: previousClose,
		Change:        change,
		ChangePercent: changePercent,
		Timestamp:     timestamp,
	}
}

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Quote{},
	)
}
