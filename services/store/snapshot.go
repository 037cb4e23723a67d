package store

import (
	"context"
	"errors"
	"fmt"

	"marketdata_backend/models"
	"marketdata_backend/services/symbols"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no snapshot exists for a symbol.
var ErrNotFound = errors.New("quote not found")

// SnapshotStore is the durable latest-quote store. ReplaceTier supersedes
// prior rows for exactly the given symbols; symbols that failed their
// fetch keep their previous stored quote.
type SnapshotStore interface {
	ReplaceTier(ctx context.Context, tier symbols.Tier, quotes []models.Quote) error
	Latest(ctx context.Context, symbol string) (*models.Quote, error)
}

// GormSnapshotStore implements SnapshotStore on Postgres via gorm.
type GormSnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore creates a gorm-backed snapshot store.
func NewSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{db: db}
}

// ReplaceTier replaces the snapshot rows for the given quotes' symbols in
// one transaction, so a crash mid-write never leaves the tier half
// updated.
func (s *GormSnapshotStore) ReplaceTier(ctx context.Context, tier symbols.Tier, quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	symbolList := make([]string, 0, len(quotes))
	for i := range quotes {
		quotes[i].ID = 0
		quotes[i].Tier = tier.String()
		symbolList = append(symbolList, quotes[i].Symbol)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("symbol IN ?", symbolList).Delete(&models.Quote{}).Error; err != nil {
			return err
		}
		return tx.Create(&quotes).Error
	})
	if err != nil {
		return fmt.Errorf("replace tier %s snapshot: %w", tier, err)
	}
	return nil
}

// Latest returns the stored snapshot for a symbol.
func (s *GormSnapshotStore) Latest(ctx context.Context, symbol string) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", symbol, err)
	}
	return &quote, nil
}
