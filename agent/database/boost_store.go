package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sui-buybot/agent/internal/models"
)

// BoostStore persists boost activations so the registry survives restarts.
type BoostStore struct {
	db *gorm.DB
}

func NewBoostStore(db *gorm.DB) *BoostStore {
	return &BoostStore{db: db}
}

// Activate records a new boost for the token, replacing any boost still
// marked active. The deactivate and insert happen in one transaction so a
// token can never hold two active rows.
func (s *BoostStore) Activate(ctx context.Context, boost *models.Boost) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Boost{}).
			Where("token_address = ? AND active = ?", boost.TokenAddress, true).
			Update("active", false).Error; err != nil {
			return err
		}
		boost.Active = true
		return tx.Create(boost).Error
	})
}

// Deactivate marks every active boost row for the token as expired.
func (s *BoostStore) Deactivate(ctx context.Context, tokenAddress string) error {
	return s.db.WithContext(ctx).Model(&models.Boost{}).
		Where("token_address = ? AND active = ?", tokenAddress, true).
		Update("active", false).Error
}

// ActiveBoosts returns boosts still marked active whose window has not yet
// ended, for warming the in-memory registry at startup.
func (s *BoostStore) ActiveBoosts(ctx context.Context, now time.Time) ([]models.Boost, error) {
	var boosts []models.Boost
	err := s.db.WithContext(ctx).
		Where("active = ? AND end_time > ?", true, now).
		Find(&boosts).Error
	if err != nil {
		return nil, err
	}
	return boosts, nil
}
