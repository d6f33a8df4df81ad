package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sui-buybot/agent/internal/models"
)

// SubscriptionStore looks up which chats want alerts for a given token.
type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Resolve returns the active destination configs registered for the token.
// Deactivated rows are kept for history but never receive alerts.
func (s *SubscriptionStore) Resolve(ctx context.Context, tokenAddress string) ([]models.DestinationConfig, error) {
	var destinations []models.DestinationConfig
	err := s.db.WithContext(ctx).
		Where("token_address = ? AND active = ?", tokenAddress, true).
		Find(&destinations).Error
	if err != nil {
		return nil, err
	}
	return destinations, nil
}

// Upsert creates or updates the destination config for a chat/token pair.
func (s *SubscriptionStore) Upsert(ctx context.Context, dest *models.DestinationConfig) error {
	var existing models.DestinationConfig
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND token_address = ?", dest.ChatID, dest.TokenAddress).
		First(&existing).Error
	if err == nil {
		dest.ID = existing.ID
		return s.db.WithContext(ctx).Save(dest).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(dest).Error
	}
	return err
}
