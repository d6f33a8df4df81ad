package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sui-buybot/agent/internal/models"
)

// BuyStore keeps an audit trail of processed buys. Inserts are idempotent on
// the transaction hash so redelivered events never create duplicate rows.
type BuyStore struct {
	db *gorm.DB
}

func NewBuyStore(db *gorm.DB) *BuyStore {
	return &BuyStore{db: db}
}

func (s *BuyStore) Record(ctx context.Context, buy models.Buy) error {
	record := models.BuyEventRecord{
		TokenAddress: buy.TokenAddress,
		Buyer:        buy.Buyer,
		AmountUSD:    buy.UsdAmount,
		AmountSUI:    buy.SuiAmount,
		AmountToken:  buy.TokenAmount,
		TxHash:       buy.TxHash,
		Timestamp:    buy.Timestamp,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_hash"}}, DoNothing: true}).
		Create(&record).Error
}
