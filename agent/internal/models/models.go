package models

import "time"

// DestinationConfig is one chat destination tracking a token. Rows are written
// by the external setup flow; the pipeline only reads them.
type DestinationConfig struct {
	ID           uint      `gorm:"primaryKey"`
	ChatID       int64     `gorm:"uniqueIndex:idx_dest_token;not null"` // Telegram chat receiving alerts
	TokenAddress string    `gorm:"uniqueIndex:idx_dest_token;index;not null"`
	TokenName    string    `gorm:"not null"`
	TokenSymbol  string    `gorm:"not null"`
	Emoji        string    // emoji repeated on the buy line
	BuyStep      float64   `gorm:"default:1"` // USD per emoji
	MinBuyUSD    float64   `gorm:"default:1"` // alert threshold
	Website      string    //
	Telegram     string    //
	X            string    //
	ChartURL     string    //
	MediaFileID  string    // Telegram file ID for custom alert media
	Active       bool      `gorm:"default:true;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Boost is a paid, time-boxed promotion. At most one row per token may have
// Active=true at any instant; the store enforces this transactionally.
type Boost struct {
	ID           uint      `gorm:"primaryKey"`
	TokenAddress string    `gorm:"index;not null"`
	StartTime    time.Time `gorm:"not null"`
	EndTime      time.Time `gorm:"not null"`
	PaidAmount   float64   `gorm:"not null"` // SUI paid for the tier
	Owner        string    // wallet or user identity that bought the boost
	Active       bool      `gorm:"default:true;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// BuyEventRecord is the audit row persisted for every dispatched buy.
type BuyEventRecord struct {
	ID           uint      `gorm:"primaryKey"`
	TokenAddress string    `gorm:"index;not null"`
	Buyer        string    //
	AmountUSD    float64   `gorm:"not null"`
	AmountSUI    float64   `gorm:"not null"`
	AmountToken  float64   `gorm:"not null"`
	TxHash       string    `gorm:"uniqueIndex;not null"`
	Timestamp    time.Time `gorm:"autoCreateTime"`
}

// Buy is the normalized record of one on-chain purchase. Immutable once
// constructed by the normalizer.
type Buy struct {
	TokenAddress string    `json:"tokenAddress"`
	Symbol       string    `json:"symbol"`
	Buyer        string    `json:"buyer"`
	SuiAmount    float64   `json:"suiAmount"`
	UsdAmount    float64   `json:"usdAmount"`
	TokenAmount  float64   `json:"tokenAmount"`
	UnitPrice    float64   `json:"unitPrice"`
	MarketCap    float64   `json:"marketCap"`
	Liquidity    float64   `json:"liquidity"`
	SuiUsdRate   float64   `json:"suiUsdRate"`
	TxHash       string    `json:"txHash"`
	Timestamp    time.Time `json:"timestamp"`
}

// TokenMarketInfo is one market cache line, owned by the market cache and
// refreshed in place on TTL expiry.
type TokenMarketInfo struct {
	TokenAddress  string    `json:"tokenAddress"`
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Decimals      int       `json:"decimals"`
	Price         float64   `json:"price"`
	MarketCap     float64   `json:"marketCap"`
	Liquidity     float64   `json:"liquidity"`
	LastRefreshed time.Time `json:"lastRefreshed"`
}
