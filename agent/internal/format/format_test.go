package format

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sui-buybot/agent/internal/models"
)

func TestEmojiLine(t *testing.T) {
	assert.Equal(t, strings.Repeat("🚀", 4), EmojiLine("🚀", 23, 5), "floor(23/5) = 4")
	assert.Equal(t, "", EmojiLine("🚀", 23, 0), "zero step must not divide")
	assert.Equal(t, "", EmojiLine("🚀", 23, -1))
	assert.Equal(t, "", EmojiLine("", 23, 5))
	assert.Equal(t, "", EmojiLine("🚀", 3, 5), "below one step renders nothing")
	assert.Equal(t, strings.Repeat("🚀", MaxEmojis), EmojiLine("🚀", 1_000_000, 1), "clamped at the cap")
}

func TestAlertRendering(t *testing.T) {
	buy := models.Buy{
		TokenAddress: "0xtoken",
		Buyer:        "0x1234567890abcdef1234567890abcdef12345678",
		SuiAmount:    100,
		UsdAmount:    120,
		TokenAmount:  50000,
		UnitPrice:    0.0024,
		MarketCap:    50000,
		TxHash:       "8kP3x",
		Timestamp:    time.Now(),
	}
	dest := models.DestinationConfig{
		TokenName:   "Moon Bag",
		TokenSymbol: "MOON",
		Emoji:       "🌕",
		BuyStep:     10,
		Website:     "https://moonbag.example",
	}

	msg := Alert(buy, dest, "@moonbagstrending")

	assert.Contains(t, msg, "Moon Bag MOON Buy!")
	assert.Contains(t, msg, strings.Repeat("🌕", 12), "floor(120/10) emojis")
	assert.Contains(t, msg, "100.00 SUI ($120.00)")
	assert.Contains(t, msg, "0x1234...5678")
	assert.Contains(t, msg, TxnLink("8kP3x"))
	assert.Contains(t, msg, SwapLink("0xtoken"), "chart link defaults to dexscreener")
	assert.Contains(t, msg, "https://moonbag.example")
	assert.Contains(t, msg, "t.me/moonbagstrending")
	assert.NotContains(t, msg, "Liquidity", "zero-valued fields are omitted")
}

func TestAlertEscapesHTML(t *testing.T) {
	buy := models.Buy{TokenAddress: "0xtoken", TxHash: "tx"}
	dest := models.DestinationConfig{TokenName: "<b>evil</b>", TokenSymbol: "E&E"}

	msg := Alert(buy, dest, "")
	assert.NotContains(t, msg, "<b>evil</b>")
	assert.Contains(t, msg, "&lt;b&gt;evil&lt;/b&gt;")
	assert.Contains(t, msg, "E&amp;E")
}

func TestLeaderboardRendering(t *testing.T) {
	rows := []LeaderboardRow{
		{Rank: 1, TokenAddress: "0xaaa", Symbol: "AAA", VolumeUSD: 9000, MarketCap: 50000, Boosted: true},
		{Rank: 2, TokenAddress: "0xbbb", Symbol: "BBB", VolumeUSD: 4000},
		{Rank: 4, TokenAddress: "0xddd", Symbol: "DDD", VolumeUSD: 100},
	}

	msg := Leaderboard(rows)
	assert.Contains(t, msg, "🥇")
	assert.Contains(t, msg, "🥈")
	assert.Contains(t, msg, "4.", "ranks past the medals fall back to numbers")
	assert.Contains(t, msg, "🚀", "boosted rows carry the marker")
	assert.Contains(t, msg, "MCap: $50.00K")
	assert.Equal(t, 1, strings.Count(msg, "MCap:"), "rows without market data skip the figure")

	empty := Leaderboard(nil)
	assert.Contains(t, empty, "No qualifying buys")
}
