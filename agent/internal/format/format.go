package format

import (
	"fmt"
	"html"
	"math"
	"strings"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/utils"
)

// MaxEmojis caps the emoji repetition line so one whale buy cannot produce
// an unbounded message.
const MaxEmojis = 50

const (
	suivisionAccountURL = "https://suivision.xyz/account/%s"
	suivisionTxnURL     = "https://suivision.xyz/txblock/%s"
	dexscreenerURL      = "https://dexscreener.com/sui/%s"
)

func BuyerLink(address string) string {
	return fmt.Sprintf(suivisionAccountURL, address)
}

func TxnLink(txHash string) string {
	return fmt.Sprintf(suivisionTxnURL, txHash)
}

func SwapLink(tokenAddress string) string {
	return fmt.Sprintf(dexscreenerURL, tokenAddress)
}

// EmojiLine renders floor(usd / step) repetitions of the configured emoji,
// clamped to [0, MaxEmojis]. A non-positive step yields an empty line.
func EmojiLine(emoji string, usdAmount, buyStep float64) string {
	if emoji == "" || buyStep <= 0 || usdAmount <= 0 {
		return ""
	}
	count := int(math.Floor(usdAmount / buyStep))
	if count <= 0 {
		return ""
	}
	if count > MaxEmojis {
		count = MaxEmojis
	}
	return strings.Repeat(emoji, count)
}

// Alert renders the per-destination buy message in Telegram HTML.
func Alert(buy models.Buy, dest models.DestinationConfig, trendingChannel string) string {
	symbol := html.EscapeString(dest.TokenSymbol)
	if symbol == "" {
		symbol = html.EscapeString(buy.Symbol)
	}
	name := html.EscapeString(dest.TokenName)

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s Buy!</b>\n", name, symbol)

	if line := EmojiLine(dest.Emoji, buy.UsdAmount, dest.BuyStep); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "💰 <b>Spent:</b> %s SUI ($%s)\n",
		utils.FormatAmount(buy.SuiAmount, 2), utils.FormatAmount(buy.UsdAmount, 2))
	if buy.TokenAmount > 0 {
		fmt.Fprintf(&b, "🪙 <b>Got:</b> %s %s\n", utils.FormatAmount(buy.TokenAmount, 2), symbol)
	}
	fmt.Fprintf(&b, "👤 <b>Buyer:</b> <a href=\"%s\">%s</a>\n",
		BuyerLink(buy.Buyer), utils.ShortAddress(buy.Buyer))
	if buy.UnitPrice > 0 {
		fmt.Fprintf(&b, "📈 <b>Price:</b> $%.8f\n", buy.UnitPrice)
	}
	if buy.MarketCap > 0 {
		fmt.Fprintf(&b, "🏦 <b>Market Cap:</b> $%s\n", utils.FormatAmount(buy.MarketCap, 2))
	}
	if buy.Liquidity > 0 {
		fmt.Fprintf(&b, "💧 <b>Liquidity:</b> $%s\n", utils.FormatAmount(buy.Liquidity, 2))
	}

	b.WriteString("\n")
	links := []string{fmt.Sprintf("<a href=\"%s\">TXN</a>", TxnLink(buy.TxHash))}
	chart := dest.ChartURL
	if chart == "" {
		chart = SwapLink(buy.TokenAddress)
	}
	links = append(links, fmt.Sprintf("<a href=\"%s\">Chart</a>", chart))
	if utils.ValidURL(dest.Website) {
		links = append(links, fmt.Sprintf("<a href=\"%s\">Website</a>", dest.Website))
	}
	if utils.ValidURL(dest.Telegram) {
		links = append(links, fmt.Sprintf("<a href=\"%s\">Telegram</a>", dest.Telegram))
	}
	if utils.ValidURL(dest.X) {
		links = append(links, fmt.Sprintf("<a href=\"%s\">X</a>", dest.X))
	}
	b.WriteString(strings.Join(links, " | "))

	if trendingChannel != "" {
		fmt.Fprintf(&b, "\n\n🔥 <a href=\"https://t.me/%s\">Trending</a>",
			strings.TrimPrefix(trendingChannel, "@"))
	}
	return b.String()
}

// LeaderboardRow is one ranked line of the trending summary.
type LeaderboardRow struct {
	Rank         int     `json:"rank"`
	TokenAddress string  `json:"tokenAddress"`
	Symbol       string  `json:"symbol"`
	VolumeUSD    float64 `json:"volumeUsd"`
	Score        float64 `json:"score"`
	Boosted      bool    `json:"boosted"`
	MarketCap    float64 `json:"marketCap"`
	Price        float64 `json:"price"`
}

var rankMedals = []string{"🥇", "🥈", "🥉"}

// Leaderboard renders the pinned trending summary in Telegram HTML.
func Leaderboard(rows []LeaderboardRow) string {
	var b strings.Builder
	b.WriteString("<b>🏆 Trending on Sui — last 30 minutes</b>\n\n")
	if len(rows) == 0 {
		b.WriteString("No qualifying buys this window.")
		return b.String()
	}
	for _, row := range rows {
		marker := fmt.Sprintf("%d.", row.Rank)
		if row.Rank >= 1 && row.Rank <= len(rankMedals) {
			marker = rankMedals[row.Rank-1]
		}
		symbol := html.EscapeString(row.Symbol)
		if symbol == "" {
			symbol = utils.ShortAddress(row.TokenAddress)
		}
		fmt.Fprintf(&b, "%s <a href=\"%s\">%s</a> — $%s",
			marker, SwapLink(row.TokenAddress), symbol, utils.FormatAmount(row.VolumeUSD, 2))
		if row.MarketCap > 0 {
			fmt.Fprintf(&b, " | MCap: $%s", utils.FormatAmount(row.MarketCap, 2))
		}
		if row.Boosted {
			b.WriteString(" 🚀")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BoostAnnouncement is broadcast to the trending channel when a boost
// activates.
func BoostAnnouncement(symbol, tokenAddress string, hours int) string {
	name := html.EscapeString(symbol)
	if name == "" {
		name = utils.ShortAddress(tokenAddress)
	}
	return fmt.Sprintf("🚀 <b>%s</b> is now boosted for the next %dh!\n<a href=\"%s\">Chart</a>",
		name, hours, SwapLink(tokenAddress))
}
