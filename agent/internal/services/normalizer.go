package services

import (
	"context"
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"sui-buybot/agent/internal/events"
	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
)

// Normalizer turns raw chain events into canonical Buy records. It
// deduplicates by transaction hash and attaches USD-denominated fields from
// the market cache. Market data failures degrade the affected fields to
// zero; only duplicates and non-buys are dropped.
type Normalizer struct {
	cache *MarketCache
	seen  *lru.Cache[string, struct{}]
	log   *logger.Logger
}

func NewNormalizer(cache *MarketCache, dedupCapacity int, log *logger.Logger) (*Normalizer, error) {
	if dedupCapacity <= 0 {
		dedupCapacity = 4096
	}
	seen, err := lru.New[string, struct{}](dedupCapacity)
	if err != nil {
		return nil, err
	}
	return &Normalizer{cache: cache, seen: seen, log: log}, nil
}

// Normalize processes one raw event. The boolean is false when the event is
// discarded (not a buy, or a duplicate delivery from the stream).
func (n *Normalizer) Normalize(ctx context.Context, raw *events.RawEvent) (models.Buy, bool) {
	if raw.Classify() != events.KindBuy {
		return models.Buy{}, false
	}
	// Stream redelivery after a reconnect is expected; a repeated hash is
	// not an error.
	if dup, _ := n.seen.ContainsOrAdd(raw.TxDigest, struct{}{}); dup {
		n.log.Debug("Skipping duplicate event", "txHash", raw.TxDigest)
		return models.Buy{}, false
	}

	buyer, suiAmount, tokenAmount, token := raw.BuyFields()

	rate, err := n.cache.SuiUsdRate(ctx)
	if err != nil {
		n.log.Warn("SUI/USD rate unavailable, emitting buy with zero USD fields",
			"token", token, "txHash", raw.TxDigest, "error", err)
		rate = 0
	}

	buy := models.Buy{
		TokenAddress: token,
		Buyer:        buyer,
		SuiAmount:    suiAmount,
		UsdAmount:    suiAmount * rate,
		TokenAmount:  tokenAmount,
		SuiUsdRate:   rate,
		TxHash:       raw.TxDigest,
		Timestamp:    raw.Timestamp(),
	}

	info, err := n.cache.Get(ctx, token)
	switch {
	case err == nil:
		buy.Symbol = info.Symbol
		buy.UnitPrice = info.Price
		buy.MarketCap = info.MarketCap
		buy.Liquidity = info.Liquidity
		// The decoder assumes SUI's 9 decimals for every amount; rescale
		// the token leg once the coin's real precision is known.
		if info.Decimals > 0 && info.Decimals != 9 {
			buy.TokenAmount *= math.Pow10(9 - info.Decimals)
		}
	case errors.Is(err, ErrDataUnavailable):
		n.log.Debug("No market data for token, emitting degraded buy", "token", token)
	default:
		n.log.Warn("Market data lookup failed, emitting degraded buy",
			"token", token, "txHash", raw.TxDigest, "error", err)
	}

	return buy, true
}

// Run consumes raw events until the input channel closes or the context is
// cancelled, preserving arrival order on the output channel.
func (n *Normalizer) Run(ctx context.Context, in <-chan *events.RawEvent, out chan<- models.Buy) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			buy, emit := n.Normalize(ctx, raw)
			if !emit {
				continue
			}
			select {
			case out <- buy:
			case <-ctx.Done():
				return
			}
		}
	}
}
