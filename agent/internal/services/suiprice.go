package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"

	"sui-buybot/agent/internal/events"
)

// FetchSuiUsdRate returns the current SUI/USD rate. Suivision is the primary
// source; when it has no quote the Binance spot ticker is used as a fallback
// so a Suivision outage does not zero out every alert's USD fields.
func (c *SuivisionClient) FetchSuiUsdRate(ctx context.Context) (float64, error) {
	info, err := c.Fetch(ctx, events.SuiCoinType)
	if err == nil && info.Price > 0 {
		return info.Price, nil
	}
	if err != nil {
		c.log.Warn("Suivision SUI price lookup failed, falling back to Binance", "error", err)
	}

	rate, berr := binanceSuiUsdRate(ctx)
	if berr != nil {
		if err != nil {
			return 0, fmt.Errorf("sui/usd rate unavailable: suivision: %v, binance: %w", err, berr)
		}
		return 0, fmt.Errorf("sui/usd rate unavailable: %w", berr)
	}
	return rate, nil
}

func binanceSuiUsdRate(ctx context.Context) (float64, error) {
	client := binance.NewClient("", "")
	prices, err := client.NewListPricesService().Symbol("SUIUSDT").Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance ticker: %w", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance returned no SUIUSDT price")
	}
	rate, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing binance price %q: %w", prices[0].Price, err)
	}
	return rate, nil
}
