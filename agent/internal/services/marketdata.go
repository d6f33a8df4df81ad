package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/env"
	"sui-buybot/shared/logger"
)

// MarketDataProvider is the upstream source of token pricing data.
type MarketDataProvider interface {
	Fetch(ctx context.Context, tokenAddress string) (models.TokenMarketInfo, error)
	FetchSuiUsdRate(ctx context.Context) (float64, error)
}

// SuivisionClient fetches token market data from the Suivision API.
type SuivisionClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	log        *logger.Logger
}

func NewSuivisionClient(log *logger.Logger) *SuivisionClient {
	return &SuivisionClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    env.SuivisionBaseURL,
		apiKey:     env.SuivisionAPIKey,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		log:        log,
	}
}

type suivisionCoinResponse struct {
	Code int `json:"code"`
	Data struct {
		Symbol    string  `json:"symbol"`
		Name      string  `json:"name"`
		Decimals  int     `json:"decimals"`
		Price     float64 `json:"price"`
		MarketCap float64 `json:"marketCap"`
		Liquidity float64 `json:"liquidity"`
	} `json:"data"`
}

// Fetch returns current market data for the token. An unknown token maps to
// ErrDataUnavailable so callers can degrade instead of retrying.
func (c *SuivisionClient) Fetch(ctx context.Context, tokenAddress string) (models.TokenMarketInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.TokenMarketInfo{}, err
	}

	url := fmt.Sprintf("%s/v1/coins/%s", c.baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.TokenMarketInfo{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TokenMarketInfo{}, fmt.Errorf("suivision request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.TokenMarketInfo{}, ErrDataUnavailable
	case resp.StatusCode != http.StatusOK:
		return models.TokenMarketInfo{}, fmt.Errorf("suivision returned status %d for %s", resp.StatusCode, tokenAddress)
	}

	var body suivisionCoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.TokenMarketInfo{}, fmt.Errorf("decoding suivision response: %w", err)
	}
	if body.Data.Symbol == "" && body.Data.Price == 0 {
		return models.TokenMarketInfo{}, ErrDataUnavailable
	}

	return models.TokenMarketInfo{
		TokenAddress:  tokenAddress,
		Symbol:        body.Data.Symbol,
		Name:          body.Data.Name,
		Decimals:      body.Data.Decimals,
		Price:         body.Data.Price,
		MarketCap:     body.Data.MarketCap,
		Liquidity:     body.Data.Liquidity,
		LastRefreshed: time.Now().UTC(),
	}, nil
}
