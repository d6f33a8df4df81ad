package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sui-buybot/agent/internal/models"
	"sui-buybot/agent/internal/services"
	"sui-buybot/shared/config"
	"sui-buybot/shared/env"
	"sui-buybot/shared/logger"
)

type nopTransport struct{}

func (nopTransport) Deliver(ctx context.Context, chatID int64, mediaFileID, message string) error {
	return nil
}
func (nopTransport) Broadcast(ctx context.Context, channel, message string) error  { return nil }
func (nopTransport) PinSummary(ctx context.Context, channel, message string) error { return nil }
func (nopTransport) UnpinPrevious(ctx context.Context, channel string) error       { return nil }

type nopVerifier struct{}

func (nopVerifier) Verify(ctx context.Context, wallet string, expectedAmount float64, since time.Time) (bool, error) {
	return false, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.BoostRegistry, *services.Leaderboard) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.Config{Level: "error", Environment: "test"})
	require.NoError(t, err)

	cfg, err := config.LoadConfig("does-not-exist.yaml")
	require.NoError(t, err)
	config.SetGlobalConfig(cfg)

	boosts := services.NewBoostRegistry(nil, cfg.Boost.ScoreMultiplier, log)
	leaderboard := services.NewLeaderboard(boosts, nopTransport{}, "@trending", 30*time.Minute, 10, log)

	router := gin.New()
	RegisterRoutes(router)
	RegisterAPIRoutes(router, &API{
		Leaderboard: leaderboard,
		Boosts:      boosts,
		Verifier:    nopVerifier{},
		Transport:   nopTransport{},
		Log:         log,
		BaseCtx:     context.Background(),
	})
	return router, boosts, leaderboard
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestLeaderboardEndpoint(t *testing.T) {
	router, _, leaderboard := newTestRouter(t)
	leaderboard.Record(models.Buy{TokenAddress: "0xtoken", Symbol: "MOON", UsdAmount: 100, Timestamp: time.Now()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []struct {
			TokenAddress string  `json:"tokenAddress"`
			VolumeUSD    float64 `json:"volumeUsd"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "0xtoken", body.Entries[0].TokenAddress)
	assert.InDelta(t, 100.0, body.Entries[0].VolumeUSD, 1e-9)
}

func TestBoostStatusEndpoint(t *testing.T) {
	router, boosts, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/boosts/0xtoken", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"boosted":false`)

	_, err := boosts.Activate(context.Background(), "0xtoken", 4*time.Hour, 15, "0xowner")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/boosts/0xtoken", nil))
	assert.Contains(t, w.Body.String(), `"boosted":true`)
	assert.Contains(t, w.Body.String(), `"paidSui":15`)
}

func TestRequestBoostValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)
	env.BoostWalletAddress = "0xboostwallet"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/boosts",
		strings.NewReader(`{"owner":"0xowner","hours":4}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "tokenAddress is required")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/boosts",
		strings.NewReader(`{"tokenAddress":"0xtoken","owner":"0xowner","hours":5}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "5h is not a purchasable tier")
}

func TestRequestBoostAccepted(t *testing.T) {
	router, _, _ := newTestRouter(t)
	env.BoostWalletAddress = "0xboostwallet"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/boosts",
		strings.NewReader(`{"tokenAddress":"0xtoken","tokenSymbol":"MOON","owner":"0xowner","hours":24}`)))

	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0xboostwallet", body["payTo"])
	assert.Equal(t, float64(45), body["priceSui"])
	assert.NotEmpty(t, body["requestId"])
}
