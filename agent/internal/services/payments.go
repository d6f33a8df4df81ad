package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sui-buybot/agent/internal/events"
	"sui-buybot/agent/internal/format"
	"sui-buybot/shared/logger"
)

// PaymentVerifier checks whether the boost wallet received the expected SUI
// amount since the given instant.
type PaymentVerifier interface {
	Verify(ctx context.Context, wallet string, expectedAmount float64, since time.Time) (bool, error)
}

// SuiPaymentVerifier verifies boost payments against a Sui fullnode over
// JSON-RPC by scanning recent transactions addressed to the boost wallet.
type SuiPaymentVerifier struct {
	rpcURL     string
	httpClient *http.Client
	log        *logger.Logger
}

func NewSuiPaymentVerifier(rpcURL string, log *logger.Logger) *SuiPaymentVerifier {
	return &SuiPaymentVerifier{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type queryTxResponse struct {
	Result struct {
		Data []struct {
			Digest         string `json:"digest"`
			TimestampMs    string `json:"timestampMs"`
			BalanceChanges []struct {
				Owner struct {
					AddressOwner string `json:"AddressOwner"`
				} `json:"owner"`
				CoinType string `json:"coinType"`
				Amount   string `json:"amount"`
			} `json:"balanceChanges"`
		} `json:"data"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Verify scans the wallet's recent inbound transactions for a SUI transfer
// of at least the expected amount landing after `since`. A slight overpay
// still counts; the payer loses nothing by rounding up.
func (v *SuiPaymentVerifier) Verify(ctx context.Context, wallet string, expectedAmount float64, since time.Time) (bool, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "suix_queryTransactionBlocks",
		Params: []interface{}{
			map[string]interface{}{
				"filter":  map[string]interface{}{"ToAddress": wallet},
				"options": map[string]interface{}{"showBalanceChanges": true},
			},
			nil,  // cursor
			20,   // limit
			true, // descending
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.rpcURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("sui rpc request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("sui rpc returned status %d", resp.StatusCode)
	}

	var decoded queryTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decoding sui rpc response: %w", err)
	}
	if decoded.Error != nil {
		return false, fmt.Errorf("sui rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}

	const mistPerSui = 1e9
	for _, tx := range decoded.Result.Data {
		ms, err := strconv.ParseInt(tx.TimestampMs, 10, 64)
		if err != nil || time.UnixMilli(ms).Before(since) {
			continue
		}
		for _, change := range tx.BalanceChanges {
			if change.Owner.AddressOwner != wallet || change.CoinType != events.SuiCoinType {
				continue
			}
			amount, err := strconv.ParseFloat(change.Amount, 64)
			if err != nil {
				continue
			}
			if amount/mistPerSui >= expectedAmount {
				v.log.Info("Boost payment confirmed", "wallet", wallet,
					"txDigest", tx.Digest, "amountSui", amount/mistPerSui)
				return true, nil
			}
		}
	}
	return false, nil
}

// BoostRequest is one pending boost purchase being watched for payment.
type BoostRequest struct {
	RequestID    string
	TokenAddress string
	TokenSymbol  string
	Owner        string
	Hours        int
	PriceSUI     float64
}

// MonitorBoostPayment polls the payment verifier until the requested tier is
// paid or the payment window lapses. On confirmation it activates the boost
// and announces it on the trending channel.
func MonitorBoostPayment(ctx context.Context, verifier PaymentVerifier, registry *BoostRegistry, transport DeliveryTransport, trendingChannel string, wallet string, req BoostRequest, timeout, pollInterval time.Duration, log *logger.Logger) {
	start := time.Now()
	deadline := start.Add(timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			log.Info("Boost payment window lapsed", "requestID", req.RequestID,
				"token", req.TokenAddress, "expectedSui", req.PriceSUI)
			return
		}

		paid, err := verifier.Verify(ctx, wallet, req.PriceSUI, start)
		if err != nil {
			log.Warn("Boost payment check failed", "requestID", req.RequestID, "error", err)
			continue
		}
		if !paid {
			continue
		}

		duration := time.Duration(req.Hours) * time.Hour
		if _, err := registry.Activate(ctx, req.TokenAddress, duration, req.PriceSUI, req.Owner); err != nil {
			log.Error("Boost activation failed after confirmed payment",
				"requestID", req.RequestID, "token", req.TokenAddress, "error", err)
			return
		}
		if trendingChannel != "" {
			announcement := format.BoostAnnouncement(req.TokenSymbol, req.TokenAddress, req.Hours)
			if err := transport.Broadcast(ctx, trendingChannel, announcement); err != nil {
				log.Warn("Boost announcement failed", "requestID", req.RequestID, "error", err)
			}
		}
		return
	}
}
