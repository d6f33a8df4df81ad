package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SuiCoinType is the canonical coin type of the native SUI asset.
const SuiCoinType = "0x2::sui::SUI"

// Kind tells the pipeline what to do with a raw event.
type Kind int

const (
	KindDiscard Kind = iota
	KindBuy
)

// RawEvent is one decoded on-chain event as received from the websocket
// subscription. Fields carries the event's parsedJson payload whose shape
// varies between launchpad contracts.
type RawEvent struct {
	Type        string
	TxDigest    string
	Sender      string
	PackageID   string
	TimestampMs int64
	Fields      map[string]interface{}
}

// wsFrame is the JSON-RPC envelope of a sui_subscribeEvent notification. The
// node also sends subscription acks ({"id":n,"result":12345}) on the same
// socket, which decode with a nil Params.
type wsFrame struct {
	Method string `json:"method"`
	Params *struct {
		Subscription int64           `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

type suiEvent struct {
	ID struct {
		TxDigest string `json:"txDigest"`
		EventSeq string `json:"eventSeq"`
	} `json:"id"`
	PackageID   string                 `json:"packageId"`
	Sender      string                 `json:"sender"`
	Type        string                 `json:"type"`
	ParsedJSON  map[string]interface{} `json:"parsedJson"`
	TimestampMs string                 `json:"timestampMs"`
}

// ParseNotification decodes one websocket frame. It returns (nil, nil) for
// non-event frames such as subscription acks, and an error only when the
// frame claims to be an event notification but cannot be decoded.
func ParseNotification(data []byte) (*RawEvent, error) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decoding websocket frame: %w", err)
	}
	if frame.Method != "sui_subscribeEvent" || frame.Params == nil {
		return nil, nil
	}

	var ev suiEvent
	if err := json.Unmarshal(frame.Params.Result, &ev); err != nil {
		return nil, fmt.Errorf("decoding event payload: %w", err)
	}
	if ev.ID.TxDigest == "" {
		return nil, fmt.Errorf("event payload missing txDigest")
	}

	raw := &RawEvent{
		Type:      ev.Type,
		TxDigest:  ev.ID.TxDigest,
		Sender:    ev.Sender,
		PackageID: ev.PackageID,
		Fields:    ev.ParsedJSON,
	}
	if ms, err := strconv.ParseInt(ev.TimestampMs, 10, 64); err == nil {
		raw.TimestampMs = ms
	}
	if raw.Fields == nil {
		raw.Fields = map[string]interface{}{}
	}
	return raw, nil
}

// Timestamp converts the event's millisecond timestamp, falling back to the
// current time when the node omitted it.
func (e *RawEvent) Timestamp() time.Time {
	if e.TimestampMs > 0 {
		return time.UnixMilli(e.TimestampMs).UTC()
	}
	return time.Now().UTC()
}

// eventName returns the final segment of the Move event type, e.g.
// "0xabc::curve::Purchased" -> "Purchased".
func (e *RawEvent) eventName() string {
	if idx := strings.LastIndex(e.Type, "::"); idx >= 0 {
		return e.Type[idx+2:]
	}
	return e.Type
}

// Classify decides whether the event represents a token buy. Mint and
// purchase events from launchpad bonding curves are always buys. Swap events
// count as buys only when SUI is the input side of the trade; a swap that
// pays out SUI is a sell and is discarded.
func (e *RawEvent) Classify() Kind {
	switch e.eventName() {
	case "Minted", "Purchased", "BuyEvent":
		return KindBuy
	case "Swap", "SwapEvent", "Swapped":
		in := e.coinType("coin_in", "token_in", "asset_in")
		out := e.coinType("coin_out", "token_out", "asset_out")
		if strings.Contains(out, SuiCoinType) {
			return KindDiscard
		}
		if strings.Contains(in, SuiCoinType) {
			return KindBuy
		}
		return KindDiscard
	default:
		return KindDiscard
	}
}

// BuyFields extracts the buyer, amounts and token identifier. Launchpads
// disagree on field names, so each lookup walks a list of known aliases. A
// field that is absent or unparseable degrades to its zero value; the caller
// still gets a usable record.
func (e *RawEvent) BuyFields() (buyer string, suiAmount, tokenAmount float64, token string) {
	buyer = e.stringField("buyer", "recipient", "user", "sender")
	if buyer == "" {
		buyer = e.Sender
	}
	suiAmount = e.amountField("amount", "sui_amount", "coin_in_amount", "amount_in")
	tokenAmount = e.amountField("token_amount", "amount_out", "coin_out_amount")
	token = e.stringField("token", "token_id", "token_address", "package")
	if token == "" {
		token = e.PackageID
	}
	return buyer, suiAmount, tokenAmount, token
}

func (e *RawEvent) stringField(keys ...string) string {
	for _, key := range keys {
		if v, ok := e.Fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (e *RawEvent) coinType(keys ...string) string {
	for _, key := range keys {
		switch v := e.Fields[key].(type) {
		case string:
			return v
		case map[string]interface{}:
			if name, ok := v["name"].(string); ok {
				return name
			}
		}
	}
	return ""
}

// amountField reads an on-chain amount in MIST (1e9 per SUI) and converts it
// to a decimal value. Nodes serialise u64 amounts as strings; older payloads
// used raw numbers.
func (e *RawEvent) amountField(keys ...string) float64 {
	const mistPerSui = 1e9
	for _, key := range keys {
		raw, ok := e.Fields[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed / mistPerSui
			}
		case float64:
			return v / mistPerSui
		case json.Number:
			if parsed, err := v.Float64(); err == nil {
				return parsed / mistPerSui
			}
		}
		return 0
	}
	return 0
}
