package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evdnx/godec/types"
)

// REST talks to the Bybit v5 HTTP API. Per-call deadlines come from the
// caller's context; the underlying client carries a hard cap as a
// backstop.
type REST struct {
	baseURL   string
	apiKey    string
	apiSecret string
	category  string
	client    *http.Client
}

// NewREST builds a live gateway. Credentials may be empty for the public
// market-data endpoints; SubmitOrder and FetchBalance then fail fast.
func NewREST(baseURL, apiKey, apiSecret string) *REST {
	return &REST{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		category:  "linear",
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// intervals maps config timeframes onto Bybit kline interval codes.
var intervals = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "1d": "D",
}

type restEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (r *REST) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	return r.do(req, "", out)
}

func (r *REST) do(req *http.Request, signPayload string, out interface{}) error {
	if signPayload != "" || req.Method == http.MethodPost {
		if r.apiKey == "" || r.apiSecret == "" {
			return fmt.Errorf("exchange: credentials required for %s", req.URL.Path)
		}
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		const recvWindow = "5000"
		mac := hmac.New(sha256.New, []byte(r.apiSecret))
		mac.Write([]byte(ts + r.apiKey + recvWindow + signPayload))
		req.Header.Set("X-BAPI-API-KEY", r.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange: http %d: %s", resp.StatusCode, string(body))
	}
	var env restEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("exchange: decode response: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("exchange: retCode %d: %s", env.RetCode, env.RetMsg)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

func (r *REST) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	interval, ok := intervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("exchange: unsupported timeframe %q", timeframe)
	}
	params := url.Values{}
	params.Set("category", r.category)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var result struct {
		List [][]string `json:"list"`
	}
	if err := r.get(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, err
	}
	// the venue returns newest first; the core wants ascending time
	out := make([]types.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		c, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("exchange: malformed kline row: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandle(row []string) (types.Candle, error) {
	var c types.Candle
	var err error
	if c.OpenTime, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return c, err
	}
	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, dst := range fields {
		if *dst, err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (r *REST) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", r.category)
	params.Set("symbol", symbol)

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := r.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("exchange: no ticker for %s", symbol)
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}

func (r *REST) FetchBalance(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/v5/account/wallet-balance?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := r.do(req, params.Encode(), &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("exchange: empty wallet-balance response")
	}
	return strconv.ParseFloat(result.List[0].TotalEquity, 64)
}

// SubmitOrder places a market order. A venue-side refusal comes back as
// a *RejectionError so callers can distinguish it from transport
// failures.
func (r *REST) SubmitOrder(ctx context.Context, o types.Order) (types.OrderResult, error) {
	payload := map[string]string{
		"category":    r.category,
		"symbol":      o.Symbol,
		"side":        titleSide(o.Side),
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(o.Qty, 'f', -1, 64),
		"timeInForce": "IOC",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.OrderResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v5/order/create", bytes.NewReader(body))
	if err != nil {
		return types.OrderResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := r.do(req, string(body), &result); err != nil {
		// a non-zero retCode means the venue saw and refused the order
		if isRetCodeErr(err) {
			return types.OrderResult{}, ClassifyRejection(err.Error())
		}
		return types.OrderResult{}, err
	}
	return types.OrderResult{
		OrderID:   result.OrderID,
		FillPrice: o.Price,
		Filled:    true,
	}, nil
}

func titleSide(s types.Side) string {
	if s == types.Buy {
		return "Buy"
	}
	return "Sell"
}

func isRetCodeErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "retCode")
}
