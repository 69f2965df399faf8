// Package provider implements domain.Provider: a live Binance USDT-M
// futures adapter for production sessions, and a deterministic replay
// provider for backtests and tests.
package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	gohttp "net/http"
	gourl "net/url"
	"strconv"
	"strings"
	"time"

	"tradesession/internal/domain"
	httpclient "tradesession/pkg/http"
	wsclient "tradesession/pkg/websocket"

	"github.com/shopspring/decimal"
)

const (
	defaultFuturesBaseURL = "https://fapi.binance.com"
	defaultFuturesWSURL   = "wss://fstream.binance.com/stream"
)

// BinanceConfig parameterizes the live Binance USDT-M futures adapter.
type BinanceConfig struct {
	Symbol    string
	Interval  string // e.g. "1m", "5m" — Binance kline interval string
	BaseURL   string // override for testing; defaults to defaultFuturesBaseURL
	WSBaseURL string // override for testing; defaults to defaultFuturesWSURL
	APIKey    string
	APISecret string
}

// binanceSigner implements pkg/http.Signer with Binance's query-string HMAC
// scheme: a timestamp query param and a signature computed over the full
// encoded query string.
type binanceSigner struct {
	apiKey    string
	apiSecret string
}

func (s *binanceSigner) SignRequest(req *gohttp.Request) error {
	req.Header.Set("X-MBX-APIKEY", s.apiKey)

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(q.Encode()))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	req.URL.RawQuery = q.Encode()
	return nil
}

// BinanceProvider implements domain.Provider against Binance USDT-M
// futures: REST for history/funding/instrument-info/order management, a
// combined kline+markPrice WebSocket stream for Listen.
type BinanceProvider struct {
	config BinanceConfig
	http   *httpclient.Client
	logger domain.Logger
}

// NewBinanceProvider constructs a BinanceProvider. http client signing is
// wired only when APIKey/APISecret are both set; a session running in
// paper/dry-run mode may construct one with empty credentials and simply
// never call the live-mode-only methods.
func NewBinanceProvider(config BinanceConfig, logger domain.Logger) *BinanceProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultFuturesBaseURL
	}
	if config.WSBaseURL == "" {
		config.WSBaseURL = defaultFuturesWSURL
	}

	var signer httpclient.Signer
	if config.APIKey != "" && config.APISecret != "" {
		signer = &binanceSigner{apiKey: config.APIKey, apiSecret: config.APISecret}
	}

	return &BinanceProvider{
		config: config,
		http:   httpclient.NewClient(config.BaseURL, 10*time.Second, signer),
		logger: logger,
	}
}

// Listen opens a combined kline+markPrice WebSocket stream and translates
// messages into domain.MarketEvent. Candle events are emitted once per
// closed kline; Tick events are emitted on every markPrice update. Frame
// decoding lives in pkg/websocket.NewKlineMarkPriceClient; this method only
// shapes the stream URL and forwards decoded events onto the channel.
func (p *BinanceProvider) Listen(ctx context.Context) (<-chan domain.MarketEvent, <-chan error) {
	events := make(chan domain.MarketEvent, 256)
	errs := make(chan error, 1)

	sym := strings.ToLower(p.config.Symbol)
	streamURL := fmt.Sprintf("%s?streams=%s@kline_%s/%s@markPrice", p.config.WSBaseURL, sym, p.config.Interval, sym)

	client := wsclient.NewKlineMarkPriceClient(streamURL, func(event domain.MarketEvent) {
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}, p.logger)
	client.Start()

	go func() {
		<-ctx.Done()
		client.Stop()
		close(events)
		close(errs)
	}()

	return events, errs
}

// History fetches the n most recent closed klines.
func (p *BinanceProvider) History(ctx context.Context, n int) ([]domain.Candle, error) {
	raw, err := httpclient.GetJSON[[][]interface{}](ctx, p.http, "/fapi/v1/klines", map[string]string{
		"symbol":   p.config.Symbol,
		"interval": p.config.Interval,
		"limit":    strconv.Itoa(n),
	})
	if err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openTimeMs, _ := row[0].(float64)
		open, _ := decimal.NewFromString(fmt.Sprintf("%v", row[1]))
		high, _ := decimal.NewFromString(fmt.Sprintf("%v", row[2]))
		low, _ := decimal.NewFromString(fmt.Sprintf("%v", row[3]))
		closePrice, _ := decimal.NewFromString(fmt.Sprintf("%v", row[4]))
		volume, _ := decimal.NewFromString(fmt.Sprintf("%v", row[5]))
		candles = append(candles, domain.Candle{
			Ts:     time.UnixMilli(int64(openTimeMs)).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return candles, nil
}

// FundingRate returns the current mark-price funding rate for the
// configured symbol; an absent or unparsable field yields 0 with no error.
func (p *BinanceProvider) FundingRate(ctx context.Context) (float64, error) {
	data, err := httpclient.GetJSON[struct {
		LastFundingRate string `json:"lastFundingRate"`
	}](ctx, p.http, "/fapi/v1/premiumIndex", map[string]string{"symbol": p.config.Symbol})
	if err != nil {
		return 0, err
	}
	rate, err := decimal.NewFromString(data.LastFundingRate)
	if err != nil {
		return 0, nil
	}
	f, _ := rate.Float64()
	return f, nil
}

// FetchInstrumentInfo reads tick size, lot size, and min-notional filters
// for symbol from Binance's exchange info endpoint.
func (p *BinanceProvider) FetchInstrumentInfo(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	res, err := httpclient.GetJSON[struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				TickSize    string `json:"tickSize"`
				StepSize    string `json:"stepSize"`
				MinQty      string `json:"minQty"`
				MaxQty      string `json:"maxQty"`
				MinNotional string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}](ctx, p.http, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return domain.InstrumentInfo{}, err
	}

	for _, s := range res.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var info domain.InstrumentInfo
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				info.TickSize, _ = decimal.NewFromString(f.TickSize)
			case "LOT_SIZE":
				info.LotSize, _ = decimal.NewFromString(f.StepSize)
				info.MinQty, _ = decimal.NewFromString(f.MinQty)
				info.MaxQty, _ = decimal.NewFromString(f.MaxQty)
			case "MIN_NOTIONAL":
				info.MinNotional, _ = decimal.NewFromString(f.MinNotional)
			}
		}
		return info, nil
	}
	return domain.InstrumentInfo{}, fmt.Errorf("symbol not found: %s", symbol)
}

// PlaceOrder submits a live order. Live-mode only; paper sessions never
// call it.
func (p *BinanceProvider) PlaceOrder(ctx context.Context, o domain.Order) error {
	side := "BUY"
	if o.Side == domain.Short {
		side = "SELL"
	}
	orderType := "MARKET"
	params := map[string]string{
		"symbol":           p.config.Symbol,
		"side":             side,
		"type":             orderType,
		"quantity":         o.Qty.String(),
		"newClientOrderId": o.ClientOrderID,
	}
	if o.EntryType == domain.EntryLimit {
		params["type"] = "LIMIT"
		params["price"] = o.Entry.String()
		params["timeInForce"] = "GTC"
	}

	q := gourl.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	resp, err := httpclient.PostJSON[struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}](ctx, p.http, "/fapi/v1/order?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	p.logger.Info("live order accepted", "order_id", resp.OrderID,
		"client_order_id", resp.ClientOrderID, "status", resp.Status)
	return nil
}

// CancelAllOrders cancels every resting order for the configured symbol.
func (p *BinanceProvider) CancelAllOrders(ctx context.Context) error {
	_, err := p.http.Delete(ctx, "/fapi/v1/allOpenOrders", map[string]string{"symbol": p.config.Symbol})
	return err
}

// GetOpenOrders lists resting orders for the configured symbol.
func (p *BinanceProvider) GetOpenOrders(ctx context.Context) ([]domain.WorkingOrder, error) {
	raw, err := httpclient.GetJSON[[]struct {
		ClientOrderID string `json:"clientOrderId"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		Time          int64  `json:"time"`
	}](ctx, p.http, "/fapi/v1/openOrders", map[string]string{"symbol": p.config.Symbol})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.WorkingOrder, 0, len(raw))
	for _, o := range raw {
		side := domain.Long
		if o.Side == "SELL" {
			side = domain.Short
		}
		entryType := domain.EntryMarket
		if o.Type == "LIMIT" {
			entryType = domain.EntryLimit
		}
		price, _ := decimal.NewFromString(o.Price)
		qty, _ := decimal.NewFromString(o.OrigQty)
		orders = append(orders, domain.WorkingOrder{
			ClientOrderID: o.ClientOrderID,
			Side:          side,
			EntryType:     entryType,
			Entry:         price,
			Qty:           qty,
			CreatedAt:     time.UnixMilli(o.Time).UTC(),
		})
	}
	return orders, nil
}

// GetPendingPositions lists exchange-reported open positions, used for
// startup reconciliation in live mode.
func (p *BinanceProvider) GetPendingPositions(ctx context.Context) ([]domain.Position, error) {
	raw, err := httpclient.GetJSON[[]struct {
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
	}](ctx, p.http, "/fapi/v2/positionRisk", map[string]string{"symbol": p.config.Symbol})
	if err != nil {
		return nil, err
	}
	positions := make([]domain.Position, 0, len(raw))
	for _, r := range raw {
		amt, _ := decimal.NewFromString(r.PositionAmt)
		if amt.IsZero() {
			continue
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		side := domain.Long
		if amt.IsNegative() {
			side = domain.Short
			amt = amt.Neg()
		}
		positions = append(positions, domain.Position{Side: side, Entry: entry, Qty: amt})
	}
	return positions, nil
}
