package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradesession/internal/domain"
	"tradesession/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func TestParseCombinedStreamFrame_ClosedKline(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@kline_1m","data":{"k":{"t":1700000000000,"o":"50000.0","h":"50100.0","l":"49900.0","c":"50050.0","v":"12.5","x":true}}}`)

	event, ok := parseCombinedStreamFrame(msg)
	if !ok {
		t.Fatal("expected a parsed event")
	}
	if event.Candle == nil {
		t.Fatal("expected a candle event")
	}
	if !event.Candle.Close.Equal(decimal.NewFromFloat(50050.0)) {
		t.Errorf("expected close 50050.0, got %s", event.Candle.Close)
	}
}

func TestParseCombinedStreamFrame_OpenKlineIgnored(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@kline_1m","data":{"k":{"t":1700000000000,"o":"50000.0","h":"50100.0","l":"49900.0","c":"50050.0","v":"12.5","x":false}}}`)

	_, ok := parseCombinedStreamFrame(msg)
	if ok {
		t.Error("expected an unclosed kline to be ignored")
	}
}

func TestParseCombinedStreamFrame_MarkPrice(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@markPrice","data":{"s":"BTCUSDT","p":"50075.5","E":1700000000000}}`)

	event, ok := parseCombinedStreamFrame(msg)
	if !ok {
		t.Fatal("expected a parsed event")
	}
	if event.Tick == nil {
		t.Fatal("expected a tick event")
	}
	if !event.Tick.Last.Equal(decimal.NewFromFloat(50075.5)) {
		t.Errorf("expected last 50075.5, got %s", event.Tick.Last)
	}
	if event.Tick.Symbol != "BTCUSDT" {
		t.Errorf("expected symbol BTCUSDT, got %s", event.Tick.Symbol)
	}
}

func TestParseCombinedStreamFrame_UnknownStreamIgnored(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@depth","data":{}}`)
	_, ok := parseCombinedStreamFrame(msg)
	if ok {
		t.Error("expected an unrecognized stream to be ignored")
	}
}

func TestNewKlineMarkPriceClient_DeliversDecodedMarketEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame := []byte(`{"stream":"btcusdt@markPrice","data":{"s":"BTCUSDT","p":"50075.5","E":1700000000000}}`)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	logger, _ := logging.NewZapLogger("DEBUG")

	events := make(chan domain.MarketEvent, 1)
	client := NewKlineMarkPriceClient(url, func(event domain.MarketEvent) {
		events <- event
	}, logger)
	client.Start()
	defer client.Stop()

	select {
	case event := <-events:
		if event.Tick == nil || event.Tick.Symbol != "BTCUSDT" {
			t.Fatalf("expected a BTCUSDT tick event, got %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded market event")
	}
}
