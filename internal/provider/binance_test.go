package provider

import (
	"net/http"
	"testing"
)

func TestBinanceSigner_SignsRequestWithTimestampAndSignature(t *testing.T) {
	signer := &binanceSigner{apiKey: "key", apiSecret: "secret"}
	req, err := http.NewRequest(http.MethodGet, "https://fapi.binance.com/fapi/v1/order?symbol=BTCUSDT", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	if err := signer.SignRequest(req); err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	if req.Header.Get("X-MBX-APIKEY") != "key" {
		t.Error("expected API key header to be set")
	}
	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		t.Error("expected a timestamp query param")
	}
	if q.Get("signature") == "" {
		t.Error("expected a signature query param")
	}
}
