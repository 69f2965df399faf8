package session

import "testing"

func TestDefaultConfig_IsValidOnceStateDirIsSet(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	cfg.StateDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config plus a state dir to validate, got %v", err)
	}
}

func TestValidate_RejectsMissingSymbol(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.StateDir = t.TempDir()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected a missing symbol to fail validation")
	}
}

func TestValidate_RejectsUnknownExecutionMode(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	cfg.StateDir = t.TempDir()
	cfg.ExecutionMode = "turbo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an unknown execution mode to fail validation")
	}
}

func TestValidate_LiveModeRequiresRateLimitGate(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	cfg.StateDir = t.TempDir()
	cfg.ExecutionMode = ExecutionLive
	cfg.GateConfig.MaxOrdersPerMinute = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected live mode with no rate limit gate to fail validation")
	}
}
