package config

import (
	"strings"
	"testing"
	"time"
)

func setSagaEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MARKET_CALL_TIMEOUT", "2s")
	t.Setenv("MARKET_ORDER_WAIT_MULTIPLIER", "3")
	t.Setenv("MARKET_SWEEP_PERIOD", "5s")
	t.Setenv("MARKET_HARD_DEADLINE", "30s")
}

func TestLoadSaga(t *testing.T) {
	setSagaEnv(t)
	t.Setenv("MARKET_ID", "M7")

	cfg, err := LoadSaga()
	if err != nil {
		t.Fatalf("LoadSaga: %v", err)
	}
	if cfg.MarketplaceID != "M7" {
		t.Fatalf("expected M7, got %q", cfg.MarketplaceID)
	}
	if cfg.CallTimeout != 2*time.Second || cfg.OrderWaitMultiplier != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SweepPeriod != 5*time.Second || cfg.HardDeadline != 30*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadSagaDefaultsMarketplaceID(t *testing.T) {
	setSagaEnv(t)

	cfg, err := LoadSaga()
	if err != nil {
		t.Fatalf("LoadSaga: %v", err)
	}
	if cfg.MarketplaceID != "M1" {
		t.Fatalf("expected default M1, got %q", cfg.MarketplaceID)
	}
}

func TestLoadSagaRejectsInvertedDeadlines(t *testing.T) {
	setSagaEnv(t)
	t.Setenv("MARKET_HARD_DEADLINE", "5s") // below 2s * 3

	if _, err := LoadSaga(); err == nil {
		t.Fatalf("expected deadline ordering error")
	}
}

func TestLoadSagaRejectsSmallMultiplier(t *testing.T) {
	setSagaEnv(t)
	t.Setenv("MARKET_ORDER_WAIT_MULTIPLIER", "1")

	if _, err := LoadSaga(); err == nil {
		t.Fatalf("expected multiplier error")
	}
}

func TestLoadSagaRequiresCallTimeout(t *testing.T) {
	setSagaEnv(t)
	t.Setenv("MARKET_CALL_TIMEOUT", "")

	if _, err := LoadSaga(); err == nil || !strings.Contains(err.Error(), "MARKET_CALL_TIMEOUT") {
		t.Fatalf("expected missing MARKET_CALL_TIMEOUT error, got %v", err)
	}
}

func TestLoadTopology(t *testing.T) {
	t.Setenv("MARKET_SELLERS", "S1=localhost:7001, S2=localhost:7002")
	t.Setenv("MARKET_ROUTES", "PA=S1;PB=S1,S2; PC=S2")

	cfg, err := LoadTopology()
	if err != nil {
		t.Fatalf("LoadTopology: %v", err)
	}
	if cfg.Sellers["S2"] != "localhost:7002" {
		t.Fatalf("unexpected sellers: %+v", cfg.Sellers)
	}
	if got := cfg.Routes["PB"]; len(got) != 2 || got[0] != "S1" || got[1] != "S2" {
		t.Fatalf("route order not preserved: %v", got)
	}
	if got := cfg.Catalog(); len(got) != 3 || got[0] != "PA" || got[2] != "PC" {
		t.Fatalf("unexpected catalog: %v", got)
	}
}

func TestLoadTopologyRejectsUnknownSeller(t *testing.T) {
	t.Setenv("MARKET_SELLERS", "S1=localhost:7001")
	t.Setenv("MARKET_ROUTES", "PA=S1,S9")

	if _, err := LoadTopology(); err == nil || !strings.Contains(err.Error(), "S9") {
		t.Fatalf("expected unknown seller error, got %v", err)
	}
}

func TestLoadTopologyRejectsMalformedEntries(t *testing.T) {
	t.Setenv("MARKET_SELLERS", "S1localhost:7001")
	t.Setenv("MARKET_ROUTES", "PA=S1")

	if _, err := LoadTopology(); err == nil {
		t.Fatalf("expected malformed sellers error")
	}
}

func TestLoadGenerator(t *testing.T) {
	t.Setenv("MARKET_ORDER_DELAY", "250ms")
	t.Setenv("MARKET_DUPLICATE_LINE_PROB", "0.2")

	cfg, err := LoadGenerator()
	if err != nil {
		t.Fatalf("LoadGenerator: %v", err)
	}
	if cfg.OrderDelay != 250*time.Millisecond || cfg.DuplicateLineProb != 0.2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadGeneratorRejectsBadProbability(t *testing.T) {
	t.Setenv("MARKET_DUPLICATE_LINE_PROB", "1.5")

	if _, err := LoadGenerator(); err == nil {
		t.Fatalf("expected probability range error")
	}
}

func TestLoadRedisDisabledWithoutURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("LoadRedis: %v", err)
	}
	if cfg.URL != "" {
		t.Fatalf("expected disabled journal, got %+v", cfg)
	}
}

func TestLoadRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_STREAM", "orders")
	t.Setenv("REDIS_EVENT_TTL", "1h")
	t.Setenv("REDIS_STREAM_MAXLEN", "10000")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("LoadRedis: %v", err)
	}
	if cfg.Stream != "orders" || cfg.EventTTL != time.Hour || cfg.StreamMaxLen != 10000 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
