package params

import (
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Exchange.Asset != "BTC" {
		t.Errorf("default asset = %q, want BTC", cfg.Exchange.Asset)
	}
	if len(cfg.Exchange.Currencies) == 0 {
		t.Errorf("default config should whitelist currencies")
	}
	if cfg.API.Addr == "" {
		t.Errorf("default config should set a listen address")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_ASSET", "ETH")
	t.Setenv("EXCHANGE_CURRENCIES", "USD, KRW ,JPY")
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("DATA_DIR", "/tmp/exchange-data")
	t.Setenv("LOG_FILE", "/tmp/exchange.log")

	cfg := LoadFromEnv("")
	if cfg.Exchange.Asset != "ETH" {
		t.Errorf("asset = %q, want ETH", cfg.Exchange.Asset)
	}
	want := []string{"USD", "KRW", "JPY"}
	if len(cfg.Exchange.Currencies) != len(want) {
		t.Fatalf("currencies = %v, want %v", cfg.Exchange.Currencies, want)
	}
	for i, c := range want {
		if cfg.Exchange.Currencies[i] != c {
			t.Errorf("currencies[%d] = %q, want %q", i, cfg.Exchange.Currencies[i], c)
		}
	}
	if cfg.API.Addr != ":9000" {
		t.Errorf("addr = %q, want :9000", cfg.API.Addr)
	}
	if cfg.Storage.DataDir != "/tmp/exchange-data" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
	if cfg.LogFile != "/tmp/exchange.log" {
		t.Errorf("log file = %q", cfg.LogFile)
	}
}

func TestWildcardCurrencies(t *testing.T) {
	t.Setenv("EXCHANGE_CURRENCIES", "*")

	cfg := LoadFromEnv("")
	if cfg.Exchange.Currencies != nil {
		t.Errorf("wildcard should clear the whitelist, got %v", cfg.Exchange.Currencies)
	}
}
