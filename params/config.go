package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Exchange struct {
	// Asset is the single traded asset quoted by every currency pair.
	Asset string
	// Currencies are the accepted quote currencies. Empty accepts any.
	Currencies []string
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Storage struct {
	// DataDir holds the pebble databases (ledger journal, trade log).
	// Empty runs fully in memory.
	DataDir string
}

type Config struct {
	Exchange Exchange
	API      API
	Storage  Storage
	LogFile  string
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Asset:      "BTC",
			Currencies: []string{"USD", "EUR"},
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: Storage{
			DataDir: "data",
		},
		LogFile: "",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EXCHANGE_ASSET"); v != "" {
		cfg.Exchange.Asset = v
	}
	if v := os.Getenv("EXCHANGE_CURRENCIES"); v != "" {
		// Comma-separated, e.g. "USD,EUR,GBP". "*" accepts any currency.
		if v == "*" {
			cfg.Exchange.Currencies = nil
		} else {
			cfg.Exchange.Currencies = splitTrim(v)
		}
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = splitTrim(v)
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
