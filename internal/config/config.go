package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"bbbot/internal/md"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModePaper  Mode = "paper"
	ModeLive   Mode = "live"
)

type Config struct {
	Mode          Mode
	Symbol        string
	Feed          string
	TimeFrame     string
	HistoryBars   int
	Window        int
	BandK         float64
	LotSize       decimal.Decimal
	Deviation     float64
	TimeInForce   string
	Interval      time.Duration
	KillSwitch    bool
	MaxNotional   float64
	OrderPrefix   string
	DecisionsPath string
	HTTPAddr      string
	LogLevel      string
	LogFile       string
	PaperBaseURL  string
	LiveBaseURL   string
	APIKey        string
	APISecret     string
}

// BaseURL is the trading endpoint for the configured mode.
func (c Config) BaseURL() string {
	if c.Mode == ModeLive {
		return c.LiveBaseURL
	}
	return c.PaperBaseURL
}

func Load() (Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args on a private flag set. Values already in the
// environment win over the .env file.
func LoadArgs(args []string) (Config, error) {
	var cfg Config
	var mode string
	var lotSize string
	var envFile string

	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	fs.StringVar(&envFile, "env-file", ".env", "optional dotenv file with API credentials")
	fs.StringVar(&mode, "mode", string(ModeDryRun), "run mode: dry-run, paper or live")
	fs.StringVar(&cfg.Symbol, "symbol", "BTC/USD", "trading symbol (crypto pairs use BASE/QUOTE)")
	fs.StringVar(&cfg.Feed, "feed", "iex", "equity market data feed: iex or sip")
	fs.StringVar(&cfg.TimeFrame, "timeframe", "1Min", "bar timeframe, e.g. 1Min, 5Min, 1Hour")
	fs.IntVar(&cfg.HistoryBars, "history-bars", 20, "number of bars fetched per iteration")
	fs.IntVar(&cfg.Window, "window", 20, "Bollinger window length")
	fs.Float64Var(&cfg.BandK, "band-k", 2, "band width in standard deviations")
	fs.StringVar(&lotSize, "lot-size", "0.01", "fixed order quantity")
	fs.Float64Var(&cfg.Deviation, "deviation", 0, "max slippage in price units; 0 sends plain market orders")
	fs.StringVar(&cfg.TimeInForce, "time-in-force", "gtc", "time in force: gtc, ioc or day")
	fs.DurationVar(&cfg.Interval, "interval", 10*time.Second, "wait between iterations")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", false, "if true, never open new positions")
	fs.Float64Var(&cfg.MaxNotional, "max-notional", 0, "max notional per entry order; 0 disables")
	fs.StringVar(&cfg.OrderPrefix, "order-prefix", "bb", "client order id prefix")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", "decisions.ndjson", "path to decisions log")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", "", "serve /metrics, /healthz and /status on this address")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", "", "also write logs to this file")
	fs.StringVar(&cfg.PaperBaseURL, "paper-base-url", "https://paper-api.alpaca.markets", "paper trading base URL")
	fs.StringVar(&cfg.LiveBaseURL, "live-base-url", "https://api.alpaca.markets", "live trading base URL")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if err := loadDotEnv(envFile); err != nil {
		return cfg, err
	}

	cfg.Mode = Mode(mode)
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")

	lot, err := decimal.NewFromString(lotSize)
	if err != nil {
		return cfg, fmt.Errorf("invalid lot-size %q: %w", lotSize, err)
	}
	cfg.LotSize = lot

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// loadDotEnv loads path if it exists. godotenv.Load never overrides
// variables that are already set.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Mode != ModeDryRun && cfg.Mode != ModePaper && cfg.Mode != ModeLive {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
	}
	if cfg.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if _, _, err := md.ParseTimeFrame(cfg.TimeFrame); err != nil {
		return err
	}
	if cfg.Window <= 1 {
		return fmt.Errorf("window must be > 1")
	}
	if cfg.HistoryBars < cfg.Window {
		return fmt.Errorf("history-bars must be >= window")
	}
	if cfg.BandK <= 0 {
		return fmt.Errorf("band-k must be > 0")
	}
	if !cfg.LotSize.IsPositive() {
		return fmt.Errorf("lot-size must be > 0")
	}
	if cfg.Deviation < 0 {
		return fmt.Errorf("deviation must be >= 0")
	}
	switch cfg.TimeInForce {
	case "gtc", "ioc", "day":
	default:
		return fmt.Errorf("unsupported time in force: %s", cfg.TimeInForce)
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if cfg.MaxNotional < 0 {
		return fmt.Errorf("max-notional must be >= 0")
	}
	return nil
}
