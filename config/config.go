// Package config loads infbuy settings from a YAML file or command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/services/pricer"
	"github.com/vadiminshakov/infbuy/internal/services/tracker"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendWAL      = "wal"
	BackendPostgres = "postgres"
)

// Price sources.
const (
	SourceYahoo       = "yahoo"
	SourceBinance     = "binance"
	SourceBybit       = "bybit"
	SourceHyperliquid = "hyperliquid"
	SourceAuto        = "auto"
	SourceNone        = "none"
)

const defaultHTTPAddr = ":8080"

type Config struct {
	HTTPAddr string
	LogLevel string
	Storage  Storage
	Prices   Prices
	Events   Events
	Defaults tracker.Defaults
}

type Storage struct {
	Backend     string
	WALDir      string
	PostgresDSN string
}

type Prices struct {
	Source string
	// Crypto is the source auto routes exchange pairs to.
	Crypto         string
	HyperliquidURL string
	YahooBaseURL   string
	Range          string
	KlineDays      int
	RedisAddr      string
	Location       *time.Location
	RefreshAt      pricer.RefreshAt
}

type Events struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// Debug reports whether development logging is requested.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// ConfigTmp is the on-disk form. Numbers are strings so they keep full decimal precision.
type ConfigTmp struct {
	HTTPAddr string      `yaml:"http_addr"`
	LogLevel string      `yaml:"log_level"`
	Storage  StorageTmp  `yaml:"storage"`
	Prices   PricesTmp   `yaml:"prices"`
	Events   EventsTmp   `yaml:"events"`
	Defaults DefaultsTmp `yaml:"defaults"`
}

type StorageTmp struct {
	Backend     string `yaml:"backend"`
	WALDir      string `yaml:"wal_dir,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

type PricesTmp struct {
	Source         string `yaml:"source"`
	Crypto         string `yaml:"crypto,omitempty"`
	HyperliquidURL string `yaml:"hyperliquid_url,omitempty"`
	YahooBaseURL   string `yaml:"yahoo_base_url,omitempty"`
	Range          string `yaml:"range,omitempty"`
	KlineDays      int    `yaml:"kline_days,omitempty"`
	RedisAddr      string `yaml:"redis_addr,omitempty"`
	Timezone       string `yaml:"timezone,omitempty"`
	RefreshAt      string `yaml:"refresh_at,omitempty"`
}

type EventsTmp struct {
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty"`
}

type DefaultsTmp struct {
	Version          string `yaml:"version,omitempty"`
	DivisionCountStr string `yaml:"division_count,omitempty"`
	TargetProfitPct  string `yaml:"target_profit_pct,omitempty"`
	CompoundingRate  string `yaml:"compounding_rate,omitempty"`
}

// Get parses args (without the program and command names) and returns the
// positional arguments left after the flags. A --config file wins over the individual flags.
func Get(name string, args []string) (Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	addr := fs.String("http-addr", defaultHTTPAddr, "http listen address")
	level := fs.String("log-level", "info", "log level: info or debug")
	backend := fs.String("storage", BackendWAL, "storage backend: memory, wal or postgres")
	walDir := fs.String("wal-dir", "", "WAL directory for the wal backend")
	dsn := fs.String("postgres-dsn", "", "postgres connection string")
	source := fs.String("prices", SourceAuto, "price source: yahoo, binance, bybit, hyperliquid, auto or none")
	cryptoSource := fs.String("crypto-prices", SourceBinance, "source auto uses for crypto pairs: binance, bybit or hyperliquid")
	redisAddr := fs.String("redis-addr", "", "redis address for the price cache, empty keeps it in memory")
	brokers := fs.String("kafka-brokers", "", "comma separated kafka brokers, empty disables kafka")
	topic := fs.String("kafka-topic", "", "kafka topic for position events")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	if *path != "" {
		cfg, err := getYaml(*path)
		return cfg, fs.Args(), err
	}

	tmp := ConfigTmp{
		HTTPAddr: *addr,
		LogLevel: *level,
		Storage:  StorageTmp{Backend: *backend, WALDir: *walDir, PostgresDSN: *dsn},
		Prices:   PricesTmp{Source: *source, Crypto: *cryptoSource, RedisAddr: *redisAddr},
		Events:   EventsTmp{KafkaBrokers: splitList(*brokers), KafkaTopic: *topic},
	}
	cfg, err := tmp.parse()
	return cfg, fs.Args(), err
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
	}
	return tmp.parse()
}

func (c ConfigTmp) parse() (Config, error) {
	cfg := Config{
		HTTPAddr: c.HTTPAddr,
		LogLevel: c.LogLevel,
		Storage: Storage{
			Backend:     strings.ToLower(c.Storage.Backend),
			WALDir:      c.Storage.WALDir,
			PostgresDSN: c.Storage.PostgresDSN,
		},
		Prices: Prices{
			Source:         strings.ToLower(c.Prices.Source),
			Crypto:         strings.ToLower(c.Prices.Crypto),
			HyperliquidURL: c.Prices.HyperliquidURL,
			YahooBaseURL: c.Prices.YahooBaseURL,
			Range:        c.Prices.Range,
			KlineDays:    c.Prices.KlineDays,
			RedisAddr:    c.Prices.RedisAddr,
			RefreshAt:    pricer.DefaultRefreshAt,
		},
		Events: Events{
			KafkaBrokers: c.Events.KafkaBrokers,
			KafkaTopic:   c.Events.KafkaTopic,
		},
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}

	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = BackendWAL
	case BackendMemory, BackendWAL:
	case BackendPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return Config{}, fmt.Errorf("'postgres_dsn' is required for the postgres storage backend")
		}
	default:
		return Config{}, fmt.Errorf("incorrect 'storage.backend' param in yaml config: %s", c.Storage.Backend)
	}

	switch cfg.Prices.Source {
	case "":
		cfg.Prices.Source = SourceAuto
	case SourceYahoo, SourceBinance, SourceBybit, SourceHyperliquid, SourceAuto, SourceNone:
	default:
		return Config{}, fmt.Errorf("incorrect 'prices.source' param in yaml config: %s", c.Prices.Source)
	}

	switch cfg.Prices.Crypto {
	case "":
		cfg.Prices.Crypto = SourceBinance
	case SourceBinance, SourceBybit, SourceHyperliquid:
	default:
		return Config{}, fmt.Errorf("incorrect 'prices.crypto' param in yaml config: %s", c.Prices.Crypto)
	}

	tz := c.Prices.Timezone
	if tz == "" {
		tz = pricer.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'prices.timezone' param in yaml config: %s, error: %w", tz, err)
	}
	cfg.Prices.Location = loc

	if c.Prices.RefreshAt != "" {
		at, err := time.Parse("15:04", c.Prices.RefreshAt)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'prices.refresh_at' param in yaml config (correct format is 08:30), error: %w", err)
		}
		cfg.Prices.RefreshAt = pricer.RefreshAt{Hour: at.Hour(), Minute: at.Minute()}
	}

	defaults, err := c.Defaults.parse()
	if err != nil {
		return Config{}, err
	}
	cfg.Defaults = defaults

	return cfg, nil
}

func (d DefaultsTmp) parse() (tracker.Defaults, error) {
	out := tracker.DefaultDefaults()

	if d.Version != "" {
		v, err := domain.ParseVersion(d.Version)
		if err != nil {
			return out, fmt.Errorf("incorrect 'defaults.version' param in yaml config: %w", err)
		}
		out.Version = v
	}
	if d.DivisionCountStr != "" {
		n, err := strconv.Atoi(d.DivisionCountStr)
		if err != nil || n < 1 {
			return out, fmt.Errorf("incorrect 'defaults.division_count' param in yaml config (must be a positive integer): %s", d.DivisionCountStr)
		}
		out.DivisionCount = n
	}
	if d.TargetProfitPct != "" {
		v, err := decimal.NewFromString(d.TargetProfitPct)
		if err != nil {
			return out, fmt.Errorf("incorrect 'defaults.target_profit_pct' param in yaml config (must be a decimal), error: %w", err)
		}
		out.TargetProfitPct = v
	}
	if d.CompoundingRate != "" {
		v, err := decimal.NewFromString(d.CompoundingRate)
		if err != nil {
			return out, fmt.Errorf("incorrect 'defaults.compounding_rate' param in yaml config (must be a decimal), error: %w", err)
		}
		out.CompoundingRate = v
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
