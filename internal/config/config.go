// Package config loads the automation server's configuration from YAML or
// TOML, chosen by file extension, and builds the engine's venues, oracle
// feeds and liquidity pool from it.
//
// Amounts and ratios are decimal strings ("1.5", "1000000") so no value
// passes through float64 on the way to a WAD.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/atmx/debt-bridge/internal/automation"
	"github.com/atmx/debt-bridge/internal/oracle"
	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/task"
	"github.com/atmx/debt-bridge/internal/venue"
	"github.com/atmx/debt-bridge/internal/wad"
)

var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// MarketConfig describes one collateral type on a venue.
type MarketConfig struct {
	Name             string `yaml:"name" toml:"name"`
	Collateral       string `yaml:"collateral" toml:"collateral"`
	Debt             string `yaml:"debt" toml:"debt"`
	PriceQuery       string `yaml:"price_query" toml:"price_query"`
	LiquidationRatio string `yaml:"liquidation_ratio" toml:"liquidation_ratio"`
}

// VenueConfig is a lending venue and its markets.
type VenueConfig struct {
	Name    string         `yaml:"name" toml:"name"`
	Markets []MarketConfig `yaml:"markets" toml:"markets"`
}

// SourceConfig is a flash-liquidity source. Order is priority order.
type SourceConfig struct {
	Name     string     `yaml:"name" toml:"name"`
	Token    string     `yaml:"token" toml:"token"`
	Capacity string     `yaml:"capacity" toml:"capacity"`
	Cost     route.Cost `yaml:"cost" toml:"cost"`
}

// EngineConfig holds task engine parameters.
type EngineConfig struct {
	Address             string      `yaml:"address" toml:"address"`
	MinExecutorStake    string      `yaml:"min_executor_stake" toml:"min_executor_stake"`
	SuccessSharePercent uint64      `yaml:"success_share_percent" toml:"success_share_percent"`
	Meter               *task.Meter `yaml:"meter" toml:"meter"`
}

// Config is the server configuration. It is loaded once and not changed
// afterwards.
type Config struct {
	Service     string `yaml:"service" toml:"service"`
	Env         string `yaml:"env" toml:"env"`
	Port        string `yaml:"port" toml:"port"`
	DatabaseURL string `yaml:"database_url" toml:"database_url"`
	RedisURL    string `yaml:"redis_url" toml:"redis_url"`
	LogFile     string `yaml:"log_file" toml:"log_file"`

	Engine    EngineConfig         `yaml:"engine" toml:"engine"`
	RateLimit automation.RateLimit `yaml:"rate_limit" toml:"rate_limit"`
	Venues    []VenueConfig        `yaml:"venues" toml:"venues"`
	Sources   []SourceConfig       `yaml:"sources" toml:"sources"`

	// Prices seeds a static feed per currency pair.
	Prices map[string]string `yaml:"prices" toml:"prices"`
}

// Default returns a configuration with one maker venue, the four stock
// liquidity sources and ETH at 400 USD.
func Default() *Config {
	cfg := &Config{
		Service: "debt-bridge",
		Port:    "8080",
		Engine: EngineConfig{
			Address:             "0x00000000000000000000000000000000000000ee",
			MinExecutorStake:    "1",
			SuccessSharePercent: 5,
		},
		RateLimit: automation.RateLimit{RequestsPerMinute: 120, Burst: 20},
		Venues: []VenueConfig{{
			Name: "maker",
			Markets: []MarketConfig{
				{Name: "ETH-A", Collateral: "ETH", Debt: "DAI", PriceQuery: "ETH/USD", LiquidationRatio: "1.5"},
				{Name: "ETH-B", Collateral: "ETH", Debt: "DAI", PriceQuery: "ETH/USD", LiquidationRatio: "1.3"},
			},
		}},
		Prices: map[string]string{"ETH/USD": "400"},
	}
	for _, c := range route.DefaultCosts {
		cfg.Sources = append(cfg.Sources, SourceConfig{Name: c.Name, Token: "DAI", Capacity: "1000000", Cost: c.Cost})
	}
	return cfg
}

// Load reads path, fills what it leaves out from Default, applies
// environment overrides and validates the result. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		cfg = &Config{}
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.fill(Default())
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// fill copies unset fields from def. A zero success share means the
// default share.
func (c *Config) fill(def *Config) {
	if c.Service == "" {
		c.Service = def.Service
	}
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.Engine.Address == "" {
		c.Engine.Address = def.Engine.Address
	}
	if c.Engine.MinExecutorStake == "" {
		c.Engine.MinExecutorStake = def.Engine.MinExecutorStake
	}
	if c.Engine.SuccessSharePercent == 0 {
		c.Engine.SuccessSharePercent = def.Engine.SuccessSharePercent
	}
	if c.RateLimit == (automation.RateLimit{}) {
		c.RateLimit = def.RateLimit
	}
	if c.Venues == nil {
		c.Venues = def.Venues
	}
	if c.Sources == nil {
		c.Sources = def.Sources
	}
	if c.Prices == nil {
		c.Prices = def.Prices
	}
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse config %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

// applyEnv lets the deployment override connection settings.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// Validate checks every address, amount and reference.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if !common.IsHexAddress(c.Engine.Address) {
		return fmt.Errorf("engine.address %q is not a hex address", c.Engine.Address)
	}
	if _, err := parsePositive("engine.min_executor_stake", c.Engine.MinExecutorStake); err != nil {
		return err
	}
	if c.Engine.SuccessSharePercent > 100 {
		return fmt.Errorf("engine.success_share_percent %d exceeds 100", c.Engine.SuccessSharePercent)
	}
	if len(c.Venues) == 0 {
		return errors.New("at least one venue is required")
	}
	seen := make(map[string]bool)
	for _, v := range c.Venues {
		if v.Name == "" || seen[v.Name] {
			return fmt.Errorf("venue name %q is empty or duplicated", v.Name)
		}
		seen[v.Name] = true
		for _, m := range v.Markets {
			if m.Name == "" || m.Collateral == "" || m.Debt == "" {
				return fmt.Errorf("venue %s: market %q needs name, collateral and debt", v.Name, m.Name)
			}
			if _, err := oracle.ParsePair(m.PriceQuery); err != nil {
				return fmt.Errorf("venue %s market %s: %w", v.Name, m.Name, err)
			}
			if _, ok := c.Prices[m.PriceQuery]; !ok {
				return fmt.Errorf("venue %s market %s: no price for %s", v.Name, m.Name, m.PriceQuery)
			}
			if _, err := parsePositive("liquidation_ratio", m.LiquidationRatio); err != nil {
				return fmt.Errorf("venue %s market %s: %w", v.Name, m.Name, err)
			}
		}
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one liquidity source is required")
	}
	for _, s := range c.Sources {
		if s.Name == "" {
			return errors.New("source name is required")
		}
		if _, err := parsePositive("source "+s.Name+" capacity", s.Capacity); err != nil {
			return err
		}
	}
	for pair, price := range c.Prices {
		if _, err := oracle.ParsePair(pair); err != nil {
			return err
		}
		if _, err := parsePositive("price "+pair, price); err != nil {
			return err
		}
	}
	return nil
}

// Parts are the engine inputs built from a configuration.
type Parts struct {
	Venues   *venue.Registry
	Pool     *route.Pool
	Prices   *oracle.Resolver
	Feeds    map[string]*oracle.StaticFeed
	MinStake *big.Int
	Engine   task.Config
}

// Build turns a validated configuration into engine inputs.
func (c *Config) Build() (*Parts, error) {
	p := &Parts{
		Prices: oracle.NewResolver(),
		Feeds:  make(map[string]*oracle.StaticFeed, len(c.Prices)),
	}

	pairs := make([]string, 0, len(c.Prices))
	for pair := range c.Prices {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	for _, pair := range pairs {
		price, err := wad.Parse(c.Prices[pair])
		if err != nil {
			return nil, err
		}
		feed := oracle.NewStaticFeed(price)
		if err := p.Prices.AddOracle(pair, feed); err != nil {
			return nil, err
		}
		p.Feeds[pair] = feed
	}

	books := make([]*venue.Book, 0, len(c.Venues))
	for _, v := range c.Venues {
		markets := make([]venue.Market, 0, len(v.Markets))
		for _, m := range v.Markets {
			ratio, err := wad.Parse(m.LiquidationRatio)
			if err != nil {
				return nil, err
			}
			markets = append(markets, venue.Market{
				Name:             m.Name,
				Collateral:       m.Collateral,
				Debt:             m.Debt,
				PriceQuery:       m.PriceQuery,
				LiquidationRatio: ratio,
			})
		}
		books = append(books, venue.NewBook(v.Name, markets...))
	}
	p.Venues = venue.NewRegistry(books...)

	sources := make([]route.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		capacity, err := wad.Parse(s.Capacity)
		if err != nil {
			return nil, err
		}
		sources = append(sources, route.Source{Name: s.Name, Token: s.Token, Capacity: capacity, Cost: s.Cost})
	}
	p.Pool = route.NewPool(sources)

	minStake, err := wad.Parse(c.Engine.MinExecutorStake)
	if err != nil {
		return nil, err
	}
	p.MinStake = minStake

	meter := task.DefaultMeter()
	if c.Engine.Meter != nil {
		if c.Engine.Meter.Base != 0 {
			meter.Base = c.Engine.Meter.Base
		}
		for k, v := range c.Engine.Meter.Actions {
			meter.Actions[k] = v
		}
	}
	p.Engine = task.Config{
		Address:             common.HexToAddress(c.Engine.Address),
		SuccessSharePercent: c.Engine.SuccessSharePercent,
		Meter:               meter,
	}
	return p, nil
}

func parsePositive(field, s string) (*big.Int, error) {
	x, err := wad.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if x.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %q", field, s)
	}
	return x, nil
}
