package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	"gopkg.in/yaml.v2"
)

// Config is the bot configuration. Token amounts are decimal strings in
// human units of the token they refer to.
type Config struct {
	ChainID       uint64 `json:"chain_id" yaml:"chain_id" toml:"chain_id"`
	NodeURL       string `json:"node_url" yaml:"node_url" toml:"node_url"`
	PrivateKey    string `json:"-" yaml:"-" toml:"-"`
	EngineAddress string `json:"engine_address" yaml:"engine_address" toml:"engine_address"`
	StartHeight   uint64 `json:"start_height" yaml:"start_height" toml:"start_height"`

	Tokens  []TokenConfig  `json:"tokens" yaml:"tokens" toml:"tokens"`
	Venues  []VenueConfig  `json:"venues" yaml:"venues" toml:"venues"`
	Pairs   []PairConfig   `json:"pairs" yaml:"pairs" toml:"pairs"`
	Lenders []LenderConfig `json:"lenders" yaml:"lenders" toml:"lenders"`

	Gas     GasConfig     `json:"gas" yaml:"gas" toml:"gas"`
	Risk    RiskConfig    `json:"risk" yaml:"risk" toml:"risk"`
	Scanner ScannerConfig `json:"scanner" yaml:"scanner" toml:"scanner"`
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`
	Admin   AdminConfig   `json:"admin" yaml:"admin" toml:"admin"`
}

type TokenConfig struct {
	Symbol   string `json:"symbol" yaml:"symbol" toml:"symbol"`
	Address  string `json:"address" yaml:"address" toml:"address"`
	Decimals int32  `json:"decimals" yaml:"decimals" toml:"decimals"`
}

type VenueConfig struct {
	ID           string   `json:"id" yaml:"id" toml:"id"`
	Model        string   `json:"model" yaml:"model" toml:"model"`
	Router       string   `json:"router" yaml:"router" toml:"router"`
	Pool         string   `json:"pool" yaml:"pool" toml:"pool"`
	Factory      string   `json:"factory" yaml:"factory" toml:"factory"`
	InitCodeHash string   `json:"init_code_hash" yaml:"init_code_hash" toml:"init_code_hash"`
	Tokens       []string `json:"tokens" yaml:"tokens" toml:"tokens"`
	FeeBps       uint64   `json:"fee_bps" yaml:"fee_bps" toml:"fee_bps"`

	Amplification uint64   `json:"amplification" yaml:"amplification" toml:"amplification"`
	Weights       []uint64 `json:"weights" yaml:"weights" toml:"weights"`

	// Disabled venues are registered inactive
	Disabled bool `json:"disabled" yaml:"disabled" toml:"disabled"`

	// Reserves seed the pool balances when no node is configured
	Reserves []string `json:"reserves" yaml:"reserves" toml:"reserves"`
}

type PairConfig struct {
	Token0    string `json:"token0" yaml:"token0" toml:"token0"`
	Token1    string `json:"token1" yaml:"token1" toml:"token1"`
	MaxAmount string `json:"max_amount" yaml:"max_amount" toml:"max_amount"`
}

type LenderConfig struct {
	Type              string            `json:"type" yaml:"type" toml:"type"`
	Address           string            `json:"address" yaml:"address" toml:"address"`
	FeeBps            uint64            `json:"fee_bps" yaml:"fee_bps" toml:"fee_bps"`
	MaxLoanPercentage uint8             `json:"max_loan_percentage" yaml:"max_loan_percentage" toml:"max_loan_percentage"`
	Liquidity         map[string]string `json:"liquidity" yaml:"liquidity" toml:"liquidity"`
}

type GasConfig struct {
	MaxGasPriceGwei float64  `json:"max_gas_price_gwei" yaml:"max_gas_price_gwei" toml:"max_gas_price_gwei"`
	StaticGasGwei   float64  `json:"static_gas_gwei" yaml:"static_gas_gwei" toml:"static_gas_gwei"`
	BufferPercent   uint64   `json:"buffer_percent" yaml:"buffer_percent" toml:"buffer_percent"`
	UpdateInterval  Duration `json:"update_interval" yaml:"update_interval" toml:"update_interval"`
}

type RiskConfig struct {
	TrustedRelay    string  `json:"trusted_relay" yaml:"trusted_relay" toml:"trusted_relay"`
	MinRelayGasGwei float64 `json:"min_relay_gas_gwei" yaml:"min_relay_gas_gwei" toml:"min_relay_gas_gwei"`
	MaxRelayGasGwei float64 `json:"max_relay_gas_gwei" yaml:"max_relay_gas_gwei" toml:"max_relay_gas_gwei"`
}

type ScannerConfig struct {
	Interval        Duration `json:"interval" yaml:"interval" toml:"interval"`
	SearchMode      string   `json:"search_mode" yaml:"search_mode" toml:"search_mode"`
	MinNetProfit    string   `json:"min_net_profit" yaml:"min_net_profit" toml:"min_net_profit"`
	MinProfit       string   `json:"min_profit" yaml:"min_profit" toml:"min_profit"`
	Concurrency     int      `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	MaxDeviationBps uint64   `json:"max_deviation_bps" yaml:"max_deviation_bps" toml:"max_deviation_bps"`
	MaxSlippageBps  uint64   `json:"max_slippage_bps" yaml:"max_slippage_bps" toml:"max_slippage_bps"`
	DeadlineBuffer  uint64   `json:"deadline_buffer" yaml:"deadline_buffer" toml:"deadline_buffer"`
	CacheSize       int      `json:"cache_size" yaml:"cache_size" toml:"cache_size"`
	QuoteTTL        Duration `json:"quote_ttl" yaml:"quote_ttl" toml:"quote_ttl"`
	QuotesPerSecond float64  `json:"quotes_per_second" yaml:"quotes_per_second" toml:"quotes_per_second"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level" toml:"level"`
	File  string `json:"file" yaml:"file" toml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

// AdminConfig holds the bearer token settings for the mutating admin
// routes. The secret only comes from the environment.
type AdminConfig struct {
	Secret    string   `json:"-" yaml:"-" toml:"-"`
	Issuer    string   `json:"issuer" yaml:"issuer" toml:"issuer"`
	ClockSkew Duration `json:"clock_skew" yaml:"clock_skew" toml:"clock_skew"`
}

// DefaultConfig returns a configuration with every tunable set
func DefaultConfig() *Config {
	return &Config{
		ChainID:       1,
		EngineAddress: "0x00000000000000000000000000000000000f1a54",
		StartHeight:   1,
		Gas: GasConfig{
			MaxGasPriceGwei: 100,
			StaticGasGwei:   30,
			BufferPercent:   20,
			UpdateInterval:  Duration(12 * time.Second),
		},
		Scanner: ScannerConfig{
			Interval:        Duration(5 * time.Second),
			SearchMode:      "bisection",
			MinNetProfit:    "0",
			MinProfit:       "0",
			Concurrency:     4,
			MaxDeviationBps: 100,
			MaxSlippageBps:  200,
			DeadlineBuffer:  2,
			CacheSize:       4096,
			QuoteTTL:        Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9090",
		},
		Admin: AdminConfig{
			Issuer:    "flasharb-admin",
			ClockSkew: Duration(30 * time.Second),
		},
	}
}

// Load reads a json, yaml or toml configuration over the defaults, applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		case ".toml":
			_, err = toml.Decode(string(data), cfg)
		default:
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration and reports every problem at once
func (c *Config) Validate() error {
	var errs []string

	if c.EngineAddress != "" && !common.IsHexAddress(c.EngineAddress) {
		errs = append(errs, "engine_address must be a hex address")
	}

	symbols := make(map[string]bool)
	for _, t := range c.Tokens {
		switch {
		case t.Symbol == "":
			errs = append(errs, "token symbol must be specified")
		case symbols[t.Symbol]:
			errs = append(errs, fmt.Sprintf("duplicate token %s", t.Symbol))
		case !common.IsHexAddress(t.Address):
			errs = append(errs, fmt.Sprintf("token %s: invalid address", t.Symbol))
		case t.Decimals < 0 || t.Decimals > 36:
			errs = append(errs, fmt.Sprintf("token %s: decimals out of range", t.Symbol))
		}
		symbols[t.Symbol] = true
	}

	ids := make(map[string]bool)
	for _, v := range c.Venues {
		if err := c.validateVenue(v); err != nil {
			errs = append(errs, err.Error())
		}
		if ids[v.ID] {
			errs = append(errs, fmt.Sprintf("duplicate venue %s", v.ID))
		}
		ids[v.ID] = true
	}

	for i, p := range c.Pairs {
		if _, err := c.Token(p.Token0); err != nil {
			errs = append(errs, fmt.Sprintf("pair %d: %v", i, err))
			continue
		}
		if _, err := c.Token(p.Token1); err != nil {
			errs = append(errs, fmt.Sprintf("pair %d: %v", i, err))
			continue
		}
		if p.Token0 == p.Token1 {
			errs = append(errs, fmt.Sprintf("pair %d: identical tokens", i))
		}
		if amount, err := c.Amount(p.Token0, p.MaxAmount); err != nil || amount.Sign() <= 0 {
			errs = append(errs, fmt.Sprintf("pair %d: max_amount must be positive", i))
		}
	}

	for _, l := range c.Lenders {
		if _, err := ParseProviderType(l.Type); err != nil {
			errs = append(errs, err.Error())
		}
		if l.Address != "" && !common.IsHexAddress(l.Address) {
			errs = append(errs, fmt.Sprintf("lender %s: invalid address", l.Type))
		}
		if l.FeeBps >= 10000 {
			errs = append(errs, fmt.Sprintf("lender %s: fee_bps out of range", l.Type))
		}
		for sym, amount := range l.Liquidity {
			if _, err := c.Amount(sym, amount); err != nil {
				errs = append(errs, fmt.Sprintf("lender %s: %v", l.Type, err))
			}
		}
	}

	if c.Gas.MaxGasPriceGwei <= 0 {
		errs = append(errs, "gas.max_gas_price_gwei must be positive")
	}
	if c.Gas.StaticGasGwei < 0 {
		errs = append(errs, "gas.static_gas_gwei must not be negative")
	}
	if c.Gas.UpdateInterval <= 0 {
		errs = append(errs, "gas.update_interval must be positive")
	}

	if c.Risk.TrustedRelay != "" && !common.IsHexAddress(c.Risk.TrustedRelay) {
		errs = append(errs, "risk.trusted_relay must be a hex address")
	}
	if c.Risk.MaxRelayGasGwei > 0 && c.Risk.MinRelayGasGwei > c.Risk.MaxRelayGasGwei {
		errs = append(errs, "risk relay gas band is empty")
	}

	switch c.Scanner.SearchMode {
	case "", "bisection", "ternary":
	default:
		errs = append(errs, fmt.Sprintf("scanner.search_mode %q is unknown", c.Scanner.SearchMode))
	}
	if c.Scanner.Interval <= 0 {
		errs = append(errs, "scanner.interval must be positive")
	}
	if c.Scanner.MaxSlippageBps >= 10000 {
		errs = append(errs, "scanner.max_slippage_bps out of range")
	}
	if c.Scanner.CacheSize <= 0 {
		errs = append(errs, "scanner.cache_size must be positive")
	}
	if _, err := ParseInt(c.Scanner.MinNetProfit); err != nil {
		errs = append(errs, fmt.Sprintf("scanner.min_net_profit: %v", err))
	}
	if _, err := ParseInt(c.Scanner.MinProfit); err != nil {
		errs = append(errs, fmt.Sprintf("scanner.min_profit: %v", err))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr must be specified when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateVenue(v VenueConfig) error {
	if v.ID == "" {
		return fmt.Errorf("venue id must be specified")
	}
	model, err := types.ParsePricingModel(v.Model)
	if err != nil {
		return fmt.Errorf("venue %s: %v", v.ID, err)
	}
	if len(v.Tokens) != 2 {
		return fmt.Errorf("venue %s: exactly two tokens must be specified", v.ID)
	}
	if len(v.Weights) != 0 && len(v.Weights) != 2 {
		return fmt.Errorf("venue %s: weights must list both tokens", v.ID)
	}
	if len(v.Reserves) > 2 {
		return fmt.Errorf("venue %s: at most two reserves may be seeded", v.ID)
	}
	for _, sym := range v.Tokens {
		if _, err := c.Token(sym); err != nil {
			return fmt.Errorf("venue %s: %v", v.ID, err)
		}
	}
	if v.Tokens[0] == v.Tokens[1] {
		return fmt.Errorf("venue %s: identical tokens", v.ID)
	}
	if v.Router != "" && !common.IsHexAddress(v.Router) {
		return fmt.Errorf("venue %s: invalid router address", v.ID)
	}
	if v.Pool != "" && !common.IsHexAddress(v.Pool) {
		return fmt.Errorf("venue %s: invalid pool address", v.ID)
	}
	if v.Pool == "" && (model != types.ModelConstantProduct || v.Factory == "") {
		return fmt.Errorf("venue %s: pool address must be specified", v.ID)
	}
	if v.FeeBps >= 10000 {
		return fmt.Errorf("venue %s: fee_bps out of range", v.ID)
	}
	for i, r := range v.Reserves {
		if r == "" {
			continue
		}
		if _, err := c.Amount(v.Tokens[i], r); err != nil {
			return fmt.Errorf("venue %s: reserve %d: %v", v.ID, i, err)
		}
	}
	return nil
}

// Token looks up a configured token by symbol
func (c *Config) Token(symbol string) (TokenConfig, error) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return TokenConfig{}, fmt.Errorf("unknown token %q", symbol)
}

// TokenByAddress finds the configured token at addr
func (c *Config) TokenByAddress(addr common.Address) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if common.HexToAddress(t.Address) == addr {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// TokenAddress resolves a symbol or a hex address
func (c *Config) TokenAddress(s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	t, err := c.Token(s)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(t.Address), nil
}

// Amount parses a human readable amount of the token with the given symbol
func (c *Config) Amount(symbol, amount string) (*big.Int, error) {
	t, err := c.Token(symbol)
	if err != nil {
		return nil, err
	}
	return utils.ParseUnits(amount, t.Decimals)
}

// MaxGasPrice returns the gas price ceiling in wei
func (c *Config) MaxGasPrice() *big.Int {
	return utils.GweiToWei(c.Gas.MaxGasPriceGwei)
}

// ParseInt parses a raw integer amount. An empty string is zero.
func ParseInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", s)
	}
	return v, nil
}

// ParseProviderType maps a lender type onto a flashloan.ProviderType
func ParseProviderType(s string) (flashloan.ProviderType, error) {
	switch strings.ToLower(s) {
	case "aave":
		return flashloan.ProviderAave, nil
	case "balancer":
		return flashloan.ProviderBalancer, nil
	}
	return 0, fmt.Errorf("unknown lender type %q", s)
}

// Duration is a time.Duration read from strings like "5s"
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(n)
		return nil
	}
	return d.set(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	return d.set(string(text))
}

func (d *Duration) set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
