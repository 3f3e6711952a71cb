package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// AppConfig ties together the collection constants and the service settings.
type AppConfig struct {
	Contract ContractConfig `yaml:"contract"`
	Links    LinksConfig    `yaml:"links"`
	Service  ServiceConfig  `yaml:"service"`
	Chain    ChainConfig    `yaml:"chain"`
	Log      LogConfig      `yaml:"log"`
}

type ContractConfig struct {
	Address         string `yaml:"address"`
	RequiredChainID string `yaml:"requiredChainId"`
	MaxSupply       uint64 `yaml:"maxSupply"`
}

type LinksConfig struct {
	TwitterHandle        string `yaml:"twitterHandle"`
	MarketplaceAssetBase string `yaml:"marketplaceAssetBase"`
	CollectionURL        string `yaml:"collectionUrl"`
	ExplorerTxBase       string `yaml:"explorerTxBase"`
}

type ServiceConfig struct {
	HTTPPort          int           `yaml:"httpPort"`
	IntentSecret      string        `yaml:"intentSecret"`
	HMACClockSkew     time.Duration `yaml:"hmacClockSkew"`
	IdempotencyWindow time.Duration `yaml:"idempotencyWindow"`
	// IdempotencyStore is a postgres:// DSN, a sqlite: DSN, a file path, or
	// empty for an in-memory store.
	IdempotencyStore string  `yaml:"idempotencyStore"`
	RateLimitRPS     float64 `yaml:"rateLimitRps"`
	RateLimitBurst   int     `yaml:"rateLimitBurst"`
}

type ChainConfig struct {
	// RPCURL points at a wallet endpoint that serves eth_accounts,
	// eth_requestAccounts and eth_sendTransaction.
	RPCURL string `yaml:"rpcUrl"`
	// PrivateKey switches to a locally held key signing against RPCURL.
	PrivateKey          string        `yaml:"privateKey"`
	AutoApprove         bool          `yaml:"autoApprove"`
	ReceiptPollInterval time.Duration `yaml:"receiptPollInterval"`
	LogPollInterval     time.Duration `yaml:"logPollInterval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// TwitterURL is the social link shown next to the collection.
func (l LinksConfig) TwitterURL() string {
	if l.TwitterHandle == "" {
		return ""
	}
	return "https://twitter.com/" + l.TwitterHandle
}

// TokenURL is the marketplace page of one token, empty when no marketplace is set.
func (l LinksConfig) TokenURL(contract string, tokenID uint64) string {
	if l.MarketplaceAssetBase == "" {
		return ""
	}
	return fmt.Sprintf("%s%s/%d", l.MarketplaceAssetBase, contract, tokenID)
}

func (l LinksConfig) TxURL(hash string) string {
	if l.ExplorerTxBase == "" || hash == "" {
		return ""
	}
	return l.ExplorerTxBase + hash
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() AppConfig {
	return AppConfig{
		Contract: ContractConfig{
			Address:         "0x58aC93C4292191A664CA39e01F9E79fdAc3CcB93",
			RequiredChainID: "0x5",
			MaxSupply:       1000,
		},
		Links: LinksConfig{
			TwitterHandle:        "RiceFarmerNFT",
			MarketplaceAssetBase: "https://testnets.opensea.io/assets/",
			CollectionURL:        "https://testnets.opensea.io/collection/ricenft-thqvsohnjk",
			ExplorerTxBase:       "https://goerli.etherscan.io/tx/",
		},
		Service: ServiceConfig{
			HTTPPort:          3000,
			HMACClockSkew:     60 * time.Second,
			IdempotencyWindow: 10 * time.Minute,
			RateLimitRPS:      1,
			RateLimitBurst:    5,
		},
		Chain: ChainConfig{
			ReceiptPollInterval: 2 * time.Second,
			LogPollInterval:     4 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load aggregates configuration from defaults, an optional YAML file named by
// MINT_CONFIG_PATH, and environment overrides.
func Load() (*AppConfig, error) {
	cfg := Defaults()

	if path := os.Getenv("MINT_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.Contract.Address = envOr("MINT_CONTRACT_ADDRESS", cfg.Contract.Address)
	cfg.Contract.RequiredChainID = envOr("MINT_REQUIRED_CHAIN_ID", cfg.Contract.RequiredChainID)

	cfg.Service.HTTPPort = envOrInt("API_HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.IntentSecret = envOr("INTENT_HMAC_SECRET", cfg.Service.IntentSecret)
	cfg.Service.HMACClockSkew = envOrSeconds("HMAC_CLOCK_SKEW_SECONDS", cfg.Service.HMACClockSkew)
	cfg.Service.IdempotencyWindow = envOrSeconds("IDEMPOTENCY_WINDOW_SECONDS", cfg.Service.IdempotencyWindow)
	cfg.Service.IdempotencyStore = envOr("IDEMPOTENCY_STORE", cfg.Service.IdempotencyStore)
	cfg.Service.RateLimitBurst = envOrInt("RATE_LIMIT_BURST", cfg.Service.RateLimitBurst)
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		cfg.Service.RateLimitRPS = rps
	}

	cfg.Chain.RPCURL = envOr("CHAIN_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.PrivateKey = envOr("CHAIN_PRIVATE_KEY", cfg.Chain.PrivateKey)
	if raw := os.Getenv("CHAIN_AUTO_APPROVE"); raw != "" {
		approve, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAIN_AUTO_APPROVE: %w", err)
		}
		cfg.Chain.AutoApprove = approve
	}

	cfg.Log.Level = envOr("LOG_LEVEL", cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *AppConfig) Validate() error {
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("contract address %q is not a hex address", c.Contract.Address)
	}
	if c.Contract.RequiredChainID == "" {
		return fmt.Errorf("required chain id is empty")
	}
	if c.Contract.MaxSupply == 0 {
		return fmt.Errorf("max supply must be positive")
	}
	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		return fmt.Errorf("http port %d out of range", c.Service.HTTPPort)
	}
	if c.Chain.PrivateKey != "" && c.Chain.RPCURL == "" {
		return fmt.Errorf("a private key needs CHAIN_RPC_URL to sign against")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "crit":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

func loadFromFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrSeconds(key string, fallback time.Duration) time.Duration {
	if os.Getenv(key) != "" {
		return time.Duration(envOrInt(key, int(fallback/time.Second))) * time.Second
	}
	return fallback
}
