package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ErrMissingContractAddress is returned by features whose contract address is not configured.
var ErrMissingContractAddress = errors.New("Missing contract address")

// EnvPrefix prefixes every environment override, e.g. SPECTRA_CONTROLLER.
const EnvPrefix = "SPECTRA"

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// DefaultFileReader implements FileReader using os.ReadFile
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader reads portal-config.toml and applies environment overrides.
type Loader struct {
	fileReader FileReader
	env        *viper.Viper
}

// NewLoader creates a Loader with the given FileReader
func NewLoader(fileReader FileReader) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{fileReader: fileReader, env: v}
}

// NewDefaultLoader creates a Loader reading from disk
func NewDefaultLoader() *Loader {
	return NewLoader(&DefaultFileReader{})
}

// Load reads the config at configPath. An empty path means env only.
func (l *Loader) Load(configPath string) (*PortalConfig, error) {
	cfg := Default()

	if configPath != "" {
		if !strings.HasSuffix(configPath, ".toml") {
			return nil, fmt.Errorf("config file must be a toml file")
		}
		body, err := l.fileReader.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(body, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// godot might fail if .env file is missing but
	// env can be applied through docker, systemd or other means, so skip error
	_ = godotenv.Load()
	l.applyEnv(cfg)

	return cfg, nil
}

// applyEnv overrides secrets, contract addresses and endpoints from SPECTRA_* variables.
func (l *Loader) applyEnv(cfg *PortalConfig) {
	overrides := map[string]*string{
		"set_token_creator":     &cfg.Contracts.SetTokenCreator,
		"basic_issuance_module": &cfg.Contracts.BasicIssuanceModule,
		"streaming_fee_module":  &cfg.Contracts.StreamingFeeModule,
		"controller":            &cfg.Contracts.Controller,
		"multicall":             &cfg.Contracts.Multicall,
		"private_key":           &cfg.Wallet.PrivateKey,
		"execution_node_url":    &cfg.Executor.URL,
		"across_url":            &cfg.Bridges.Across.URL,
		"lifi_url":              &cfg.Bridges.Lifi.URL,
		"lifi_api_key":          &cfg.Bridges.Lifi.APIKey,
		"data_source":           &cfg.DataSource,
		"faucet_plugin":         &cfg.Faucet.Plugin,
	}
	for key, field := range overrides {
		_ = l.env.BindEnv(key)
		if v := strings.TrimSpace(l.env.GetString(key)); v != "" {
			*field = v
		}
	}

	_ = l.env.BindEnv("port")
	if port := l.env.GetInt("port"); port > 0 {
		cfg.Port = port
	}
	_ = l.env.BindEnv("host")
	if host := l.env.GetString("host"); host != "" {
		cfg.Host = host
	}
}

// Default returns the configuration used for fields the file leaves out.
func Default() *PortalConfig {
	return &PortalConfig{
		Port:           8080,
		Host:           "localhost",
		AllowedOrigins: []string{"http://localhost:3000"},
		RatePerMinute:  100,
		Burst:          200,
		ServiceName:    "spectra-index-portal",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		DataDir:        "data",
		TokenList:      "tokenListBaseSep.json",
		Relay: RelayConfig{
			Attempts:            1,
			TimeoutSeconds:      15,
			HealthCheckSeconds:  30,
			RetryDelayMillisecs: 500,
		},
		Bridges: BridgesConfig{
			Across: EndpointConfig{URL: "https://testnet.across.to/api"},
			Lifi: LifiConfig{
				EndpointConfig: EndpointConfig{URL: "https://li.quest/v1"},
				SlippageBps:    50,
				Order:          "FASTEST",
			},
		},
		Faucet: FaucetConfig{
			Plugin:   "across",
			FeeToken: "USDC",
			Amount:   "10",
			Action:   "mint",
		},
	}
}

// Address returns the named contract address or ErrMissingContractAddress.
// name is the toml key, e.g. "controller".
func (c ContractsConfig) Address(name string) (common.Address, error) {
	var raw string
	switch name {
	case "set_token_creator":
		raw = c.SetTokenCreator
	case "basic_issuance_module":
		raw = c.BasicIssuanceModule
	case "streaming_fee_module":
		raw = c.StreamingFeeModule
	case "controller":
		raw = c.Controller
	case "multicall":
		raw = c.Multicall
	default:
		return common.Address{}, fmt.Errorf("unknown contract %q", name)
	}
	if raw == "" {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingContractAddress, name)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingContractAddress, name)
	}
	return addr, nil
}

// Chain returns the chain with id.
func (c *PortalConfig) Chain(id uint64) (ChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.ID == id {
			return chain, true
		}
	}
	return ChainConfig{}, false
}
