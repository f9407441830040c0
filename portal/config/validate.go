package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ValidationError contains details about a validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains the results of validating a portal configuration.
type ValidationResult struct {
	IsValid  bool
	Errors   []error
	Warnings []string
}

// Err joins the validation errors, nil when the config is valid.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return errors.Join(r.Errors...)
}

// SupportedPlugins lists the bridge plugins the faucet can use.
var SupportedPlugins = []string{"across", "lifi"}

// SupportedActions lists the faucet destination actions.
var SupportedActions = []string{"mint", "transfer"}

// Validator validates a portal configuration.
type Validator struct {
	// requireWallet turns a missing private key into an error
	requireWallet bool
}

// ValidatorOption configures the validator.
type ValidatorOption func(*Validator)

// WithRequireWallet makes the operator wallet mandatory.
func WithRequireWallet(require bool) ValidatorOption {
	return func(v *Validator) {
		v.requireWallet = require
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks cfg. Missing contract addresses are warnings, the features
// that need them answer with ErrMissingContractAddress at runtime.
func (v *Validator) Validate(cfg *PortalConfig) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	v.validateServer(cfg, result)
	v.validateChains(cfg, result)
	v.validateContracts(cfg, result)
	v.validateEndpoints(cfg, result)
	v.validateFaucet(cfg, result)

	if v.requireWallet && cfg.Wallet.PrivateKey == "" {
		result.Errors = append(result.Errors, &ValidationError{"wallet.private_key", "is required"})
	}
	if cfg.Wallet.PrivateKey != "" && cfg.Wallet.ChainID == 0 {
		result.Errors = append(result.Errors, &ValidationError{"wallet.chain_id", "is required when a private key is set"})
	}
	if cfg.Wallet.ChainID != 0 {
		if _, ok := cfg.Chain(cfg.Wallet.ChainID); !ok {
			result.Errors = append(result.Errors, &ValidationError{"wallet.chain_id", fmt.Sprintf("chain %d is not configured", cfg.Wallet.ChainID)})
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func (v *Validator) validateServer(cfg *PortalConfig, result *ValidationResult) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		result.Errors = append(result.Errors, &ValidationError{"port", "must be between 1 and 65535"})
	}
	if cfg.Host == "" {
		result.Errors = append(result.Errors, &ValidationError{"host", "is required"})
	}
	if len(cfg.AllowedOrigins) == 0 {
		result.Warnings = append(result.Warnings, "allowed_origins is empty, every origin is allowed")
	}
	if cfg.DataDir == "" {
		result.Errors = append(result.Errors, &ValidationError{"data_dir", "is required"})
	}
}

func (v *Validator) validateChains(cfg *PortalConfig, result *ValidationResult) {
	if len(cfg.Chains) == 0 {
		result.Errors = append(result.Errors, &ValidationError{"chains", "at least one chain is required"})
		return
	}
	seen := make(map[uint64]bool)
	for i, chain := range cfg.Chains {
		prefix := fmt.Sprintf("chains[%d]", i)
		if chain.ID == 0 {
			result.Errors = append(result.Errors, &ValidationError{prefix + ".id", "is required"})
		}
		if seen[chain.ID] {
			result.Errors = append(result.Errors, &ValidationError{prefix + ".id", fmt.Sprintf("duplicate chain id %d", chain.ID)})
		}
		seen[chain.ID] = true
		if !isHTTPURL(chain.RPCURL) {
			result.Errors = append(result.Errors, &ValidationError{prefix + ".rpc_url", "must be an http(s) url"})
		}
		if chain.USDC != "" && !common.IsHexAddress(chain.USDC) {
			result.Errors = append(result.Errors, &ValidationError{prefix + ".usdc", "is not a hex address"})
		}
	}
}

func (v *Validator) validateContracts(cfg *PortalConfig, result *ValidationResult) {
	for _, name := range []string{"set_token_creator", "basic_issuance_module", "streaming_fee_module", "controller", "multicall"} {
		if _, err := cfg.Contracts.Address(name); err != nil {
			if errors.Is(err, ErrMissingContractAddress) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("contracts.%s is not set, dependent features are disabled", name))
				continue
			}
			result.Errors = append(result.Errors, &ValidationError{"contracts." + name, err.Error()})
		}
	}
}

func (v *Validator) validateEndpoints(cfg *PortalConfig, result *ValidationResult) {
	endpoints := map[string]EndpointConfig{
		"executor":       cfg.Executor,
		"bridges.across": cfg.Bridges.Across,
		"bridges.lifi":   cfg.Bridges.Lifi.EndpointConfig,
	}
	for field, ep := range endpoints {
		if ep.URL == "" {
			continue
		}
		if !isHTTPURL(ep.URL) {
			result.Errors = append(result.Errors, &ValidationError{field + ".url", "must be an http(s) url"})
		}
		for i, backup := range ep.BackupURLs {
			if !isHTTPURL(backup) {
				result.Errors = append(result.Errors, &ValidationError{fmt.Sprintf("%s.backup_urls[%d]", field, i), "must be an http(s) url"})
			}
		}
	}
	if cfg.Bridges.Lifi.SlippageBps > 10000 {
		result.Errors = append(result.Errors, &ValidationError{"bridges.lifi.slippage_bps", "must be at most 10000"})
	}
	if cfg.Relay.Attempts == 0 {
		result.Errors = append(result.Errors, &ValidationError{"relay.attempts", "must be at least 1"})
	}
}

func (v *Validator) validateFaucet(cfg *PortalConfig, result *ValidationResult) {
	faucet := cfg.Faucet
	if !slices.Contains(SupportedPlugins, faucet.Plugin) {
		result.Errors = append(result.Errors, &ValidationError{
			"faucet.plugin",
			fmt.Sprintf("unsupported plugin '%s', must be one of: %v", faucet.Plugin, SupportedPlugins),
		})
	}
	if !slices.Contains(SupportedActions, faucet.Action) {
		result.Errors = append(result.Errors, &ValidationError{
			"faucet.action",
			fmt.Sprintf("unsupported action '%s', must be one of: %v", faucet.Action, SupportedActions),
		})
	}
	if amount, err := decimal.NewFromString(faucet.Amount); err != nil || !amount.IsPositive() {
		result.Errors = append(result.Errors, &ValidationError{"faucet.amount", "must be a positive number"})
	}

	// cross-chain faucet is optional
	if faucet.SourceChain == 0 && faucet.DestinationChain == 0 {
		result.Warnings = append(result.Warnings, "faucet chains are not set, cross-chain faucet is disabled")
		return
	}
	for field, id := range map[string]uint64{"faucet.source_chain": faucet.SourceChain, "faucet.destination_chain": faucet.DestinationChain} {
		chain, ok := cfg.Chain(id)
		if !ok {
			result.Errors = append(result.Errors, &ValidationError{field, fmt.Sprintf("chain %d is not configured", id)})
			continue
		}
		if chain.USDC == "" {
			result.Errors = append(result.Errors, &ValidationError{field, fmt.Sprintf("chain %d has no usdc address", id)})
		}
	}
	if faucet.SourceChain != faucet.DestinationChain && cfg.Executor.URL == "" {
		result.Errors = append(result.Errors, &ValidationError{"executor.url", "is required for the cross-chain faucet"})
	}
	for ticker, addr := range faucet.DestinationTokens {
		if !common.IsHexAddress(addr) {
			result.Errors = append(result.Errors, &ValidationError{"faucet.destination_tokens." + ticker, "is not a hex address"})
		}
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
