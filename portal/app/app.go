// Package app wires the portal services from a loaded configuration. Both the
// server and the CLI build their dependencies through it.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge/across"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge/lifi"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/faucet"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/itx"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/registry"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/rpc"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/setindex"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/units"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/wallet"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "app").Logger()
}

// bridgedDecimals of USDC on every supported chain
const bridgedDecimals = 6

// Options tune what Build connects.
type Options struct {
	// WrapWallet decorates the operator wallet, e.g. with a confirmation prompt
	WrapWallet func(wallet.Wallet) wallet.Wallet
	// SkipFetch keeps the local data directory as is
	SkipFetch bool
}

// App holds the wired services and everything that must be closed on exit.
type App struct {
	Config   *config.PortalConfig
	Services rpc.Services
	Wallet   wallet.Wallet
	Writer   *contracts.Writer
	Readers  map[uint64]*contracts.Reader
	Index    *setindex.Service
	Faucet   *faucet.Faucet
	Guard    *executor.Guard

	closers []func()
}

// Build loads the static data, dials every configured chain and assembles the
// services. Features whose configuration is missing stay disabled and answer
// with a precondition error at runtime.
func Build(ctx context.Context, cfg *config.PortalConfig, opts Options) (*App, error) {
	a := &App{
		Config:  cfg,
		Readers: make(map[uint64]*contracts.Reader, len(cfg.Chains)),
		Guard:   executor.NewGuard(),
	}

	if err := a.loadData(ctx, opts.SkipFetch); err != nil {
		return nil, err
	}
	if err := a.dialChains(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectWallet(ctx, opts.WrapWallet); err != nil {
		a.Close()
		return nil, err
	}
	a.buildIndexService()

	f, err := a.buildFaucet()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Faucet = f

	a.Services.Creator = a.Writer
	a.Services.Contracts = cfg.Contracts
	if a.Index != nil {
		a.Services.Indexes = a.Index
	}
	if a.Faucet != nil {
		a.Services.Faucet = a.Faucet
	}
	return a, nil
}

// Close releases the rpc connections and the API clients.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) loadData(ctx context.Context, skipFetch bool) error {
	cfg := a.Config
	if !skipFetch {
		if err := registry.FetchDataDir(ctx, cfg.DataSource, cfg.DataDir); err != nil {
			return err
		}
	}

	tokens, err := registry.LoadTokenRegistry(filepath.Join(cfg.DataDir, cfg.TokenList))
	if err != nil {
		return fmt.Errorf("failed to load token list: %w", err)
	}
	a.Services.Tokens = tokens
	log.Info().Int("count", tokens.Len()).Msg("Loaded token list")

	catalog, err := registry.LoadCatalog(cfg.DataDir)
	if err != nil {
		// the product pages answer 503 without a catalog
		log.Warn().Err(err).Str("data_dir", cfg.DataDir).Msg("Product catalog not loaded")
		return nil
	}
	a.Services.Catalog = catalog
	return nil
}

func (a *App) dialChains(ctx context.Context) error {
	for _, chain := range a.Config.Chains {
		client, err := ethclient.DialContext(ctx, chain.RPCURL)
		if err != nil {
			return fmt.Errorf("dial chain %d: %w", chain.ID, err)
		}
		a.closers = append(a.closers, client.Close)
		a.Readers[chain.ID] = contracts.NewReader(client)
		log.Info().Uint64("chain_id", chain.ID).Str("name", chain.Name).Msg("Connected chain")
	}
	return nil
}

func (a *App) connectWallet(ctx context.Context, wrap func(wallet.Wallet) wallet.Wallet) error {
	cfg := a.Config
	if cfg.Wallet.PrivateKey == "" {
		log.Warn().Msg("No private key configured, write actions are disabled")
		a.Writer = contracts.NewWriter(nil)
		return nil
	}

	chain, ok := cfg.Chain(cfg.Wallet.ChainID)
	if !ok {
		return fmt.Errorf("wallet chain %d is not configured", cfg.Wallet.ChainID)
	}
	kw, client, err := wallet.Dial(ctx, chain.RPCURL, cfg.Wallet.PrivateKey)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	if kw.ChainID() != cfg.Wallet.ChainID {
		return fmt.Errorf("wallet rpc reports chain %d, expected %d", kw.ChainID(), cfg.Wallet.ChainID)
	}

	var w wallet.Wallet = kw
	if wrap != nil {
		w = wrap(w)
	}
	a.Wallet = w
	a.Writer = contracts.NewWriter(w)
	log.Info().Str("address", kw.Address().Hex()).Uint64("chain_id", kw.ChainID()).Msg("Wallet connected")
	return nil
}

// buildIndexService reads indexes on the wallet chain, or on the first
// configured chain when no wallet is set.
func (a *App) buildIndexService() {
	cfg := a.Config
	chainID := cfg.Wallet.ChainID
	if chainID == 0 && len(cfg.Chains) > 0 {
		chainID = cfg.Chains[0].ID
	}
	reader, ok := a.Readers[chainID]
	if !ok {
		log.Warn().Msg("No chain to read indexes from, index pages are disabled")
		return
	}

	a.Index = setindex.NewService(reader, a.Writer, setindex.Contracts{
		Controller:     optionalAddress(cfg.Contracts, "controller"),
		IssuanceModule: optionalAddress(cfg.Contracts, "basic_issuance_module"),
		Multicall:      optionalAddress(cfg.Contracts, "multicall"),
	}, a.Guard)
}

func (a *App) buildFaucet() (*faucet.Faucet, error) {
	cfg := a.Config
	tokens, err := a.faucetTokens()
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		log.Warn().Msg("Token list is empty, faucet is disabled")
		return nil, nil
	}

	crossChain, err := a.buildCrossChain()
	if err != nil {
		return nil, err
	}
	f, err := faucet.New(tokens, a.Writer, crossChain, a.Guard)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("tokens", len(tokens)).
		Bool("cross_chain", crossChain != nil).
		Str("plugin", cfg.Faucet.Plugin).
		Msg("Faucet ready")
	return f, nil
}

func (a *App) faucetTokens() ([]models.Token, error) {
	tokens := a.Services.Tokens
	if len(a.Config.Faucet.Tokens) == 0 {
		return faucet.DefaultTokens(tokens.Tokens()), nil
	}
	out := make([]models.Token, 0, len(a.Config.Faucet.Tokens))
	for _, ticker := range a.Config.Faucet.Tokens {
		t, err := tokens.Lookup(ticker)
		if err != nil {
			return nil, fmt.Errorf("faucet token: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// buildCrossChain returns nil when the cross-chain faucet is not configured.
func (a *App) buildCrossChain() (*faucet.CrossChain, error) {
	cfg := a.Config
	fc := cfg.Faucet
	if fc.SourceChain == 0 || fc.DestinationChain == 0 || cfg.Executor.URL == "" {
		return nil, nil
	}
	if a.Wallet == nil {
		log.Warn().Msg("Cross-chain faucet needs a wallet to sign quotes, disabled")
		return nil, nil
	}

	src, ok := cfg.Chain(fc.SourceChain)
	if !ok {
		return nil, fmt.Errorf("faucet source chain %d is not configured", fc.SourceChain)
	}
	dst, ok := cfg.Chain(fc.DestinationChain)
	if !ok {
		return nil, fmt.Errorf("faucet destination chain %d is not configured", fc.DestinationChain)
	}

	relayConfig := relayConfigFrom(cfg.Relay)

	nodeAPI, err := relayapi.NewClient("executor", cfg.Executor.URL, cfg.Executor.BackupURLs, withAPIKey(relayConfig, "x-api-key", cfg.Executor.APIKey))
	if err != nil {
		return nil, err
	}
	node := executor.NewNodeClient(nodeAPI)
	a.closers = append(a.closers, node.Close)

	plugin, err := a.buildPlugin(relayConfig)
	if err != nil {
		return nil, err
	}

	amount, err := units.ParseUnits(fc.Amount, bridgedDecimals)
	if err != nil {
		return nil, fmt.Errorf("faucet amount: %w", err)
	}

	destinations := make(map[string]common.Address, len(fc.DestinationTokens))
	for ticker, addr := range fc.DestinationTokens {
		destinations[strings.ToUpper(ticker)] = common.HexToAddress(addr)
	}

	readers := a.Readers
	return &faucet.CrossChain{
		Plugin:             plugin,
		SourceChainID:      src.ID,
		DestinationChainID: dst.ID,
		Mapping: itx.BuildTokenMapping(
			itx.NewDeployment(src.ID, common.HexToAddress(src.USDC)),
			itx.NewDeployment(dst.ID, common.HexToAddress(dst.USDC)),
		),
		FeeToken:             fc.FeeToken,
		Amount:               amount,
		BridgedDecimals:      bridgedDecimals,
		Action:               faucet.ActionKind(fc.Action),
		DestinationAddresses: destinations,
		Owner:                a.Writer,
		Accounts:             node,
		Executor:             executor.NewOrchestrator(node, a.Wallet),
		Balances: func(ctx context.Context, mapping models.TokenMapping, account models.MultichainAccount) (models.BalanceSnapshot, error) {
			return contracts.MultichainBalance(ctx, readers, mapping, account)
		},
	}, nil
}

func (a *App) buildPlugin(relayConfig relayapi.Config) (bridge.Plugin, error) {
	bridges := a.Config.Bridges
	switch a.Config.Faucet.Plugin {
	case "across":
		api, err := relayapi.NewClient("across", bridges.Across.URL, bridges.Across.BackupURLs, relayConfig)
		if err != nil {
			return nil, err
		}
		broker := across.NewBroker(api, across.DefaultConfig())
		a.closers = append(a.closers, broker.Close)
		return broker, nil
	case "lifi":
		api, err := relayapi.NewClient("lifi", bridges.Lifi.URL, bridges.Lifi.BackupURLs, withAPIKey(relayConfig, "x-lifi-api-key", bridges.Lifi.APIKey))
		if err != nil {
			return nil, err
		}
		lc := lifi.DefaultConfig()
		if bridges.Lifi.SlippageBps > 0 {
			lc.SlippageBps = bridges.Lifi.SlippageBps
		}
		if bridges.Lifi.Order != "" {
			lc.Order = bridges.Lifi.Order
		}
		broker := lifi.NewBroker(api, lc)
		a.closers = append(a.closers, broker.Close)
		return broker, nil
	default:
		return nil, fmt.Errorf("unsupported bridge plugin %q", a.Config.Faucet.Plugin)
	}
}

func relayConfigFrom(rc config.RelayConfig) relayapi.Config {
	out := relayapi.DefaultConfig()
	if rc.Attempts > 0 {
		out.Attempts = rc.Attempts
	}
	if rc.TimeoutSeconds > 0 {
		out.Timeout = time.Duration(rc.TimeoutSeconds) * time.Second
	}
	if rc.HealthCheckSeconds > 0 {
		out.HealthCheckInterval = time.Duration(rc.HealthCheckSeconds) * time.Second
	}
	if rc.RetryDelayMillisecs > 0 {
		out.RetryDelay = time.Duration(rc.RetryDelayMillisecs) * time.Millisecond
	}
	return out
}

func withAPIKey(c relayapi.Config, header, key string) relayapi.Config {
	if key == "" {
		return c
	}
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	headers[header] = key
	c.Headers = headers
	return c
}

// optionalAddress returns the zero address for missing contracts, the
// services report ErrMissingContractAddress when they need it.
func optionalAddress(c config.ContractsConfig, name string) common.Address {
	addr, err := c.Address(name)
	if err != nil {
		return common.Address{}
	}
	return addr
}
