package config

// PortalConfig is the content of portal-config.toml
type PortalConfig struct {
	// rpc configs
	Port int    `toml:"port"`
	Host string `toml:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins"`

	// rate limiting configs
	RatePerMinute int `toml:"rate_per_minute"`
	Burst         int `toml:"burst"`

	// OpenTelemetry configs
	ServiceName     string `toml:"service_name"`
	ServiceVersion  string `toml:"service_version"`
	Environment     string `toml:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing   bool   `toml:"enable_tracing"`
	UseOTLPTraces   bool   `toml:"use_otlp_traces"`
	OTLPTracesURL   string `toml:"otlp_traces_url"`
	EnableMetrics   bool   `toml:"enable_metrics"`
	UsePrometheus   bool   `toml:"use_prometheus"`
	UseOTLPMetrics  bool   `toml:"use_otlp_metrics"`
	OTLPMetricsURL  string `toml:"otlp_metrics_url"`
	EnableLogs      bool   `toml:"enable_logs"`
	UseOTLPLogs     bool   `toml:"use_otlp_logs"`
	OTLPLogsURL     string `toml:"otlp_logs_url"`
	InsecureOTLP    bool   `toml:"insecure_otlp"`
	DevelopmentMode bool   `toml:"development_mode"`

	// static data
	DataDir    string `toml:"data_dir"`
	DataSource string `toml:"data_source"` // go-getter source, fetched into data_dir on start
	TokenList  string `toml:"token_list"`  // file name inside data_dir

	Contracts ContractsConfig `toml:"contracts"`
	Chains    []ChainConfig   `toml:"chains"`
	Wallet    WalletConfig    `toml:"wallet"`
	Relay     RelayConfig     `toml:"relay"`
	Executor  EndpointConfig  `toml:"executor"`
	Bridges   BridgesConfig   `toml:"bridges"`
	Faucet    FaucetConfig    `toml:"faucet"`
}

// ContractsConfig holds the protocol addresses on the wallet chain.
type ContractsConfig struct {
	SetTokenCreator     string `toml:"set_token_creator"`
	BasicIssuanceModule string `toml:"basic_issuance_module"`
	StreamingFeeModule  string `toml:"streaming_fee_module"`
	Controller          string `toml:"controller"`
	Multicall           string `toml:"multicall"`
}

// ChainConfig is one EVM chain the portal reads from.
type ChainConfig struct {
	ID     uint64 `toml:"id"`
	Name   string `toml:"name"`
	RPCURL string `toml:"rpc_url"`
	// USDC is the bridged asset address on this chain
	USDC string `toml:"usdc"`
}

type WalletConfig struct {
	// PrivateKey is normally supplied through SPECTRA_PRIVATE_KEY
	PrivateKey string `toml:"private_key"`
	ChainID    uint64 `toml:"chain_id"`
}

// RelayConfig is shared by every outgoing HTTP API client.
type RelayConfig struct {
	Attempts            uint `toml:"attempts"`
	TimeoutSeconds      int  `toml:"timeout_seconds"`
	HealthCheckSeconds  int  `toml:"health_check_seconds"`
	RetryDelayMillisecs int  `toml:"retry_delay_ms"`
}

type EndpointConfig struct {
	URL        string   `toml:"url"`
	BackupURLs []string `toml:"backup_urls"`
	APIKey     string   `toml:"api_key"`
}

type BridgesConfig struct {
	Across EndpointConfig `toml:"across"`
	Lifi   LifiConfig     `toml:"lifi"`
}

type LifiConfig struct {
	EndpointConfig
	SlippageBps uint32 `toml:"slippage_bps"`
	Order       string `toml:"order"`
}

// FaucetConfig drives both faucet flows.
type FaucetConfig struct {
	// Plugin is "across" or "lifi"
	Plugin           string `toml:"plugin"`
	SourceChain      uint64 `toml:"source_chain"`
	DestinationChain uint64 `toml:"destination_chain"`
	FeeToken         string `toml:"fee_token"`
	// Amount of USDC to bridge, in whole tokens
	Amount string `toml:"amount"`
	// Action is "mint" or "transfer"
	Action string `toml:"action"`
	// Tokens are tickers from the token list. Empty means the first two.
	Tokens []string `toml:"tokens"`
	// DestinationTokens maps a ticker to its address on the destination chain
	DestinationTokens map[string]string `toml:"destination_tokens"`
}
