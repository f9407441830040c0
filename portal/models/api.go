package models

// ListIndexesRequest - no parameters, lists every index registered on the controller
type ListIndexesRequest struct{}

// ListIndexesResponse - addresses of deployed indexes
type ListIndexesResponse struct {
	Indexes []string `json:"indexes"`
}

// GetIndexRequest - detail view of one index
type GetIndexRequest struct {
	Address  string `json:"address"`            // index (Set) contract address
	Quantity string `json:"quantity,omitempty"` // issue quantity in whole index tokens, default "1"
	User     string `json:"user,omitempty"`     // connected wallet, used to flag the manager
}

// ComponentView is one row of the distribution table
type ComponentView struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Units    string `json:"units"`   // raw units required for Quantity
	Display  string `json:"display"` // e.g. "WBTC - 2"
}

// GetIndexResponse - composed index snapshot
type GetIndexResponse struct {
	Address     string          `json:"address"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	TotalSupply string          `json:"total_supply"`
	Decimals    uint8           `json:"decimals"`
	Manager     string          `json:"manager"`
	IsManager   bool            `json:"is_manager"`
	State       string          `json:"state"`   // "uninitialized" | "initialized"
	Actions     []string        `json:"actions"` // enabled actions for this state
	Components  []ComponentView `json:"components"`
}

// CompositionItem - one selected token and its amount
type CompositionItem struct {
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

// PreviewCompositionRequest - preview of an index before creation
type PreviewCompositionRequest struct {
	Items []CompositionItem `json:"items"`
}

// CompositionShare - percentage of one component in the selection
type CompositionShare struct {
	Ticker     string `json:"ticker"`
	Amount     string `json:"amount"`
	Percentage string `json:"percentage"` // two decimals, e.g. "33.33"
	Units      string `json:"units"`      // amount scaled by token decimals
}

// PreviewCompositionResponse - shares and total
type PreviewCompositionResponse struct {
	Total  string             `json:"total"`
	Shares []CompositionShare `json:"shares"`
}

// CreateIndexRequest - create a new index through the SetTokenCreator
type CreateIndexRequest struct {
	Name   string            `json:"name"`
	Symbol string            `json:"symbol"`
	Items  []CompositionItem `json:"items"`
}

// IndexActionRequest - issue, redeem, approve or initialize
type IndexActionRequest struct {
	Address  string `json:"address"`
	Quantity string `json:"quantity,omitempty"`
	// Position selects a single component to approve, nil approves all through multicall
	Position *int `json:"position,omitempty"`
}

// TxResponse - hash of a submitted transaction
type TxResponse struct {
	TxHash string `json:"tx_hash"`
	// Index is the index re-read after the write, absent when the refresh failed
	Index *GetIndexResponse `json:"index,omitempty"`
}

// FaucetMintRequest - faucet mint for a receiver
type FaucetMintRequest struct {
	Receiver string `json:"receiver"`
	// Mode is "direct" (mint on the current chain) or "crosschain" (fund and mint through an interchain tx)
	Mode string `json:"mode"`
}

// FaucetMintResponse - outcome of a faucet mint
type FaucetMintResponse struct {
	Outcome  string   `json:"outcome"` // "executed" | "cancelled" | "failed"
	ItxHash  string   `json:"itx_hash,omitempty"`
	TxHashes []string `json:"tx_hashes,omitempty"`
	Messages []string `json:"messages"`
}

// ErrorResponse - body of REST errors
type ErrorResponse struct {
	Error string `json:"error"`
}
