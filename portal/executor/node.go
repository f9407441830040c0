package executor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
)

// Node is the cross-chain execution service.
type Node interface {
	GetQuote(ctx context.Context, tx models.InterchainTx) (*models.Quote, error)
	Execute(ctx context.Context, quote *models.Quote, signature []byte) (*models.ExecutionResult, error)
}

// executeRequest is the body of POST /execute
type executeRequest struct {
	Quote     *models.Quote `json:"quote"`
	Signature hexutil.Bytes `json:"signature"`
}

// NodeClient talks to a klaster compatible execution node over HTTP.
type NodeClient struct {
	api *relayapi.Client
}

var _ Node = (*NodeClient)(nil)

func NewNodeClient(api *relayapi.Client) *NodeClient {
	return &NodeClient{api: api}
}

func (n *NodeClient) Close() {
	n.api.Close()
}

// GetQuote prices the interchain transaction and returns its canonical hash.
// The quote keeps the node's raw answer for Execute.
func (n *NodeClient) GetQuote(ctx context.Context, tx models.InterchainTx) (*models.Quote, error) {
	var quote models.Quote
	if err := n.api.PostJSONOnce(ctx, "/quote", tx, &quote); err != nil {
		return nil, err
	}
	if quote.ItxHash == (common.Hash{}) {
		return nil, fmt.Errorf("quote has no itx hash")
	}
	return &quote, nil
}

// Execute submits the signed quote exactly once.
func (n *NodeClient) Execute(ctx context.Context, quote *models.Quote, signature []byte) (*models.ExecutionResult, error) {
	var result models.ExecutionResult
	body := executeRequest{Quote: quote, Signature: signature}
	if err := n.api.PostJSONOnce(ctx, "/execute", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Account resolves the smart account addresses of owner on chains.
func (n *NodeClient) Account(ctx context.Context, owner common.Address, chains []uint64) (models.MultichainAccount, error) {
	ids := make([]string, len(chains))
	for i, c := range chains {
		ids[i] = strconv.FormatUint(c, 10)
	}
	query := url.Values{}
	if len(ids) > 0 {
		query.Set("chains", strings.Join(ids, ","))
	}

	var account models.MultichainAccount
	if err := n.api.GetJSON(ctx, "/account/"+owner.Hex(), query, &account); err != nil {
		return models.MultichainAccount{}, err
	}
	if account.Owner == (common.Address{}) {
		account.Owner = owner
	}
	return account, nil
}
