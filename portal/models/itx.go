package models

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrUnitsMismatch = errors.New("component addresses and units differ in length")

// ComponentUnits pairs component addresses with the unit amounts required
// for an issuance. Index i of Addresses corresponds to index i of Units.
type ComponentUnits struct {
	Addresses []common.Address `json:"addresses"`
	Units     []*big.Int       `json:"units"`
}

// NewComponentUnits builds ComponentUnits, rejecting sequences of different length.
func NewComponentUnits(addresses []common.Address, units []*big.Int) (ComponentUnits, error) {
	if len(addresses) != len(units) {
		return ComponentUnits{}, ErrUnitsMismatch
	}
	return ComponentUnits{Addresses: addresses, Units: units}, nil
}

// Len returns the number of components.
func (c ComponentUnits) Len() int {
	return len(c.Addresses)
}

// Call is a single raw contract call.
type Call struct {
	To       common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	Value    *hexutil.Big   `json:"value,omitempty"`
	GasLimit uint64         `json:"gasLimit"`
}

// TxBatch is an ordered group of calls on one chain. When Batched is set the
// calls execute atomically as one unit.
type TxBatch struct {
	ChainID uint64 `json:"chainId"`
	Calls   []Call `json:"txs"`
	Batched bool   `json:"batched"`
}

// FeeTx describes which chain and token pay for the interchain transaction.
type FeeTx struct {
	ChainID uint64 `json:"chainId"`
	Token   string `json:"token"`
}

// InterchainTx is a multi-chain plan of ordered steps plus fee payment.
type InterchainTx struct {
	Steps []TxBatch `json:"steps"`
	FeeTx FeeTx     `json:"feeTx"`
}

// Chains returns the chain ids touched by the steps, in step order.
func (i InterchainTx) Chains() []uint64 {
	out := make([]uint64, 0, len(i.Steps))
	for _, s := range i.Steps {
		out = append(out, s.ChainID)
	}
	return out
}

// PaymentInfo carries the cost fields of a quote.
type PaymentInfo struct {
	ChainID       uint64 `json:"chainId"`
	Token         string `json:"token"`
	TokenAmount   string `json:"tokenAmount"`
	TokenValueUSD string `json:"tokenValue"`
	GasFee        string `json:"gasFee"`
}

// Quote is the execution service's priced answer for an InterchainTx.
// It is consumed exactly once: signed, then executed.
type Quote struct {
	ItxHash     common.Hash  `json:"itxHash"`
	PaymentInfo PaymentInfo  `json:"paymentInfo"`
	Itx         InterchainTx `json:"itx"`
	// Raw is the quote as the service sent it. When set it is what gets
	// marshaled, so fields the typed view does not know survive execution.
	Raw json.RawMessage `json:"-"`
}

type quoteFields Quote

func (q *Quote) UnmarshalJSON(data []byte) error {
	var fields quoteFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*q = Quote(fields)
	q.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (q Quote) MarshalJSON() ([]byte, error) {
	if len(q.Raw) > 0 {
		return q.Raw, nil
	}
	return json.Marshal(quoteFields(q))
}

// ExecutionResult is the handle returned by the execution service.
type ExecutionResult struct {
	ItxHash common.Hash `json:"itxHash"`
}

// Deployment is one chain id -> token address entry of a token mapping.
type Deployment struct {
	ChainID uint64         `json:"chainId"`
	Address common.Address `json:"address"`
}

// TokenMapping maps chain id to the bridged token address on that chain.
type TokenMapping map[uint64]common.Address

// BalanceSnapshot is one asset's balance per chain id.
type BalanceSnapshot map[uint64]*big.Int

// Total sums the snapshot.
func (b BalanceSnapshot) Total() *big.Int {
	total := new(big.Int)
	for _, v := range b {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// MultichainAccount is the smart account of one owner on every supported chain.
type MultichainAccount struct {
	Owner     common.Address            `json:"owner"`
	Addresses map[uint64]common.Address `json:"addresses"`
}

// AddressOn returns the account address on chainID.
func (m MultichainAccount) AddressOn(chainID uint64) (common.Address, bool) {
	addr, ok := m.Addresses[chainID]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}
