package itx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

// RawTx is a plain contract call with a fixed gas limit.
func RawTx(to common.Address, data []byte, gasLimit uint64) models.Call {
	return models.Call{To: to, Data: hexutil.Bytes(data), GasLimit: gasLimit}
}

// RawTxWithValue is RawTx carrying native value.
func RawTxWithValue(to common.Address, data []byte, value *big.Int, gasLimit uint64) models.Call {
	call := RawTx(to, data, gasLimit)
	if value != nil && value.Sign() > 0 {
		call.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}
	return call
}

// SingleTx wraps one call into a step on chainID.
func SingleTx(chainID uint64, call models.Call) models.TxBatch {
	return models.TxBatch{ChainID: chainID, Calls: []models.Call{call}}
}

// BatchTx groups calls into one atomic step on chainID.
func BatchTx(chainID uint64, calls ...models.Call) models.TxBatch {
	out := make([]models.Call, len(calls))
	copy(out, calls)
	return models.TxBatch{ChainID: chainID, Calls: out, Batched: true}
}

// EncodePaymentFee selects the chain and token paying for execution.
func EncodePaymentFee(chainID uint64, token string) models.FeeTx {
	return models.FeeTx{ChainID: chainID, Token: token}
}

// BuildItx assembles the steps and fee payment into an interchain transaction.
func BuildItx(steps []models.TxBatch, fee models.FeeTx) models.InterchainTx {
	out := make([]models.TxBatch, len(steps))
	copy(out, steps)
	return models.InterchainTx{Steps: out, FeeTx: fee}
}

// NewDeployment is one chain id -> address entry for BuildTokenMapping.
func NewDeployment(chainID uint64, address common.Address) models.Deployment {
	return models.Deployment{ChainID: chainID, Address: address}
}

// BuildTokenMapping collects deployments of one asset. A later deployment on
// the same chain replaces the earlier one.
func BuildTokenMapping(deployments ...models.Deployment) models.TokenMapping {
	mapping := make(models.TokenMapping, len(deployments))
	for _, d := range deployments {
		mapping[d.ChainID] = d.Address
	}
	return mapping
}
