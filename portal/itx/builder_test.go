package itx_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/itx"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

const (
	baseSepolia     = 84532
	optimismSepolia = 11155420
)

var (
	usdcBase     = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	usdcOptimism = common.HexToAddress("0x5fd84259d66Cd46123540766Be93DFE6D43130D7")
	faucetToken  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	user         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakePlugin struct {
	calls int
	req   bridge.Request
	err   error
	fee   int64
	empty bool
}

func (f *fakePlugin) Name() string { return "fake" }
func (f *fakePlugin) Close()       {}

func (f *fakePlugin) Bridge(_ context.Context, req bridge.Request) (*bridge.Result, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, bridge.Wrap("fake", f.err)
	}
	if f.empty {
		return nil, nil
	}
	return &bridge.Result{
		ReceivedAmount: new(big.Int).Sub(req.Amount, big.NewInt(f.fee)),
		Batch: itx.BatchTx(req.SourceChainID,
			itx.RawTx(req.SourceToken, []byte{0x01}, 100_000),
			itx.RawTx(common.HexToAddress("0x5b"), []byte{0x02}, 300_000),
		),
	}, nil
}

func account() models.MultichainAccount {
	return models.MultichainAccount{
		Owner:     user,
		Addresses: map[uint64]common.Address{baseSepolia: user, optimismSepolia: user},
	}
}

func mintAction(chainID uint64) itx.Action {
	return func(received *big.Int, acc models.MultichainAccount) (models.TxBatch, error) {
		to, _ := acc.AddressOn(chainID)
		data, err := contracts.EncodeMint(to, received)
		if err != nil {
			return models.TxBatch{}, err
		}
		return itx.SingleTx(chainID, itx.RawTx(faucetToken, data, 90_000)), nil
	}
}

func request(plugin bridge.Plugin) itx.Request {
	return itx.Request{
		SourceChainID:      baseSepolia,
		DestinationChainID: optimismSepolia,
		Mapping: itx.BuildTokenMapping(
			itx.NewDeployment(baseSepolia, usdcBase),
			itx.NewDeployment(optimismSepolia, usdcOptimism),
		),
		Amount:  big.NewInt(1000),
		Plugin:  plugin,
		Account: account(),
		Action:  mintAction(optimismSepolia),
	}
}

func TestBuildAppendsActionAfterBridge(t *testing.T) {
	plugin := &fakePlugin{fee: 50}
	plan, err := itx.Build(t.Context(), request(plugin))
	assert.NoError(t, err)

	assert.Equal(t, len(plan.Steps), 2)
	assert.Equal(t, plan.Steps[0].ChainID, uint64(baseSepolia))
	assert.True(t, plan.Steps[0].Batched)
	assert.Equal(t, plan.Steps[1].ChainID, uint64(optimismSepolia))
	assert.Equal(t, plan.Received.String(), "950")
	assert.Equal(t, plan.Plugin, "fake")

	assert.Equal(t, plugin.req.SourceToken, usdcBase)
	assert.Equal(t, plugin.req.DestinationToken, usdcOptimism)

	m, err := contracts.ERC20ABI.MethodById(plan.Steps[1].Calls[0].Data[:4])
	assert.NoError(t, err)
	assert.Equal(t, m.Name, "mint")
	args, err := m.Inputs.Unpack(plan.Steps[1].Calls[0].Data[4:])
	assert.NoError(t, err)
	assert.Equal(t, args[1].(*big.Int).String(), "950")

	tx := plan.Itx(itx.EncodePaymentFee(baseSepolia, "USDC"))
	assert.Equal(t, tx.FeeTx.Token, "USDC")
	assert.Equal(t, tx.Chains(), []uint64{baseSepolia, optimismSepolia})
}

func TestBuildStepsOnlyOnMappedChains(t *testing.T) {
	req := request(&fakePlugin{})
	plan, err := itx.Build(t.Context(), req)
	assert.NoError(t, err)
	for _, step := range plan.Steps {
		_, ok := req.Mapping[step.ChainID]
		assert.True(t, ok)
	}
	last := plan.Steps[len(plan.Steps)-1]
	assert.Equal(t, last.ChainID, req.DestinationChainID)
}

func TestBuildTokenNotMapped(t *testing.T) {
	for _, chain := range []uint64{baseSepolia, optimismSepolia} {
		plugin := &fakePlugin{}
		req := request(plugin)
		delete(req.Mapping, chain)

		_, err := itx.Build(t.Context(), req)
		assert.True(t, errors.Is(err, itx.ErrTokenNotMapped))
		assert.Equal(t, plugin.calls, 0)
	}
}

func TestBuildPropagatesNoRoute(t *testing.T) {
	req := request(&fakePlugin{err: bridge.ErrNoRoute})
	_, err := itx.Build(t.Context(), req)
	assert.True(t, errors.Is(err, bridge.ErrNoRoute))

	var bErr *bridge.Error
	assert.True(t, errors.As(err, &bErr))
	assert.Equal(t, bErr.Plugin, "fake")
}

func TestBuildRejectsEmptyBridgeResult(t *testing.T) {
	_, err := itx.Build(t.Context(), request(&fakePlugin{empty: true}))
	assert.Error(t, err)

	var bErr *bridge.Error
	assert.True(t, errors.As(err, &bErr))
	assert.Equal(t, bErr.Plugin, "fake")
}

func TestBuildChecksSourceBalance(t *testing.T) {
	plugin := &fakePlugin{}
	req := request(plugin)
	req.Balances = models.BalanceSnapshot{baseSepolia: big.NewInt(999), optimismSepolia: big.NewInt(5000)}

	_, err := itx.Build(t.Context(), req)
	assert.True(t, errors.Is(err, itx.ErrInsufficientBalance))
	assert.Equal(t, plugin.calls, 0)

	req.Balances[baseSepolia] = big.NewInt(1000)
	_, err = itx.Build(t.Context(), req)
	assert.NoError(t, err)
}

func TestBuildSameChainSkipsBridge(t *testing.T) {
	plugin := &fakePlugin{fee: 50}
	req := request(plugin)
	req.DestinationChainID = baseSepolia
	req.Action = mintAction(baseSepolia)

	plan, err := itx.Build(t.Context(), req)
	assert.NoError(t, err)
	assert.Equal(t, len(plan.Steps), 1)
	assert.Equal(t, plan.Received.String(), "1000")
	assert.Equal(t, plugin.calls, 0)
}

func TestBuildRejectsActionOnWrongChain(t *testing.T) {
	req := request(&fakePlugin{})
	req.Action = mintAction(baseSepolia)

	_, err := itx.Build(t.Context(), req)
	assert.True(t, errors.Is(err, itx.ErrInvalidAction))

	req.Action = nil
	_, err = itx.Build(t.Context(), req)
	assert.True(t, errors.Is(err, itx.ErrInvalidAction))
}

func TestHelpers(t *testing.T) {
	call := itx.RawTxWithValue(usdcBase, []byte{0xaa}, big.NewInt(7), 21000)
	assert.Equal(t, call.Value.ToInt().String(), "7")
	assert.Equal(t, itx.RawTxWithValue(usdcBase, nil, big.NewInt(0), 1).Value == nil, true)

	single := itx.SingleTx(1, call)
	assert.False(t, single.Batched)
	assert.Equal(t, len(single.Calls), 1)

	mapping := itx.BuildTokenMapping(itx.NewDeployment(1, usdcBase), itx.NewDeployment(1, usdcOptimism))
	assert.Equal(t, len(mapping), 1)
	assert.Equal(t, mapping[1], usdcOptimism)
}
