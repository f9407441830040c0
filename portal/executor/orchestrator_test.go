package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/wallet"
)

var itxHash = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

type fakeNode struct {
	quoteErr   error
	executeErr error
	quotes     int
	executions int
	signature  []byte
}

func (f *fakeNode) GetQuote(_ context.Context, tx models.InterchainTx) (*models.Quote, error) {
	f.quotes++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &models.Quote{ItxHash: itxHash, Itx: tx}, nil
}

func (f *fakeNode) Execute(_ context.Context, quote *models.Quote, signature []byte) (*models.ExecutionResult, error) {
	f.executions++
	f.signature = signature
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return &models.ExecutionResult{ItxHash: quote.ItxHash}, nil
}

type fakeSigner struct {
	err    error
	signed []byte
}

func (f *fakeSigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	f.signed = message
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0xde, 0xad}, nil
}

func sampleItx() models.InterchainTx {
	return models.InterchainTx{
		Steps: []models.TxBatch{{ChainID: 84532, Calls: []models.Call{{To: common.HexToAddress("0x01")}}}},
		FeeTx: models.FeeTx{ChainID: 84532, Token: "USDC"},
	}
}

func TestExecuteSignsQuoteHash(t *testing.T) {
	node := &fakeNode{}
	signer := &fakeSigner{}

	res, err := executor.NewOrchestrator(node, signer).Execute(t.Context(), "faucet", sampleItx())
	assert.NoError(t, err)
	assert.Equal(t, res.Outcome, executor.OutcomeExecuted)
	assert.Equal(t, res.ItxHash, itxHash)
	assert.Equal(t, signer.signed, itxHash.Bytes())
	assert.Equal(t, node.signature, []byte{0xde, 0xad})
	assert.Equal(t, node.executions, 1)
}

func TestRejectedSignatureNeverExecutes(t *testing.T) {
	node := &fakeNode{}
	signer := &fakeSigner{err: wallet.ErrUserRejected}

	res, err := executor.NewOrchestrator(node, signer).Execute(t.Context(), "faucet", sampleItx())
	assert.True(t, errors.Is(err, executor.ErrCancelled))
	assert.True(t, errors.Is(err, wallet.ErrUserRejected))
	assert.Equal(t, res.Outcome, executor.OutcomeCancelled)
	assert.Equal(t, node.quotes, 1)
	assert.Equal(t, node.executions, 0)
}

func TestQuoteFailureStopsFlow(t *testing.T) {
	cause := errors.New("node unreachable")
	node := &fakeNode{quoteErr: cause}
	signer := &fakeSigner{}

	res, err := executor.NewOrchestrator(node, signer).Execute(t.Context(), "faucet", sampleItx())
	assert.True(t, errors.Is(err, executor.ErrQuoteFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, res.Outcome, executor.OutcomeFailed)
	assert.Equal(t, len(signer.signed), 0)
	assert.Equal(t, node.executions, 0)
}

func TestExecuteFailureKeepsQuote(t *testing.T) {
	node := &fakeNode{executeErr: errors.New("rejected by node")}

	res, err := executor.NewOrchestrator(node, &fakeSigner{}).Execute(t.Context(), "faucet", sampleItx())
	assert.True(t, errors.Is(err, executor.ErrExecuteFailed))
	assert.Equal(t, res.Outcome, executor.OutcomeFailed)
	assert.NotNil(t, res.Quote)
	assert.Equal(t, node.quotes, 1)
	assert.Equal(t, node.executions, 1)
}

func TestSignerErrorIsNotCancellation(t *testing.T) {
	node := &fakeNode{}
	_, err := executor.NewOrchestrator(node, &fakeSigner{err: errors.New("device locked")}).
		Execute(t.Context(), "faucet", sampleItx())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, executor.ErrCancelled))
	assert.Equal(t, executor.OutcomeOf(err), executor.OutcomeFailed)
	assert.Equal(t, node.executions, 0)
}

func TestNoSigner(t *testing.T) {
	node := &fakeNode{}
	_, err := executor.NewOrchestrator(node, nil).Execute(t.Context(), "faucet", sampleItx())
	assert.True(t, errors.Is(err, executor.ErrNoSigner))
	assert.Equal(t, node.quotes, 0)
}

func TestGuard(t *testing.T) {
	g := executor.NewGuard()

	release, err := g.Acquire("faucet:0xaa")
	assert.NoError(t, err)
	assert.True(t, g.InFlight("faucet:0xaa"))

	_, err = g.Acquire("faucet:0xaa")
	assert.True(t, errors.Is(err, executor.ErrInFlight))

	other, err := g.Acquire("faucet:0xbb")
	assert.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, g.InFlight("faucet:0xaa"))

	again, err := g.Acquire("faucet:0xaa")
	assert.NoError(t, err)
	again()
}

func TestGuardConcurrentAcquire(t *testing.T) {
	g := executor.NewGuard()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire("issue"); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, acquired, 1)
}
