// Package itx composes interchain transactions: the bridging step produced by a
// bridge plugin followed by the caller's action on the destination chain.
package itx

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

var (
	ErrTokenNotMapped      = errors.New("token not mapped on chain")
	ErrInsufficientBalance = errors.New("insufficient balance on source chain")
	ErrInvalidAction       = errors.New("invalid destination action")
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "itx").Logger()
}

// Action builds the destination-chain step once the amount that arrives there is known.
type Action func(received *big.Int, account models.MultichainAccount) (models.TxBatch, error)

// Request is everything the builder needs to compose a bridged action.
type Request struct {
	SourceChainID      uint64
	DestinationChainID uint64
	// Mapping holds the bridged asset address per chain id
	Mapping models.TokenMapping
	Amount  *big.Int
	Plugin  bridge.Plugin
	// Balances is optional. When set the source chain must cover Amount.
	Balances models.BalanceSnapshot
	Account  models.MultichainAccount
	Action   Action
}

// Plan is the ordered list of steps plus the amount the destination receives.
type Plan struct {
	Steps    []models.TxBatch
	Received *big.Int
	Plugin   string
}

// Itx turns the plan into an interchain transaction paid with fee.
func (p *Plan) Itx(fee models.FeeTx) models.InterchainTx {
	return BuildItx(p.Steps, fee)
}

// Build composes the bridging step on the source chain followed by the
// destination action. No chain calls are made; the plugin may query its API.
func Build(ctx context.Context, req Request) (*Plan, error) {
	if req.Action == nil {
		return nil, fmt.Errorf("%w: missing", ErrInvalidAction)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", bridge.ErrInvalidRequest)
	}
	srcToken, ok := req.Mapping[req.SourceChainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotMapped, req.SourceChainID)
	}
	dstToken, ok := req.Mapping[req.DestinationChainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotMapped, req.DestinationChainID)
	}
	if req.Balances != nil {
		balance := req.Balances[req.SourceChainID]
		if balance == nil || balance.Cmp(req.Amount) < 0 {
			return nil, fmt.Errorf("%w: have %s on %d, need %s",
				ErrInsufficientBalance, balanceString(balance), req.SourceChainID, req.Amount)
		}
	}

	plan := &Plan{Received: new(big.Int).Set(req.Amount)}

	if req.SourceChainID != req.DestinationChainID {
		if req.Plugin == nil {
			return nil, fmt.Errorf("%w: no bridge plugin", bridge.ErrInvalidRequest)
		}
		result, err := req.Plugin.Bridge(ctx, bridge.Request{
			SourceToken:        srcToken,
			DestinationToken:   dstToken,
			SourceChainID:      req.SourceChainID,
			DestinationChainID: req.DestinationChainID,
			Amount:             req.Amount,
			Account:            req.Account,
		})
		if err != nil {
			return nil, err
		}
		if result == nil || result.ReceivedAmount == nil {
			return nil, bridge.Wrap(req.Plugin.Name(), errors.New("empty result"))
		}
		if result.Batch.ChainID != req.SourceChainID || len(result.Batch.Calls) == 0 {
			return nil, bridge.Wrap(req.Plugin.Name(), errors.New("incomplete bridge batch"))
		}
		plan.Steps = append(plan.Steps, result.Batch)
		plan.Received = result.ReceivedAmount
		plan.Plugin = req.Plugin.Name()
	}

	action, err := req.Action(plan.Received, req.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}
	if action.ChainID != req.DestinationChainID {
		return nil, fmt.Errorf("%w: action on chain %d, destination is %d",
			ErrInvalidAction, action.ChainID, req.DestinationChainID)
	}
	if len(action.Calls) == 0 {
		return nil, fmt.Errorf("%w: no calls", ErrInvalidAction)
	}
	plan.Steps = append(plan.Steps, action)

	log.Debug().
		Uint64("from_chain", req.SourceChainID).
		Uint64("to_chain", req.DestinationChainID).
		Str("plugin", plan.Plugin).
		Int("steps", len(plan.Steps)).
		Str("received", plan.Received.String()).
		Msg("Interchain plan built")

	return plan, nil
}

func balanceString(b *big.Int) string {
	if b == nil {
		return "0"
	}
	return b.String()
}
