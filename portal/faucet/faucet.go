// Package faucet hands out test tokens. A direct mint calls mint on every
// faucet token from the operator wallet. A cross-chain mint bridges USDC from
// the source chain and runs the destination action inside one interchain
// transaction executed through the execution node.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/itx"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/units"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "faucet").Logger()
}

const (
	// FlowDirect and FlowCrossChain name the flows in logs and metrics.
	FlowDirect     = "faucet_direct"
	FlowCrossChain = "faucet_crosschain"

	// MintWholeTokens is how many whole tokens each mint hands out.
	MintWholeTokens = 100

	transferGasLimit = 90_000
	mintGasLimit     = 120_000
)

var (
	ErrNoTokens      = errors.New("no faucet tokens configured")
	ErrCrossChainOff = errors.New("cross-chain faucet is not configured")
	ErrUnknownAction = errors.New("unknown faucet action")
)

// ActionKind is what happens on the destination chain once funds arrive.
type ActionKind string

const (
	// ActionMint mints MintWholeTokens of every faucet token to the receiver.
	ActionMint ActionKind = "mint"
	// ActionTransfer forwards the bridged USDC to the receiver.
	ActionTransfer ActionKind = "transfer"
)

// ParseAction validates a configured action name.
func ParseAction(s string) (ActionKind, error) {
	switch ActionKind(strings.ToLower(s)) {
	case ActionMint:
		return ActionMint, nil
	case ActionTransfer:
		return ActionTransfer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Owner is the connected account. It signs the interchain transaction, so the
// smart account is resolved for it.
type Owner interface {
	Account() (common.Address, error)
}

// Minter sends direct mints. contracts.Writer implements it.
type Minter interface {
	Owner
	Mint(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error)
}

// Executor runs an interchain transaction. executor.Orchestrator implements it.
type Executor interface {
	Execute(ctx context.Context, flow string, tx models.InterchainTx) (*executor.Result, error)
}

// AccountResolver resolves the smart account of an owner on the given chains.
// executor.NodeClient implements it.
type AccountResolver interface {
	Account(ctx context.Context, owner common.Address, chains []uint64) (models.MultichainAccount, error)
}

// BalanceFunc reads the bridged asset balance on every mapped chain.
type BalanceFunc func(ctx context.Context, mapping models.TokenMapping, account models.MultichainAccount) (models.BalanceSnapshot, error)

// CrossChain configures the bridged flow. Plugin is fixed for the lifetime of
// the faucet.
type CrossChain struct {
	Plugin             bridge.Plugin
	SourceChainID      uint64
	DestinationChainID uint64
	// Mapping is the USDC address per chain
	Mapping  models.TokenMapping
	FeeToken string
	// Amount of USDC bridged, in base units
	Amount *big.Int
	// BridgedDecimals of the bridged asset, used in messages
	BridgedDecimals int32
	Action          ActionKind
	// DestinationAddresses maps a ticker to its address on the destination
	// chain. Tickers without an entry use the registry address.
	DestinationAddresses map[string]common.Address
	// Owner must be the account of the wallet the Executor signs with. The
	// minter is used when it is nil.
	Owner    Owner
	Accounts AccountResolver
	Executor             Executor
	// Balances is optional. When set the builder checks the source balance.
	Balances BalanceFunc
}

// Result is the outcome of one faucet request.
type Result struct {
	Outcome  executor.Outcome
	ItxHash  common.Hash
	TxHashes []common.Hash
	Messages []string
}

// Faucet runs both flows over the same token set.
type Faucet struct {
	tokens     []models.Token
	minter     Minter
	crossChain *CrossChain
	guard      *executor.Guard
}

// New builds a faucet over tokens. minter may be nil when only the cross-chain
// flow is used, crossChain may be nil to disable it.
func New(tokens []models.Token, minter Minter, crossChain *CrossChain, guard *executor.Guard) (*Faucet, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	if crossChain != nil {
		action, err := ParseAction(string(crossChain.Action))
		if err != nil {
			return nil, err
		}
		crossChain.Action = action
		if crossChain.BridgedDecimals == 0 {
			crossChain.BridgedDecimals = 6
		}
	}
	if guard == nil {
		guard = executor.NewGuard()
	}
	out := make([]models.Token, len(tokens))
	copy(out, tokens)
	return &Faucet{tokens: out, minter: minter, crossChain: crossChain, guard: guard}, nil
}

// DefaultTokens picks the first two tokens of the registry.
func DefaultTokens(registry []models.Token) []models.Token {
	if len(registry) > 2 {
		registry = registry[:2]
	}
	out := make([]models.Token, len(registry))
	copy(out, registry)
	return out
}

// Tokens returns the faucet tokens.
func (f *Faucet) Tokens() []models.Token {
	out := make([]models.Token, len(f.tokens))
	copy(out, f.tokens)
	return out
}

// MintAmount is MintWholeTokens scaled by the token decimals.
func MintAmount(token models.Token) *big.Int {
	amount, _ := units.ParseUnits(fmt.Sprint(MintWholeTokens), token.Decimals)
	return amount
}

// ReceivedMessage is shown per minted token.
func ReceivedMessage(token models.Token) string {
	return fmt.Sprintf("You have received %d %s tokens.", MintWholeTokens, token.Ticker)
}

// DirectMint mints every faucet token to receiver on the wallet chain. The
// mints are sent concurrently. A zero receiver means the connected account.
func (f *Faucet) DirectMint(ctx context.Context, receiver common.Address) (*Result, error) {
	if f.minter == nil {
		return nil, contracts.ErrPreconditionNotMet
	}
	account, err := f.minter.Account()
	if err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		receiver = account
	}

	release, err := f.guard.Acquire("faucet:" + receiver.Hex())
	if err != nil {
		return nil, err
	}
	defer release()

	hashes := make([]common.Hash, len(f.tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range f.tokens {
		g.Go(func() (err error) {
			hashes[i], err = f.minter.Mint(gctx, token.HexAddress(), receiver, MintAmount(token))
			if err != nil {
				return fmt.Errorf("mint %s: %w", token.Ticker, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("flow", FlowDirect).Str("receiver", receiver.Hex()).Msg("Direct mint failed")
		return &Result{Outcome: executor.OutcomeFailed}, err
	}

	res := &Result{Outcome: executor.OutcomeExecuted, TxHashes: hashes}
	for _, token := range f.tokens {
		res.Messages = append(res.Messages, ReceivedMessage(token))
	}
	log.Info().Str("flow", FlowDirect).Str("receiver", receiver.Hex()).Int("tokens", len(f.tokens)).Msg("Direct mint sent")
	return res, nil
}

// CrossChainMint bridges the configured USDC amount to the destination chain
// and runs the configured action there, all in one interchain transaction.
// The smart account belongs to the signing owner. receiver only gets the
// destination action and defaults to the owner.
func (f *Faucet) CrossChainMint(ctx context.Context, receiver common.Address) (*Result, error) {
	cc := f.crossChain
	if cc == nil || cc.Executor == nil || cc.Accounts == nil {
		return nil, ErrCrossChainOff
	}
	var signer Owner = cc.Owner
	if signer == nil && f.minter != nil {
		signer = f.minter
	}
	if signer == nil {
		return nil, contracts.ErrPreconditionNotMet
	}
	owner, err := signer.Account()
	if err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		receiver = owner
	}

	release, err := f.guard.Acquire("faucet:" + receiver.Hex())
	if err != nil {
		return nil, err
	}
	defer release()

	account, err := cc.Accounts.Account(ctx, owner, []uint64{cc.SourceChainID, cc.DestinationChainID})
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	req := itx.Request{
		SourceChainID:      cc.SourceChainID,
		DestinationChainID: cc.DestinationChainID,
		Mapping:            cc.Mapping,
		Amount:             cc.Amount,
		Plugin:             cc.Plugin,
		Account:            account,
		Action:             f.destinationAction(receiver),
	}
	if cc.Balances != nil {
		req.Balances, err = cc.Balances(ctx, cc.Mapping, account)
		if err != nil {
			return nil, fmt.Errorf("read balances: %w", err)
		}
	}

	plan, err := itx.Build(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("receiver", receiver.Hex()).Msg("Failed to build faucet transaction")
		return &Result{Outcome: executor.OutcomeFailed}, err
	}

	run, err := cc.Executor.Execute(ctx, FlowCrossChain, plan.Itx(itx.EncodePaymentFee(cc.SourceChainID, cc.FeeToken)))
	res := &Result{Outcome: executor.OutcomeOf(err)}
	if run != nil {
		res.Outcome = run.Outcome
		res.ItxHash = run.ItxHash
	}
	if err != nil {
		return res, err
	}
	res.Messages = f.crossChainMessages(plan.Received)
	return res, nil
}

// destinationAction builds the final step once the received amount is known.
// Tokens go to the receiver itself, not to its smart account.
func (f *Faucet) destinationAction(receiver common.Address) itx.Action {
	cc := f.crossChain
	return func(received *big.Int, _ models.MultichainAccount) (models.TxBatch, error) {
		switch cc.Action {
		case ActionTransfer:
			data, err := contracts.EncodeTransfer(receiver, received)
			if err != nil {
				return models.TxBatch{}, err
			}
			usdc := cc.Mapping[cc.DestinationChainID]
			return itx.SingleTx(cc.DestinationChainID, itx.RawTx(usdc, data, transferGasLimit)), nil
		case ActionMint:
			calls := make([]models.Call, 0, len(f.tokens))
			for _, token := range f.tokens {
				data, err := contracts.EncodeMint(receiver, MintAmount(token))
				if err != nil {
					return models.TxBatch{}, err
				}
				calls = append(calls, itx.RawTx(f.destinationAddress(token), data, mintGasLimit))
			}
			return itx.BatchTx(cc.DestinationChainID, calls...), nil
		default:
			return models.TxBatch{}, fmt.Errorf("%w: %q", ErrUnknownAction, cc.Action)
		}
	}
}

func (f *Faucet) destinationAddress(token models.Token) common.Address {
	if addr, ok := f.crossChain.DestinationAddresses[strings.ToUpper(token.Ticker)]; ok {
		return addr
	}
	return token.HexAddress()
}

func (f *Faucet) crossChainMessages(received *big.Int) []string {
	if f.crossChain.Action == ActionTransfer {
		amount := units.FormatUnitsString(received, f.crossChain.BridgedDecimals)
		return []string{fmt.Sprintf("You have received %s USDC.", amount)}
	}
	out := make([]string, 0, len(f.tokens))
	for _, token := range f.tokens {
		out = append(out, ReceivedMessage(token))
	}
	return out
}
