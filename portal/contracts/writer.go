package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/composer"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/wallet"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "contracts").Logger()
}

// ErrPreconditionNotMet marks a write that was not sent because the wallet is
// not connected, the chain is unknown or the account is unresolved.
var ErrPreconditionNotMet = errors.New("not logged in")

// Writer sends signed transactions through the connected wallet.
type Writer struct {
	wallet wallet.Wallet
}

// NewWriter builds a Writer. A nil wallet is allowed, every write is then a no-op.
func NewWriter(w wallet.Wallet) *Writer {
	return &Writer{wallet: w}
}

// Wallet returns the wallet the writer sends with.
func (w *Writer) Wallet() wallet.Wallet {
	return w.wallet
}

// Ready reports whether writes can be sent.
func (w *Writer) Ready() error {
	if w.wallet == nil || !w.wallet.Connected() {
		return ErrPreconditionNotMet
	}
	if w.wallet.ChainID() == 0 || w.wallet.Address() == (common.Address{}) {
		return ErrPreconditionNotMet
	}
	return nil
}

// Account returns the connected address.
func (w *Writer) Account() (common.Address, error) {
	if err := w.Ready(); err != nil {
		return common.Address{}, err
	}
	return w.wallet.Address(), nil
}

func (w *Writer) send(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) (common.Hash, error) {
	if err := w.Ready(); err != nil {
		return common.Hash{}, err
	}
	data, err := Pack(contractABI, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := w.wallet.SendTransaction(ctx, to, data, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s on %s: %w", method, to.Hex(), err)
	}
	log.Info().Str("method", method).Str("to", to.Hex()).Str("hash", hash.Hex()).Msg("Transaction submitted")
	return hash, nil
}

// Approve lets spender pull amount of token.
func (w *Writer) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	return w.send(ctx, token, ERC20ABI, "approve", spender, amount)
}

// Issue mints quantity index tokens to `to` through the issuance module.
func (w *Writer) Issue(ctx context.Context, module, set common.Address, quantity *big.Int, to common.Address) (common.Hash, error) {
	return w.send(ctx, module, BasicIssuanceModuleABI, "issue", set, quantity, to)
}

// Redeem burns quantity index tokens and sends the components to `to`.
func (w *Writer) Redeem(ctx context.Context, module, set common.Address, quantity *big.Int, to common.Address) (common.Hash, error) {
	return w.send(ctx, module, BasicIssuanceModuleABI, "redeem", set, quantity, to)
}

// Initialize enables the issuance module on set without a pre-issue hook.
func (w *Writer) Initialize(ctx context.Context, module, set common.Address) (common.Hash, error) {
	return w.send(ctx, module, BasicIssuanceModuleABI, "initialize", set, AddressZero)
}

// CreateSet deploys a new index through the SetTokenCreator.
func (w *Writer) CreateSet(ctx context.Context, creator common.Address, args *composer.CreateArgs) (common.Hash, error) {
	if args == nil {
		return common.Hash{}, composer.ErrIncompleteSelection
	}
	return w.send(ctx, creator, SetTokenCreatorABI, "create",
		args.Components, args.Units, args.Modules, args.Manager, args.Name, args.Symbol)
}

// BatchApprove approves spender for every component unit in one multicall
// aggregate transaction.
func (w *Writer) BatchApprove(ctx context.Context, multicall common.Address, units models.ComponentUnits, spender common.Address) (common.Hash, error) {
	if units.Len() != len(units.Units) {
		return common.Hash{}, models.ErrUnitsMismatch
	}
	calls := make([][]byte, units.Len())
	for i := range units.Addresses {
		data, err := EncodeApprove(spender, units.Units[i])
		if err != nil {
			return common.Hash{}, err
		}
		calls[i] = data
	}
	return w.send(ctx, multicall, MulticallABI, "aggregate", calls)
}

// Mint calls mint(to, amount) on a faucet token.
func (w *Writer) Mint(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	return w.send(ctx, token, ERC20ABI, "mint", to, amount)
}

// Transfer sends amount of token to `to`.
func (w *Writer) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	return w.send(ctx, token, ERC20ABI, "transfer", to, amount)
}
