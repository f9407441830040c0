// Package bridge defines the plugin interface the cross-chain builder uses to
// move value between chains. Every supported bridge (Across, LI.FI) implements it.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

var (
	// ErrNoRoute means the bridge has no viable path for the request. No funds
	// have moved when it is returned.
	ErrNoRoute = errors.New("no bridge route available")
	// ErrUnresolvedAccount means the account has no address on a chain the bridge needs.
	ErrUnresolvedAccount = errors.New("account address not resolved for chain")
	ErrInvalidRequest    = errors.New("invalid bridge request")
)

// Error tags a failure with the plugin that produced it.
type Error struct {
	Plugin string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s bridge: %v", e.Plugin, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err tagged with plugin, nil stays nil.
func Wrap(plugin string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Plugin: plugin, Err: err}
}

// Plugin moves an amount of one token from a source chain to a destination chain.
type Plugin interface {
	// Bridge returns the approval + bridge initiation batch on the source chain
	// and the amount expected on the destination chain. It either returns a
	// complete result or an error, never a partial result.
	Bridge(ctx context.Context, req Request) (*Result, error)

	// Name returns the plugin identifier, e.g. "across" or "lifi"
	Name() string

	// Close cleans up resources used by the plugin
	Close()
}

// Request describes one bridging operation.
type Request struct {
	SourceToken        common.Address
	DestinationToken   common.Address
	SourceChainID      uint64
	DestinationChainID uint64
	Amount             *big.Int
	Account            models.MultichainAccount
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.SourceChainID == 0 || r.DestinationChainID == 0 {
		return fmt.Errorf("%w: chain ids are required", ErrInvalidRequest)
	}
	if r.SourceChainID == r.DestinationChainID {
		return fmt.Errorf("%w: source and destination chain are the same", ErrInvalidRequest)
	}
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// Endpoints resolves the account address on the source and destination chain.
func (r Request) Endpoints() (from, to common.Address, err error) {
	from, ok := r.Account.AddressOn(r.SourceChainID)
	if !ok {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %d", ErrUnresolvedAccount, r.SourceChainID)
	}
	to, ok = r.Account.AddressOn(r.DestinationChainID)
	if !ok {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %d", ErrUnresolvedAccount, r.DestinationChainID)
	}
	return from, to, nil
}

// Result is what a plugin produced for a Request.
type Result struct {
	// ReceivedAmount is the amount expected on the destination chain
	ReceivedAmount *big.Int
	// Batch runs on the source chain
	Batch models.TxBatch
}
