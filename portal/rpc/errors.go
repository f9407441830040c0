package rpc

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/composer"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/faucet"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/itx"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/registry"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/setindex"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/wallet"
)

var errInvalidAddress = errors.New("invalid address")

// toConnectError maps domain errors to connect codes. Precondition and
// missing-config errors keep their fixed messages.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	switch {
	case errors.Is(err, contracts.ErrPreconditionNotMet):
		return connect.NewError(connect.CodeFailedPrecondition, contracts.ErrPreconditionNotMet)
	case errors.Is(err, config.ErrMissingContractAddress):
		return connect.NewError(connect.CodeFailedPrecondition, config.ErrMissingContractAddress)
	case errors.Is(err, setindex.ErrActionNotAllowed),
		errors.Is(err, faucet.ErrCrossChainOff),
		errors.Is(err, itx.ErrInsufficientBalance):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, bridge.ErrNoRoute),
		errors.Is(err, itx.ErrTokenNotMapped),
		errors.Is(err, registry.ErrTokenNotFound),
		errors.Is(err, registry.ErrProductNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, executor.ErrCancelled),
		errors.Is(err, wallet.ErrUserRejected):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, executor.ErrInFlight):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, errInvalidAddress),
		errors.Is(err, bridge.ErrInvalidRequest),
		errors.Is(err, setindex.ErrInvalidPosition),
		errors.Is(err, composer.ErrIncompleteSelection),
		errors.Is(err, composer.ErrAmountTooSmall),
		errors.Is(err, registry.ErrUnknownRange):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeUnavailable, err)
	}
}
