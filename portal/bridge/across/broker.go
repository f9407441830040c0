// Package across bridges tokens through Across spoke pools: the relayer fee is
// quoted by the suggested-fees API and deducted from the deposited amount.
package across

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
)

const Name = "across"

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "across").Logger()
}

// Config holds the deposit parameters that are not part of the fee quote.
type Config struct {
	// FillDeadlineBuffer is added to the quote timestamp to get the fill deadline, in seconds
	FillDeadlineBuffer uint32
	ApproveGasLimit    uint64
	DepositGasLimit    uint64
}

// DefaultConfig returns a six hour fill deadline and fixed gas limits.
func DefaultConfig() Config {
	return Config{
		FillDeadlineBuffer: 21600,
		ApproveGasLimit:    100_000,
		DepositGasLimit:    300_000,
	}
}

// SuggestedFees is the subset of the suggested-fees answer the deposit needs.
type SuggestedFees struct {
	TotalRelayFee struct {
		Pct   json.Number `json:"pct"`
		Total json.Number `json:"total"`
	} `json:"totalRelayFee"`
	Timestamp           json.Number `json:"timestamp"`
	FillDeadline        json.Number `json:"fillDeadline,omitempty"`
	IsAmountTooLow      bool        `json:"isAmountTooLow"`
	ExclusiveRelayer    string      `json:"exclusiveRelayer"`
	ExclusivityDeadline json.Number `json:"exclusivityDeadline"`
	SpokePoolAddress    string      `json:"spokePoolAddress"`
	Limits              struct {
		MinDeposit json.Number `json:"minDeposit"`
		MaxDeposit json.Number `json:"maxDeposit"`
	} `json:"limits"`
}

// Broker implements bridge.Plugin on top of the Across API.
type Broker struct {
	api    *relayapi.Client
	config Config
}

// NewBroker creates the plugin. api points at the Across API base URL.
func NewBroker(api *relayapi.Client, config Config) *Broker {
	if config.FillDeadlineBuffer == 0 {
		config.FillDeadlineBuffer = DefaultConfig().FillDeadlineBuffer
	}
	return &Broker{api: api, config: config}
}

func (b *Broker) Name() string {
	return Name
}

func (b *Broker) Close() {
	b.api.Close()
}

// SuggestedFees queries the relayer fee for moving amount of inputToken.
func (b *Broker) SuggestedFees(ctx context.Context, req bridge.Request) (*SuggestedFees, error) {
	query := url.Values{
		"inputToken":         {req.SourceToken.Hex()},
		"outputToken":        {req.DestinationToken.Hex()},
		"originChainId":      {strconv.FormatUint(req.SourceChainID, 10)},
		"destinationChainId": {strconv.FormatUint(req.DestinationChainID, 10)},
		"amount":             {req.Amount.String()},
	}
	var fees SuggestedFees
	if err := b.api.GetJSON(ctx, "/suggested-fees", query, &fees); err != nil {
		// the API answers 400 for disabled routes and amounts out of bounds
		if relayapi.IsStatus(err, http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %v", bridge.ErrNoRoute, err)
		}
		return nil, fmt.Errorf("suggested fees: %w", err)
	}
	return &fees, nil
}

// Bridge quotes the relay fee and builds approve + depositV3 on the source chain.
func (b *Broker) Bridge(ctx context.Context, req bridge.Request) (*bridge.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, bridge.Wrap(Name, err)
	}
	depositor, recipient, err := req.Endpoints()
	if err != nil {
		return nil, bridge.Wrap(Name, err)
	}

	fees, err := b.SuggestedFees(ctx, req)
	if err != nil {
		return nil, bridge.Wrap(Name, err)
	}

	output, err := OutputAmount(req.Amount, fees)
	if err != nil {
		return nil, bridge.Wrap(Name, err)
	}

	batch, err := b.depositBatch(req, fees, depositor, recipient, output)
	if err != nil {
		return nil, bridge.Wrap(Name, err)
	}

	log.Info().
		Uint64("from_chain", req.SourceChainID).
		Uint64("to_chain", req.DestinationChainID).
		Str("amount", req.Amount.String()).
		Str("fee", fees.TotalRelayFee.Total.String()).
		Str("output", output.String()).
		Msg("Across deposit prepared")

	return &bridge.Result{ReceivedAmount: output, Batch: batch}, nil
}

// OutputAmount is the input amount minus the total relay fee. It returns
// bridge.ErrNoRoute when the fee eats the whole amount or the amount is
// outside the deposit limits.
func OutputAmount(amount *big.Int, fees *SuggestedFees) (*big.Int, error) {
	if fees.IsAmountTooLow {
		return nil, fmt.Errorf("%w: amount too low", bridge.ErrNoRoute)
	}
	fee, err := parseInt(fees.TotalRelayFee.Total)
	if err != nil {
		return nil, fmt.Errorf("relay fee: %w", err)
	}
	if fee.Cmp(amount) >= 0 {
		return nil, fmt.Errorf("%w: relay fee %s covers the amount %s", bridge.ErrNoRoute, fee, amount)
	}
	if minDeposit, err := parseInt(fees.Limits.MinDeposit); err == nil && amount.Cmp(minDeposit) < 0 {
		return nil, fmt.Errorf("%w: amount below minimum deposit %s", bridge.ErrNoRoute, minDeposit)
	}
	if maxDeposit, err := parseInt(fees.Limits.MaxDeposit); err == nil && maxDeposit.Sign() > 0 && amount.Cmp(maxDeposit) > 0 {
		return nil, fmt.Errorf("%w: amount above maximum deposit %s", bridge.ErrNoRoute, maxDeposit)
	}
	return new(big.Int).Sub(amount, fee), nil
}

func (b *Broker) depositBatch(req bridge.Request, fees *SuggestedFees, depositor, recipient common.Address, output *big.Int) (models.TxBatch, error) {
	if !common.IsHexAddress(fees.SpokePoolAddress) {
		return models.TxBatch{}, fmt.Errorf("quote has no spoke pool address")
	}
	spokePool := common.HexToAddress(fees.SpokePoolAddress)

	quoteTimestamp, err := parseUint32(fees.Timestamp)
	if err != nil {
		return models.TxBatch{}, fmt.Errorf("quote timestamp: %w", err)
	}
	fillDeadline := quoteTimestamp + b.config.FillDeadlineBuffer
	if fd, err := parseUint32(fees.FillDeadline); err == nil && fd > 0 {
		fillDeadline = fd
	}
	exclusivityDeadline, err := parseUint32(fees.ExclusivityDeadline)
	if err != nil {
		exclusivityDeadline = 0
	}
	exclusiveRelayer := common.Address{}
	if common.IsHexAddress(fees.ExclusiveRelayer) {
		exclusiveRelayer = common.HexToAddress(fees.ExclusiveRelayer)
	}

	approve, err := contracts.EncodeApprove(spokePool, req.Amount)
	if err != nil {
		return models.TxBatch{}, err
	}
	deposit, err := contracts.Pack(contracts.SpokePoolABI, "depositV3",
		depositor,
		recipient,
		req.SourceToken,
		req.DestinationToken,
		req.Amount,
		output,
		new(big.Int).SetUint64(req.DestinationChainID),
		exclusiveRelayer,
		quoteTimestamp,
		fillDeadline,
		exclusivityDeadline,
		[]byte{},
	)
	if err != nil {
		return models.TxBatch{}, err
	}

	return models.TxBatch{
		ChainID: req.SourceChainID,
		Calls: []models.Call{
			{To: req.SourceToken, Data: hexutil.Bytes(approve), GasLimit: b.config.ApproveGasLimit},
			{To: spokePool, Data: hexutil.Bytes(deposit), GasLimit: b.config.DepositGasLimit},
		},
		Batched: true,
	}, nil
}

func parseInt(n json.Number) (*big.Int, error) {
	if n == "" {
		return nil, errors.New("missing value")
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", n)
	}
	return v, nil
}

func parseUint32(n json.Number) (uint32, error) {
	if n == "" {
		return 0, errors.New("missing value")
	}
	v, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
