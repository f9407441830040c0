// Package lifi bridges through the LI.FI route aggregator: the fastest route is
// requested and its prebuilt step transactions are replayed on the source chain.
package lifi

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
)

const Name = "lifi"

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "lifi").Logger()
}

// Config holds the route options.
type Config struct {
	// SlippageBps is basis points (e.g., 50 = 0.5%)
	SlippageBps     uint32
	Order           string
	ApproveGasLimit uint64
}

// DefaultConfig asks for the fastest route with 0.5% slippage.
func DefaultConfig() Config {
	return Config{SlippageBps: 50, Order: "FASTEST", ApproveGasLimit: 100_000}
}

// RoutesRequest is the body of POST /advanced/routes
type RoutesRequest struct {
	FromChainID      uint64       `json:"fromChainId"`
	ToChainID        uint64       `json:"toChainId"`
	FromTokenAddress string       `json:"fromTokenAddress"`
	ToTokenAddress   string       `json:"toTokenAddress"`
	FromAmount       string       `json:"fromAmount"`
	FromAddress      string       `json:"fromAddress,omitempty"`
	ToAddress        string       `json:"toAddress,omitempty"`
	Options          RouteOptions `json:"options"`
}

type RouteOptions struct {
	Order    string  `json:"order"`
	Slippage float64 `json:"slippage"`
}

// TransactionRequest is the prebuilt call of a route step.
type TransactionRequest struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gasLimit"`
	ChainID  uint64 `json:"chainId"`
}

type Estimate struct {
	ApprovalAddress string `json:"approvalAddress"`
}

type Step struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	Tool               string              `json:"tool"`
	Estimate           Estimate            `json:"estimate"`
	TransactionRequest *TransactionRequest `json:"transactionRequest,omitempty"`
}

type Route struct {
	ID          string `json:"id"`
	ToAmountMin string `json:"toAmountMin"`
	Steps       []Step `json:"steps"`
}

type RoutesResponse struct {
	Routes []Route `json:"routes"`
}

// Broker implements bridge.Plugin on top of the LI.FI API.
type Broker struct {
	api    *relayapi.Client
	config Config
}

// NewBroker creates the plugin. api points at the LI.FI API base URL (e.g. https://li.quest/v1).
func NewBroker(api *relayapi.Client, config Config) *Broker {
	if config.Order == "" {
		config.Order = DefaultConfig().Order
	}
	return &Broker{api: api, config: config}
}

func (b *Broker) Name() string {
	return Name
}

func (b *Broker) Close() {
	b.api.Close()
}

// Routes fetches routes for the request, best first.
func (b *Broker) Routes(ctx context.Context, req bridge.Request, from, to common.Address) ([]Route, error) {
	body := RoutesRequest{
		FromChainID:      req.SourceChainID,
		ToChainID:        req.DestinationChainID,
		FromTokenAddress: req.SourceToken.Hex(),
		ToTokenAddress:   req.DestinationToken.Hex(),
		FromAmount:       req.Amount.String(),
		FromAddress:      from.Hex(),
		ToAddress:        to.Hex(),
		Options: RouteOptions{
			Order:    b.config.Order,
			Slippage: bridge.SlippageFraction(b.config.SlippageBps).InexactFloat64(),
		},
	}
	var resp RoutesResponse
	if err := b.api.PostJSON(ctx, "/advanced/routes", body, &resp); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	return resp.Routes, nil
}

// stepTransaction fills in the transaction request of a step that came without one.
func (b *Broker) stepTransaction(ctx context.Context, step Step) (*TransactionRequest, error) {
	if step.TransactionRequest != nil {
		return step.TransactionRequest, nil
	}
	var populated Step
	if err := b.api.PostJSON(ctx, "/advanced/stepTransaction", step, &populated); err != nil {
		return nil, fmt.Errorf("step %s transaction: %w", step.ID, err)
	}
	if populated.TransactionRequest == nil {
		return nil, fmt.Errorf("step %s has no transaction request", step.ID)
	}
	return populated.TransactionRequest, nil
}

// Bridge requests the fastest route and replays its steps on the source chain.
func (b *Broker) Bridge(ctx context.Context, req bridge.Request) (*bridge.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, bridge.Wrap(Name, err)
	}
	from, to, err := req.Endpoints()
	if err != nil {
		return nil, bridge.Wrap(Name, err)
	}

	routes, err := b.Routes(ctx, req, from, to)
	if err != nil {
		return nil, bridge.Wrap(Name, err)
	}
	if len(routes) == 0 {
		return nil, bridge.Wrap(Name, fmt.Errorf("%w: %d -> %d", bridge.ErrNoRoute, req.SourceChainID, req.DestinationChainID))
	}
	route := routes[0]

	received, ok := new(big.Int).SetString(route.ToAmountMin, 10)
	if !ok {
		return nil, bridge.Wrap(Name, fmt.Errorf("invalid toAmountMin %q", route.ToAmountMin))
	}

	calls := make([]models.Call, 0, len(route.Steps)+1)
	for i, step := range route.Steps {
		if i == 0 && common.IsHexAddress(step.Estimate.ApprovalAddress) && req.SourceToken != (common.Address{}) {
			approve, err := contracts.EncodeApprove(common.HexToAddress(step.Estimate.ApprovalAddress), req.Amount)
			if err != nil {
				return nil, bridge.Wrap(Name, err)
			}
			calls = append(calls, models.Call{To: req.SourceToken, Data: approve, GasLimit: b.config.ApproveGasLimit})
		}

		txReq, err := b.stepTransaction(ctx, step)
		if err != nil {
			return nil, bridge.Wrap(Name, err)
		}
		call, err := toCall(txReq)
		if err != nil {
			return nil, bridge.Wrap(Name, fmt.Errorf("step %s: %w", step.ID, err))
		}
		calls = append(calls, call)
	}

	log.Info().
		Str("route", route.ID).
		Int("steps", len(route.Steps)).
		Str("to_amount_min", received.String()).
		Msg("LI.FI route prepared")

	return &bridge.Result{
		ReceivedAmount: received,
		Batch:          models.TxBatch{ChainID: req.SourceChainID, Calls: calls, Batched: true},
	}, nil
}

func toCall(tx *TransactionRequest) (models.Call, error) {
	if !common.IsHexAddress(tx.To) {
		return models.Call{}, fmt.Errorf("invalid target %q", tx.To)
	}
	data, err := hexutil.Decode(tx.Data)
	if err != nil {
		return models.Call{}, fmt.Errorf("invalid data: %w", err)
	}
	value, err := parseQuantity(tx.Value)
	if err != nil {
		return models.Call{}, fmt.Errorf("invalid value: %w", err)
	}
	gas, err := parseQuantity(tx.GasLimit)
	if err != nil {
		return models.Call{}, fmt.Errorf("invalid gas limit: %w", err)
	}
	return models.Call{
		To:       common.HexToAddress(tx.To),
		Data:     data,
		Value:    (*hexutil.Big)(value),
		GasLimit: gas.Uint64(),
	}, nil
}

// parseQuantity accepts 0x hex and decimal strings. Empty means zero.
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex quantity %q", s)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}
