package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/composer"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/faucet"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/registry"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/setindex"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/units"
)

// ServiceName is the connect service every portal procedure lives under.
const ServiceName = "portal.v1.PortalService"

const (
	ListIndexesProcedure        = "/" + ServiceName + "/ListIndexes"
	GetIndexProcedure           = "/" + ServiceName + "/GetIndex"
	PreviewCompositionProcedure = "/" + ServiceName + "/PreviewComposition"
	CreateIndexProcedure        = "/" + ServiceName + "/CreateIndex"
	InitializeIndexProcedure    = "/" + ServiceName + "/InitializeIndex"
	ApproveComponentsProcedure  = "/" + ServiceName + "/ApproveComponents"
	IssueIndexProcedure         = "/" + ServiceName + "/IssueIndex"
	RedeemIndexProcedure        = "/" + ServiceName + "/RedeemIndex"
	FaucetMintProcedure         = "/" + ServiceName + "/FaucetMint"
)

// IndexService reads and acts on deployed indexes. setindex.Service implements it.
type IndexService interface {
	List(ctx context.Context) ([]common.Address, error)
	Detail(ctx context.Context, set common.Address, quantity *big.Int) (*setindex.Detail, error)
	Initialize(ctx context.Context, set common.Address) (*setindex.ActionResult, error)
	Approve(ctx context.Context, set common.Address, quantity *big.Int, position int) (*setindex.ActionResult, error)
	BatchApprove(ctx context.Context, set common.Address, quantity *big.Int) (*setindex.ActionResult, error)
	Issue(ctx context.Context, set common.Address, quantity *big.Int) (*setindex.ActionResult, error)
	Redeem(ctx context.Context, set common.Address, quantity *big.Int) (*setindex.ActionResult, error)
}

// IndexCreator deploys new indexes. contracts.Writer implements it.
type IndexCreator interface {
	Account() (common.Address, error)
	CreateSet(ctx context.Context, creator common.Address, args *composer.CreateArgs) (common.Hash, error)
}

// FaucetService hands out test tokens. faucet.Faucet implements it.
type FaucetService interface {
	DirectMint(ctx context.Context, receiver common.Address) (*faucet.Result, error)
	CrossChainMint(ctx context.Context, receiver common.Address) (*faucet.Result, error)
}

// Services are the dependencies of the portal API. Nil services answer with
// a precondition error.
type Services struct {
	Tokens    *registry.TokenRegistry
	Catalog   *registry.Catalog
	Indexes   IndexService
	Creator   IndexCreator
	Faucet    FaucetService
	Contracts config.ContractsConfig
}

// PortalServer implements the portal procedures and the REST data routes.
type PortalServer struct {
	Services
}

func NewPortalServer(services Services) *PortalServer {
	return &PortalServer{Services: services}
}

// Ready reports whether the static data needed by every page is loaded.
func (p *PortalServer) Ready() error {
	if p.Tokens == nil || p.Tokens.Len() == 0 {
		return fmt.Errorf("token registry not loaded")
	}
	return nil
}

// Mount registers the connect procedures on mux.
func (p *PortalServer) Mount(mux chi.Router, opts ...connect.HandlerOption) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))

	mux.Handle(ListIndexesProcedure, connect.NewUnaryHandler(ListIndexesProcedure, p.ListIndexes, opts...))
	mux.Handle(GetIndexProcedure, connect.NewUnaryHandler(GetIndexProcedure, p.GetIndex, opts...))
	mux.Handle(PreviewCompositionProcedure, connect.NewUnaryHandler(PreviewCompositionProcedure, p.PreviewComposition, opts...))
	mux.Handle(CreateIndexProcedure, connect.NewUnaryHandler(CreateIndexProcedure, p.CreateIndex, opts...))
	mux.Handle(InitializeIndexProcedure, connect.NewUnaryHandler(InitializeIndexProcedure, p.InitializeIndex, opts...))
	mux.Handle(ApproveComponentsProcedure, connect.NewUnaryHandler(ApproveComponentsProcedure, p.ApproveComponents, opts...))
	mux.Handle(IssueIndexProcedure, connect.NewUnaryHandler(IssueIndexProcedure, p.IssueIndex, opts...))
	mux.Handle(RedeemIndexProcedure, connect.NewUnaryHandler(RedeemIndexProcedure, p.RedeemIndex, opts...))
	mux.Handle(FaucetMintProcedure, connect.NewUnaryHandler(FaucetMintProcedure, p.FaucetMint, opts...))
}

// ListIndexes returns every index registered on the controller.
func (p *PortalServer) ListIndexes(
	ctx context.Context,
	req *connect.Request[models.ListIndexesRequest],
) (*connect.Response[models.ListIndexesResponse], error) {
	if p.Indexes == nil {
		return nil, toConnectError(config.ErrMissingContractAddress)
	}
	sets, err := p.Indexes.List(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := &models.ListIndexesResponse{Indexes: make([]string, 0, len(sets))}
	for _, s := range sets {
		out.Indexes = append(out.Indexes, s.Hex())
	}
	return connect.NewResponse(out), nil
}

// GetIndex returns the composed detail view of one index.
func (p *PortalServer) GetIndex(
	ctx context.Context,
	req *connect.Request[models.GetIndexRequest],
) (*connect.Response[models.GetIndexResponse], error) {
	if p.Indexes == nil {
		return nil, toConnectError(config.ErrMissingContractAddress)
	}
	set, err := parseAddress(req.Msg.Address)
	if err != nil {
		return nil, toConnectError(err)
	}
	quantity, err := parseQuantity(req.Msg.Quantity)
	if err != nil {
		return nil, toConnectError(err)
	}

	detail, err := p.Indexes.Detail(ctx, set, quantity)
	if err != nil {
		return nil, toConnectError(err)
	}
	view := indexView(set, detail)
	if req.Msg.User != "" {
		user, err := parseAddress(req.Msg.User)
		if err != nil {
			return nil, toConnectError(err)
		}
		view.IsManager = user == detail.Metadata.Manager
	}
	return connect.NewResponse(view), nil
}

// PreviewComposition computes the shares of a selection without creating anything.
func (p *PortalServer) PreviewComposition(
	ctx context.Context,
	req *connect.Request[models.PreviewCompositionRequest],
) (*connect.Response[models.PreviewCompositionResponse], error) {
	session, err := p.session(req.Msg.Items)
	if err != nil {
		return nil, toConnectError(err)
	}

	selected := session.Selected()
	out := &models.PreviewCompositionResponse{Total: session.Total().String()}
	for i, share := range session.Percentages() {
		raw, err := units.ParseDecimal(share.Amount, selected[i].Token.Decimals)
		if err != nil {
			return nil, toConnectError(err)
		}
		out.Shares = append(out.Shares, models.CompositionShare{
			Ticker:     share.Ticker,
			Amount:     share.Amount.String(),
			Percentage: share.Percentage.StringFixed(2),
			Units:      raw.String(),
		})
	}
	return connect.NewResponse(out), nil
}

// CreateIndex deploys a new index through the SetTokenCreator with the
// issuance and streaming fee modules enabled and the caller as manager.
func (p *PortalServer) CreateIndex(
	ctx context.Context,
	req *connect.Request[models.CreateIndexRequest],
) (*connect.Response[models.TxResponse], error) {
	creator, err := p.Contracts.Address("set_token_creator")
	if err != nil {
		return nil, toConnectError(err)
	}
	issuance, err := p.Contracts.Address("basic_issuance_module")
	if err != nil {
		return nil, toConnectError(err)
	}
	streamingFee, err := p.Contracts.Address("streaming_fee_module")
	if err != nil {
		return nil, toConnectError(err)
	}

	session, err := p.session(req.Msg.Items)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := session.Validate(req.Msg.Name, req.Msg.Symbol); err != nil {
		return nil, toConnectError(err)
	}
	if p.Creator == nil {
		return nil, toConnectError(contracts.ErrPreconditionNotMet)
	}
	manager, err := p.Creator.Account()
	if err != nil {
		return nil, toConnectError(err)
	}

	args, err := session.CreateArgs(req.Msg.Name, req.Msg.Symbol, []common.Address{issuance, streamingFee}, manager)
	if err != nil {
		return nil, toConnectError(err)
	}
	hash, err := p.Creator.CreateSet(ctx, creator, args)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&models.TxResponse{TxHash: hash.Hex()}), nil
}

// InitializeIndex enables the issuance module of an index.
func (p *PortalServer) InitializeIndex(
	ctx context.Context,
	req *connect.Request[models.IndexActionRequest],
) (*connect.Response[models.TxResponse], error) {
	return p.indexAction(req.Msg, func(set common.Address, _ *big.Int) (*setindex.ActionResult, error) {
		return p.Indexes.Initialize(ctx, set)
	})
}

// ApproveComponents approves one component when Position is set, every
// component through multicall otherwise.
func (p *PortalServer) ApproveComponents(
	ctx context.Context,
	req *connect.Request[models.IndexActionRequest],
) (*connect.Response[models.TxResponse], error) {
	return p.indexAction(req.Msg, func(set common.Address, quantity *big.Int) (*setindex.ActionResult, error) {
		if req.Msg.Position != nil {
			return p.Indexes.Approve(ctx, set, quantity, *req.Msg.Position)
		}
		return p.Indexes.BatchApprove(ctx, set, quantity)
	})
}

// IssueIndex issues index tokens to the connected account.
func (p *PortalServer) IssueIndex(
	ctx context.Context,
	req *connect.Request[models.IndexActionRequest],
) (*connect.Response[models.TxResponse], error) {
	return p.indexAction(req.Msg, func(set common.Address, quantity *big.Int) (*setindex.ActionResult, error) {
		return p.Indexes.Issue(ctx, set, quantity)
	})
}

// RedeemIndex redeems index tokens of the connected account.
func (p *PortalServer) RedeemIndex(
	ctx context.Context,
	req *connect.Request[models.IndexActionRequest],
) (*connect.Response[models.TxResponse], error) {
	return p.indexAction(req.Msg, func(set common.Address, quantity *big.Int) (*setindex.ActionResult, error) {
		return p.Indexes.Redeem(ctx, set, quantity)
	})
}

// FaucetMint runs the direct or the cross-chain faucet flow.
func (p *PortalServer) FaucetMint(
	ctx context.Context,
	req *connect.Request[models.FaucetMintRequest],
) (*connect.Response[models.FaucetMintResponse], error) {
	if p.Faucet == nil {
		return nil, toConnectError(contracts.ErrPreconditionNotMet)
	}
	var receiver common.Address
	if req.Msg.Receiver != "" {
		addr, err := parseAddress(req.Msg.Receiver)
		if err != nil {
			return nil, toConnectError(err)
		}
		receiver = addr
	}

	var (
		res *faucet.Result
		err error
	)
	switch strings.ToLower(req.Msg.Mode) {
	case "", "direct":
		res, err = p.Faucet.DirectMint(ctx, receiver)
	case "crosschain":
		res, err = p.Faucet.CrossChainMint(ctx, receiver)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown faucet mode %q", req.Msg.Mode))
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	out := &models.FaucetMintResponse{Outcome: string(res.Outcome), Messages: res.Messages}
	if res.ItxHash != (common.Hash{}) {
		out.ItxHash = res.ItxHash.Hex()
	}
	for _, h := range res.TxHashes {
		out.TxHashes = append(out.TxHashes, h.Hex())
	}
	return connect.NewResponse(out), nil
}

func (p *PortalServer) indexAction(
	msg *models.IndexActionRequest,
	run func(set common.Address, quantity *big.Int) (*setindex.ActionResult, error),
) (*connect.Response[models.TxResponse], error) {
	if p.Indexes == nil {
		return nil, toConnectError(config.ErrMissingContractAddress)
	}
	set, err := parseAddress(msg.Address)
	if err != nil {
		return nil, toConnectError(err)
	}
	quantity, err := parseQuantity(msg.Quantity)
	if err != nil {
		return nil, toConnectError(err)
	}

	res, err := run(set, quantity)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := &models.TxResponse{TxHash: res.TxHash.Hex()}
	if res.Detail != nil {
		out.Index = indexView(set, res.Detail)
	}
	return connect.NewResponse(out), nil
}

// session replays a selection into a composer session.
func (p *PortalServer) session(items []models.CompositionItem) (*composer.Session, error) {
	if p.Tokens == nil {
		return nil, fmt.Errorf("%w: token registry not loaded", contracts.ErrPreconditionNotMet)
	}
	session := composer.NewSession(p.Tokens)
	for _, item := range items {
		if err := session.Select(item.Ticker); err != nil {
			return nil, err
		}
		if item.Amount == "" {
			continue
		}
		if err := session.SetAmount(item.Ticker, item.Amount); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func indexView(set common.Address, d *setindex.Detail) *models.GetIndexResponse {
	meta := d.Metadata
	view := &models.GetIndexResponse{
		Address:   set.Hex(),
		Name:      meta.Name,
		Symbol:    meta.Symbol,
		Decimals:  meta.Decimals,
		Manager:   meta.Manager.Hex(),
		IsManager: d.IsManager,
		State:     string(d.State),
	}
	if meta.TotalSupply != nil {
		view.TotalSupply = meta.TotalSupply.String()
	}
	for _, a := range d.Actions {
		view.Actions = append(view.Actions, string(a))
	}
	for _, h := range d.Distribution {
		view.Components = append(view.Components, models.ComponentView{
			Address:  h.Address.Hex(),
			Symbol:   h.Symbol,
			Decimals: h.Decimals,
			Units:    h.Units.String(),
			Display:  h.Display,
		})
	}
	return view
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", errInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// parseQuantity reads whole index tokens, "1" when empty.
func parseQuantity(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		s = "1"
	}
	q, err := units.ParseEther(s)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid quantity %q: %w", s, err))
	}
	if q.Sign() <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("quantity must be positive"))
	}
	return q, nil
}
