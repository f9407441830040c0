// Package setindex composes the detail view of an index and gates the writes
// a user can make on it by the index state.
package setindex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/units"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "setindex").Logger()
}

var ErrInvalidPosition = errors.New("component position out of range")

// ChainReader is the read side the service needs. contracts.Reader implements it.
type ChainReader interface {
	SetMetadata(ctx context.Context, set, issuanceModule common.Address) (*models.SetMetadata, error)
	ComponentDetails(ctx context.Context, components []common.Address) ([]models.ComponentInfo, error)
	RequiredComponentUnits(ctx context.Context, module, set common.Address, quantity *big.Int) (models.ComponentUnits, error)
	Sets(ctx context.Context, controller common.Address) ([]common.Address, error)
}

// ChainWriter is the write side. contracts.Writer implements it.
type ChainWriter interface {
	Account() (common.Address, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	Issue(ctx context.Context, module, set common.Address, quantity *big.Int, to common.Address) (common.Hash, error)
	Redeem(ctx context.Context, module, set common.Address, quantity *big.Int, to common.Address) (common.Hash, error)
	Initialize(ctx context.Context, module, set common.Address) (common.Hash, error)
	BatchApprove(ctx context.Context, multicall common.Address, units models.ComponentUnits, spender common.Address) (common.Hash, error)
}

// Contracts are the protocol addresses the detail view works against.
type Contracts struct {
	Controller     common.Address
	IssuanceModule common.Address
	Multicall      common.Address
}

// Holding is one component of the distribution.
type Holding struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Units    *big.Int
	// Display is "<symbol> - <quantity rounded to an integer>"
	Display string
}

// Detail is the composed snapshot of one index.
type Detail struct {
	Metadata     *models.SetMetadata
	Components   []models.ComponentInfo
	Units        models.ComponentUnits
	Distribution []Holding
	State        State
	Actions      []Action
	IsManager    bool
	// Quantity is the index token amount (18 decimals) Units were computed for
	Quantity *big.Int
}

// Service reads index state and performs state-gated writes.
type Service struct {
	reader    ChainReader
	writer    ChainWriter
	contracts Contracts
	guard     *executor.Guard
}

// NewService wires the service. writer may be nil for a read-only service.
func NewService(reader ChainReader, writer ChainWriter, contracts Contracts, guard *executor.Guard) *Service {
	if guard == nil {
		guard = executor.NewGuard()
	}
	return &Service{reader: reader, writer: writer, contracts: contracts, guard: guard}
}

// List returns every index registered on the controller.
func (s *Service) List(ctx context.Context) ([]common.Address, error) {
	if s.contracts.Controller == (common.Address{}) {
		return nil, config.ErrMissingContractAddress
	}
	sets, err := s.reader.Sets(ctx, s.contracts.Controller)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	return sets, nil
}

// Detail reads the index metadata first, then component details and the
// required units for quantity concurrently, and composes the distribution.
// The issuance module only answers required units for initialized indexes,
// so an uninitialized index lists its components with zero units.
func (s *Service) Detail(ctx context.Context, set common.Address, quantity *big.Int) (*Detail, error) {
	if s.contracts.IssuanceModule == (common.Address{}) {
		return nil, config.ErrMissingContractAddress
	}
	if quantity == nil || quantity.Sign() <= 0 {
		quantity = oneIndexToken()
	}

	meta, err := s.reader.SetMetadata(ctx, set, s.contracts.IssuanceModule)
	if err != nil {
		return nil, err
	}
	state := StateOf(meta)

	var (
		infos    []models.ComponentInfo
		required models.ComponentUnits
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		infos, err = s.reader.ComponentDetails(gctx, meta.Components)
		return err
	})
	if state == StateInitialized {
		g.Go(func() (err error) {
			required, err = s.reader.RequiredComponentUnits(gctx, s.contracts.IssuanceModule, set, quantity)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	distribution := Distribution(required, infos)
	if state == StateUninitialized {
		distribution = PendingDistribution(meta.Components, infos)
	}
	detail := &Detail{
		Metadata:     meta,
		Components:   infos,
		Units:        required,
		Distribution: distribution,
		State:        state,
		Actions:      state.Actions(),
		Quantity:     quantity,
	}
	if s.writer != nil {
		if account, err := s.writer.Account(); err == nil {
			detail.IsManager = account == meta.Manager
		}
	}
	return detail, nil
}

// Distribution pairs required units with component details by address.
// Components without details show as "N/A" with 0 decimals.
func Distribution(required models.ComponentUnits, infos []models.ComponentInfo) []Holding {
	byAddr := make(map[common.Address]models.ComponentInfo, len(infos))
	for _, info := range infos {
		byAddr[info.Address] = info
	}
	out := make([]Holding, 0, required.Len())
	for i, addr := range required.Addresses {
		out = append(out, holding(addr, byAddr, required.Units[i]))
	}
	return out
}

// PendingDistribution lists components in index order with zero units.
func PendingDistribution(components []common.Address, infos []models.ComponentInfo) []Holding {
	byAddr := make(map[common.Address]models.ComponentInfo, len(infos))
	for _, info := range infos {
		byAddr[info.Address] = info
	}
	out := make([]Holding, 0, len(components))
	for _, addr := range components {
		out = append(out, holding(addr, byAddr, big.NewInt(0)))
	}
	return out
}

func holding(addr common.Address, byAddr map[common.Address]models.ComponentInfo, amount *big.Int) Holding {
	info, ok := byAddr[addr]
	if !ok {
		info = models.ComponentInfo{Address: addr, Symbol: "N/A"}
	}
	qty := units.FormatUnits(amount, int32(info.Decimals))
	return Holding{
		Address:  addr,
		Symbol:   info.Symbol,
		Decimals: info.Decimals,
		Units:    amount,
		Display:  fmt.Sprintf("%s - %s", info.Symbol, qty.StringFixed(0)),
	}
}

// ActionResult is a submitted write and the state re-read after it.
type ActionResult struct {
	TxHash common.Hash
	// Detail is nil when the refresh after the write failed
	Detail *Detail
}

// Initialize enables the issuance module on an uninitialized index.
func (s *Service) Initialize(ctx context.Context, set common.Address) (*ActionResult, error) {
	return s.run(ctx, ActionInitialize, set, nil, func(*Detail) (common.Hash, error) {
		return s.writer.Initialize(ctx, s.contracts.IssuanceModule, set)
	})
}

// Approve approves the issuance module for the component at position.
func (s *Service) Approve(ctx context.Context, set common.Address, quantity *big.Int, position int) (*ActionResult, error) {
	return s.run(ctx, ActionApprove, set, quantity, func(d *Detail) (common.Hash, error) {
		if position < 0 || position >= d.Units.Len() {
			return common.Hash{}, fmt.Errorf("%w: %d of %d", ErrInvalidPosition, position, d.Units.Len())
		}
		return s.writer.Approve(ctx, d.Units.Addresses[position], s.contracts.IssuanceModule, d.Units.Units[position])
	})
}

// BatchApprove approves every component in one multicall transaction.
func (s *Service) BatchApprove(ctx context.Context, set common.Address, quantity *big.Int) (*ActionResult, error) {
	if s.contracts.Multicall == (common.Address{}) {
		return nil, config.ErrMissingContractAddress
	}
	return s.run(ctx, ActionBatchApprove, set, quantity, func(d *Detail) (common.Hash, error) {
		return s.writer.BatchApprove(ctx, s.contracts.Multicall, d.Units, s.contracts.IssuanceModule)
	})
}

// Issue mints quantity index tokens to the connected account.
func (s *Service) Issue(ctx context.Context, set common.Address, quantity *big.Int) (*ActionResult, error) {
	return s.run(ctx, ActionIssue, set, quantity, func(d *Detail) (common.Hash, error) {
		to, err := s.writer.Account()
		if err != nil {
			return common.Hash{}, err
		}
		return s.writer.Issue(ctx, s.contracts.IssuanceModule, set, d.Quantity, to)
	})
}

// Redeem burns quantity index tokens of the connected account.
func (s *Service) Redeem(ctx context.Context, set common.Address, quantity *big.Int) (*ActionResult, error) {
	return s.run(ctx, ActionRedeem, set, quantity, func(d *Detail) (common.Hash, error) {
		to, err := s.writer.Account()
		if err != nil {
			return common.Hash{}, err
		}
		return s.writer.Redeem(ctx, s.contracts.IssuanceModule, set, d.Quantity, to)
	})
}

// run reads the current state, checks the action is enabled, sends the write
// and re-reads the state.
func (s *Service) run(ctx context.Context, action Action, set common.Address, quantity *big.Int, write func(*Detail) (common.Hash, error)) (*ActionResult, error) {
	if s.writer == nil {
		return nil, fmt.Errorf("%s: no wallet", action)
	}
	if _, err := s.writer.Account(); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(string(action) + ":" + set.Hex())
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.Detail(ctx, set, quantity)
	if err != nil {
		return nil, err
	}
	if err := current.State.Check(action); err != nil {
		return nil, err
	}

	hash, err := write(current)
	if err != nil {
		return nil, err
	}
	log.Info().Str("action", string(action)).Str("set", set.Hex()).Str("hash", hash.Hex()).Msg("Index action submitted")

	refreshed, err := s.Refresh(ctx, set, quantity)
	if err != nil {
		log.Warn().Err(err).Str("set", set.Hex()).Msg("Failed to refresh index after write")
	}
	return &ActionResult{TxHash: hash, Detail: refreshed}, nil
}

// Refresh re-reads the detail view.
func (s *Service) Refresh(ctx context.Context, set common.Address, quantity *big.Int) (*Detail, error) {
	return s.Detail(ctx, set, quantity)
}

func oneIndexToken() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(units.EtherDecimals), nil)
}
