package setindex_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/setindex"
)

var (
	set       = common.HexToAddress("0x00000000000000000000000000000000000005e7")
	module    = common.HexToAddress("0x0000000000000000000000000000000000000b1a")
	multicall = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	wbtc      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	usdc      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	manager   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeReader struct {
	mu          sync.Mutex
	initialized bool
	reads       int
	unitReads   int
	failDetails bool
}

func (f *fakeReader) SetMetadata(_ context.Context, addr, issuance common.Address) (*models.SetMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return &models.SetMetadata{
		Address:             addr,
		Name:                "Blue Chip",
		Symbol:              "BLUE",
		TotalSupply:         big.NewInt(0),
		Decimals:            18,
		Components:          []common.Address{wbtc, usdc},
		Manager:             manager,
		IsInitializedModule: f.initialized,
	}, nil
}

func (f *fakeReader) ComponentDetails(_ context.Context, components []common.Address) ([]models.ComponentInfo, error) {
	if f.failDetails {
		return nil, errors.New("rpc down")
	}
	return []models.ComponentInfo{
		{Address: wbtc, Symbol: "WBTC", Decimals: 8},
		{Address: usdc, Symbol: "USDC", Decimals: 6},
	}, nil
}

func (f *fakeReader) RequiredComponentUnits(_ context.Context, _, _ common.Address, quantity *big.Int) (models.ComponentUnits, error) {
	f.mu.Lock()
	f.unitReads++
	initialized := f.initialized
	f.mu.Unlock()
	// the issuance module reverts for sets it has not been initialized on
	if !initialized {
		return models.ComponentUnits{}, errors.New("execution reverted: Must be a valid and initialized SetToken")
	}
	// 2 WBTC and 150.6 USDC per index token
	perToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	scale := func(v int64) *big.Int {
		out := new(big.Int).Mul(big.NewInt(v), quantity)
		return out.Quo(out, perToken)
	}
	return models.NewComponentUnits(
		[]common.Address{wbtc, usdc},
		[]*big.Int{scale(200_000_000), scale(150_600_000)},
	)
}

func (f *fakeReader) Sets(context.Context, common.Address) ([]common.Address, error) {
	return []common.Address{set}, nil
}

type fakeWriter struct {
	reader   *fakeReader
	account  common.Address
	notReady bool
	sent     []string
	approved []common.Address
}

func (f *fakeWriter) Account() (common.Address, error) {
	if f.notReady {
		return common.Address{}, contracts.ErrPreconditionNotMet
	}
	return f.account, nil
}

func (f *fakeWriter) record(name string) (common.Hash, error) {
	f.sent = append(f.sent, name)
	return common.HexToHash("0x01"), nil
}

func (f *fakeWriter) Approve(_ context.Context, token, _ common.Address, _ *big.Int) (common.Hash, error) {
	f.approved = append(f.approved, token)
	return f.record("approve")
}

func (f *fakeWriter) Issue(context.Context, common.Address, common.Address, *big.Int, common.Address) (common.Hash, error) {
	return f.record("issue")
}

func (f *fakeWriter) Redeem(context.Context, common.Address, common.Address, *big.Int, common.Address) (common.Hash, error) {
	return f.record("redeem")
}

func (f *fakeWriter) Initialize(context.Context, common.Address, common.Address) (common.Hash, error) {
	// the chain flips the flag once the initialize tx lands
	f.reader.mu.Lock()
	f.reader.initialized = true
	f.reader.mu.Unlock()
	return f.record("initialize")
}

func (f *fakeWriter) BatchApprove(_ context.Context, _ common.Address, units models.ComponentUnits, _ common.Address) (common.Hash, error) {
	f.approved = append(f.approved, units.Addresses...)
	return f.record("batch_approve")
}

func newService(initialized bool) (*setindex.Service, *fakeReader, *fakeWriter) {
	reader := &fakeReader{initialized: initialized}
	writer := &fakeWriter{reader: reader, account: manager}
	svc := setindex.NewService(reader, writer, setindex.Contracts{
		Controller:     common.HexToAddress("0x0c"),
		IssuanceModule: module,
		Multicall:      multicall,
	}, executor.NewGuard())
	return svc, reader, writer
}

func TestDetailComposesDistribution(t *testing.T) {
	svc, _, _ := newService(true)

	detail, err := svc.Detail(t.Context(), set, nil)
	assert.NoError(t, err)
	assert.Equal(t, detail.Metadata.Symbol, "BLUE")
	assert.Equal(t, detail.State, setindex.StateInitialized)
	assert.True(t, detail.IsManager)
	assert.Equal(t, len(detail.Distribution), 2)
	assert.Equal(t, detail.Distribution[0].Display, "WBTC - 2")
	assert.Equal(t, detail.Distribution[1].Display, "USDC - 151")
	assert.Equal(t, detail.Quantity.String(), "1000000000000000000")
}

func TestUninitializedOnlyAllowsInitialize(t *testing.T) {
	svc, _, writer := newService(false)

	detail, err := svc.Detail(t.Context(), set, nil)
	assert.NoError(t, err)
	assert.Equal(t, detail.State, setindex.StateUninitialized)
	assert.Equal(t, detail.Actions, []setindex.Action{setindex.ActionInitialize})
	assert.Equal(t, detail.Units.Len(), 0)
	assert.Equal(t, len(detail.Distribution), 2)
	assert.Equal(t, detail.Distribution[0].Display, "WBTC - 0")
	assert.Equal(t, detail.Distribution[1].Display, "USDC - 0")

	qty := big.NewInt(1e18)
	_, err = svc.Issue(t.Context(), set, qty)
	assert.True(t, errors.Is(err, setindex.ErrActionNotAllowed))
	_, err = svc.Redeem(t.Context(), set, qty)
	assert.True(t, errors.Is(err, setindex.ErrActionNotAllowed))
	_, err = svc.Approve(t.Context(), set, qty, 0)
	assert.True(t, errors.Is(err, setindex.ErrActionNotAllowed))
	_, err = svc.BatchApprove(t.Context(), set, qty)
	assert.True(t, errors.Is(err, setindex.ErrActionNotAllowed))
	assert.Equal(t, len(writer.sent), 0)
}

func TestInitializeRefreshesState(t *testing.T) {
	svc, reader, writer := newService(false)

	res, err := svc.Initialize(t.Context(), set)
	assert.NoError(t, err)
	assert.Equal(t, writer.sent, []string{"initialize"})
	assert.NotNil(t, res.Detail)
	assert.Equal(t, res.Detail.State, setindex.StateInitialized)
	assert.Equal(t, res.Detail.Distribution[0].Display, "WBTC - 2")
	assert.Equal(t, reader.reads, 2)
	assert.Equal(t, reader.unitReads, 1)

	_, err = svc.Initialize(t.Context(), set)
	assert.True(t, errors.Is(err, setindex.ErrActionNotAllowed))
}

func TestInitializedActions(t *testing.T) {
	svc, _, writer := newService(true)
	qty := big.NewInt(1e18)

	_, err := svc.Approve(t.Context(), set, qty, 1)
	assert.NoError(t, err)
	assert.Equal(t, writer.approved, []common.Address{usdc})

	_, err = svc.Approve(t.Context(), set, qty, 2)
	assert.True(t, errors.Is(err, setindex.ErrInvalidPosition))

	_, err = svc.BatchApprove(t.Context(), set, qty)
	assert.NoError(t, err)
	_, err = svc.Issue(t.Context(), set, qty)
	assert.NoError(t, err)
	_, err = svc.Redeem(t.Context(), set, qty)
	assert.NoError(t, err)
	assert.Equal(t, writer.sent, []string{"approve", "batch_approve", "issue", "redeem"})
}

func TestWritesNeedConnectedWallet(t *testing.T) {
	svc, reader, writer := newService(true)
	writer.notReady = true

	_, err := svc.Issue(t.Context(), set, big.NewInt(1e18))
	assert.True(t, errors.Is(err, contracts.ErrPreconditionNotMet))
	assert.Equal(t, reader.reads, 0)
	assert.Equal(t, len(writer.sent), 0)
}

func TestMissingContractAddress(t *testing.T) {
	svc := setindex.NewService(&fakeReader{}, nil, setindex.Contracts{}, nil)

	_, err := svc.List(t.Context())
	assert.True(t, errors.Is(err, config.ErrMissingContractAddress))
	_, err = svc.Detail(t.Context(), set, nil)
	assert.True(t, errors.Is(err, config.ErrMissingContractAddress))
}

func TestActionInFlight(t *testing.T) {
	guard := executor.NewGuard()
	reader := &fakeReader{initialized: true}
	writer := &fakeWriter{reader: reader, account: manager}
	svc := setindex.NewService(reader, writer, setindex.Contracts{IssuanceModule: module, Multicall: multicall}, guard)

	release, err := guard.Acquire("issue:" + set.Hex())
	assert.NoError(t, err)
	defer release()

	_, err = svc.Issue(t.Context(), set, big.NewInt(1e18))
	assert.True(t, errors.Is(err, executor.ErrInFlight))
	assert.Equal(t, len(writer.sent), 0)
}

func TestDetailFailsOnDependentRead(t *testing.T) {
	svc, reader, _ := newService(true)
	reader.failDetails = true

	_, err := svc.Detail(t.Context(), set, nil)
	assert.Error(t, err)
}

func TestDistributionUnknownComponent(t *testing.T) {
	units, err := models.NewComponentUnits([]common.Address{wbtc}, []*big.Int{big.NewInt(5)})
	assert.NoError(t, err)

	out := setindex.Distribution(units, nil)
	assert.Equal(t, out[0].Display, "N/A - 5")
}
