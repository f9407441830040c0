package across_test

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge/across"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
)

const (
	baseSepolia     = 84532
	optimismSepolia = 11155420
)

var (
	usdcBase     = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	usdcOptimism = common.HexToAddress("0x5fd84259d66Cd46123540766Be93DFE6D43130D7")
	spokePool    = common.HexToAddress("0x82B564983aE7274c86695917BBf8C99ECb6F0F8F")
	depositor    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	recipient    = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

func account() models.MultichainAccount {
	return models.MultichainAccount{
		Owner:     common.HexToAddress("0x01"),
		Addresses: map[uint64]common.Address{baseSepolia: depositor, optimismSepolia: recipient},
	}
}

func request(amount int64) bridge.Request {
	return bridge.Request{
		SourceToken:        usdcBase,
		DestinationToken:   usdcOptimism,
		SourceChainID:      baseSepolia,
		DestinationChainID: optimismSepolia,
		Amount:             big.NewInt(amount),
		Account:            account(),
	}
}

func feeServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/suggested-fees", r.URL.Path)
		require.Equal(t, usdcBase.Hex(), r.URL.Query().Get("inputToken"))
		require.Equal(t, "11155420", r.URL.Query().Get("destinationChainId"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newBroker(t *testing.T, url string) *across.Broker {
	t.Helper()
	cfg := relayapi.DefaultConfig()
	cfg.HealthCheckInterval = 0
	cfg.Timeout = 2 * time.Second
	api, err := relayapi.NewClient("across", url, nil, cfg)
	require.NoError(t, err)
	return across.NewBroker(api, across.DefaultConfig())
}

const quote = `{
  "totalRelayFee": {"pct": "50000000000000000", "total": "50"},
  "timestamp": "1718000000",
  "isAmountTooLow": false,
  "exclusiveRelayer": "0x0000000000000000000000000000000000000000",
  "exclusivityDeadline": 0,
  "spokePoolAddress": "0x82B564983aE7274c86695917BBf8C99ECb6F0F8F",
  "limits": {"minDeposit": "10", "maxDeposit": "1000000000"}
}`

func TestBridgeDeductsRelayFee(t *testing.T) {
	var hits atomic.Int32
	srv := feeServer(t, http.StatusOK, quote, &hits)
	defer srv.Close()

	res, err := newBroker(t, srv.URL).Bridge(t.Context(), request(1000))
	require.NoError(t, err)
	require.Equal(t, "950", res.ReceivedAmount.String())

	batch := res.Batch
	require.Equal(t, uint64(baseSepolia), batch.ChainID)
	require.True(t, batch.Batched)
	require.Len(t, batch.Calls, 2)

	approve := batch.Calls[0]
	require.Equal(t, usdcBase, approve.To)
	m, err := contracts.ERC20ABI.MethodById(approve.Data[:4])
	require.NoError(t, err)
	require.Equal(t, "approve", m.Name)
	args, err := m.Inputs.Unpack(approve.Data[4:])
	require.NoError(t, err)
	require.Equal(t, spokePool, args[0])
	require.Equal(t, "1000", args[1].(*big.Int).String())

	deposit := batch.Calls[1]
	require.Equal(t, spokePool, deposit.To)
	m, err = contracts.SpokePoolABI.MethodById(deposit.Data[:4])
	require.NoError(t, err)
	require.Equal(t, "depositV3", m.Name)
	args, err = m.Inputs.Unpack(deposit.Data[4:])
	require.NoError(t, err)
	require.Equal(t, depositor, args[0])
	require.Equal(t, recipient, args[1])
	require.Equal(t, "1000", args[4].(*big.Int).String())
	require.Equal(t, "950", args[5].(*big.Int).String())
	require.Equal(t, "11155420", args[6].(*big.Int).String())
	require.Equal(t, uint32(1718000000), args[8])
	require.Equal(t, uint32(1718000000+21600), args[9])
}

func TestOutputAmount(t *testing.T) {
	var fees across.SuggestedFees
	require.NoError(t, json.Unmarshal([]byte(quote), &fees))

	out, err := across.OutputAmount(big.NewInt(1000), &fees)
	require.NoError(t, err)
	require.Equal(t, "950", out.String())

	_, err = across.OutputAmount(big.NewInt(50), &fees)
	require.ErrorIs(t, err, bridge.ErrNoRoute)

	_, err = across.OutputAmount(big.NewInt(2_000_000_000), &fees)
	require.ErrorIs(t, err, bridge.ErrNoRoute)

	fees.IsAmountTooLow = true
	_, err = across.OutputAmount(big.NewInt(1000), &fees)
	require.ErrorIs(t, err, bridge.ErrNoRoute)
}

func TestBridgeRouteNotEnabled(t *testing.T) {
	var hits atomic.Int32
	srv := feeServer(t, http.StatusBadRequest, `{"code":"ROUTE_NOT_ENABLED"}`, &hits)
	defer srv.Close()

	_, err := newBroker(t, srv.URL).Bridge(t.Context(), request(1000))
	require.ErrorIs(t, err, bridge.ErrNoRoute)

	var bErr *bridge.Error
	require.True(t, errors.As(err, &bErr))
	require.Equal(t, across.Name, bErr.Plugin)
}

func TestBridgeUnresolvedAccount(t *testing.T) {
	var hits atomic.Int32
	srv := feeServer(t, http.StatusOK, quote, &hits)
	defer srv.Close()

	req := request(1000)
	delete(req.Account.Addresses, optimismSepolia)

	_, err := newBroker(t, srv.URL).Bridge(t.Context(), req)
	require.ErrorIs(t, err, bridge.ErrUnresolvedAccount)
	require.Equal(t, int32(0), hits.Load())
}

func TestBridgeServerFailure(t *testing.T) {
	var hits atomic.Int32
	srv := feeServer(t, http.StatusInternalServerError, "oops", &hits)
	defer srv.Close()

	_, err := newBroker(t, srv.URL).Bridge(t.Context(), request(1000))
	require.Error(t, err)
	require.False(t, errors.Is(err, bridge.ErrNoRoute))
	require.Equal(t, int32(1), hits.Load())
}
