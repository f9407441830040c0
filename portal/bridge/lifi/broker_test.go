package lifi_test

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/bridge/lifi"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/contracts"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
)

var (
	usdcBase     = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	usdcOptimism = common.HexToAddress("0x5fd84259d66Cd46123540766Be93DFE6D43130D7")
	diamond      = common.HexToAddress("0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE")
	owner        = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func request() bridge.Request {
	return bridge.Request{
		SourceToken:        usdcBase,
		DestinationToken:   usdcOptimism,
		SourceChainID:      84532,
		DestinationChainID: 11155420,
		Amount:             big.NewInt(10_000_000),
		Account: models.MultichainAccount{
			Owner:     owner,
			Addresses: map[uint64]common.Address{84532: owner, 11155420: owner},
		},
	}
}

func newBroker(t *testing.T, url string) *lifi.Broker {
	t.Helper()
	cfg := relayapi.DefaultConfig()
	cfg.HealthCheckInterval = 0
	cfg.Timeout = 2 * time.Second
	api, err := relayapi.NewClient("lifi", url, nil, cfg)
	require.NoError(t, err)
	return lifi.NewBroker(api, lifi.DefaultConfig())
}

func TestBridgeReplaysRouteSteps(t *testing.T) {
	var stepCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/advanced/routes":
			var req lifi.RoutesRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "FASTEST", req.Options.Order)
			require.Equal(t, 0.005, req.Options.Slippage)
			require.Equal(t, uint64(11155420), req.ToChainID)
			require.Equal(t, "10000000", req.FromAmount)

			_ = json.NewEncoder(w).Encode(lifi.RoutesResponse{Routes: []lifi.Route{{
				ID:          "route-1",
				ToAmountMin: "9950000",
				Steps: []lifi.Step{
					{
						ID:       "s1",
						Estimate: lifi.Estimate{ApprovalAddress: diamond.Hex()},
						TransactionRequest: &lifi.TransactionRequest{
							To: diamond.Hex(), Data: "0xdeadbeef", Value: "0x0", GasLimit: "0x30d40",
						},
					},
					{ID: "s2"},
				},
			}}})
		case "/advanced/stepTransaction":
			stepCalls.Add(1)
			var step lifi.Step
			require.NoError(t, json.NewDecoder(r.Body).Decode(&step))
			require.Equal(t, "s2", step.ID)
			step.TransactionRequest = &lifi.TransactionRequest{
				To: diamond.Hex(), Data: "0xcafe", Value: "5", GasLimit: "150000",
			}
			_ = json.NewEncoder(w).Encode(step)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, err := newBroker(t, srv.URL).Bridge(t.Context(), request())
	require.NoError(t, err)
	require.Equal(t, "9950000", res.ReceivedAmount.String())
	require.Equal(t, int32(1), stepCalls.Load())

	calls := res.Batch.Calls
	require.Len(t, calls, 3)
	require.Equal(t, uint64(84532), res.Batch.ChainID)

	m, err := contracts.ERC20ABI.MethodById(calls[0].Data[:4])
	require.NoError(t, err)
	require.Equal(t, "approve", m.Name)
	require.Equal(t, usdcBase, calls[0].To)

	require.Equal(t, diamond, calls[1].To)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, []byte(calls[1].Data))
	require.Equal(t, uint64(200_000), calls[1].GasLimit)

	require.Equal(t, uint64(150_000), calls[2].GasLimit)
	require.Equal(t, "5", calls[2].Value.ToInt().String())
}

func TestBridgeNoRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes": []}`))
	}))
	defer srv.Close()

	_, err := newBroker(t, srv.URL).Bridge(t.Context(), request())
	require.ErrorIs(t, err, bridge.ErrNoRoute)
}

func TestBridgeRejectsInvalidRequest(t *testing.T) {
	req := request()
	req.Amount = big.NewInt(0)

	_, err := newBroker(t, "http://127.0.0.1:1").Bridge(t.Context(), req)
	require.ErrorIs(t, err, bridge.ErrInvalidRequest)
}
