package executor_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/executor"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/relayapi"
)

func newNodeClient(t *testing.T, url string) *executor.NodeClient {
	t.Helper()
	cfg := relayapi.DefaultConfig()
	cfg.HealthCheckInterval = 0
	cfg.Timeout = 2 * time.Second
	api, err := relayapi.NewClient("klaster", url, nil, cfg)
	require.NoError(t, err)
	return executor.NewNodeClient(api)
}

func TestNodeClientQuoteAndExecute(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	smart := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/quote":
			var tx models.InterchainTx
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tx))
			require.Len(t, tx.Steps, 1)
			require.Equal(t, "USDC", tx.FeeTx.Token)
			_ = json.NewEncoder(w).Encode(models.Quote{
				ItxHash:     itxHash,
				PaymentInfo: models.PaymentInfo{Token: "USDC", TokenAmount: "120000"},
				Itx:         tx,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/execute":
			var body struct {
				Quote     models.Quote `json:"quote"`
				Signature string       `json:"signature"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "0xdead", body.Signature)
			require.Equal(t, itxHash, body.Quote.ItxHash)
			_ = json.NewEncoder(w).Encode(models.ExecutionResult{ItxHash: itxHash})
		case r.Method == http.MethodGet && r.URL.Path == "/account/"+owner.Hex():
			require.Equal(t, "84532,11155420", r.URL.Query().Get("chains"))
			_, _ = w.Write([]byte(`{"addresses":{"84532":"` + smart.Hex() + `","11155420":"` + smart.Hex() + `"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	node := newNodeClient(t, srv.URL)

	quote, err := node.GetQuote(t.Context(), sampleItx())
	require.NoError(t, err)
	require.Equal(t, itxHash, quote.ItxHash)
	require.Equal(t, "120000", quote.PaymentInfo.TokenAmount)

	res, err := node.Execute(t.Context(), quote, []byte{0xde, 0xad})
	require.NoError(t, err)
	require.Equal(t, itxHash, res.ItxHash)

	account, err := node.Account(t.Context(), owner, []uint64{84532, 11155420})
	require.NoError(t, err)
	require.Equal(t, owner, account.Owner)
	addr, ok := account.AddressOn(11155420)
	require.True(t, ok)
	require.Equal(t, smart, addr)
}

func TestNodeClientExecutesQuoteAsReceived(t *testing.T) {
	const quoteJSON = `{"itxHash":"` + "0x0000000000000000000000000000000000000000000000000000000000000077" +
		`","node":"0xnode","commitment":"abc","txs":[{"chainId":84532}]}`

	var executed json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			_, _ = w.Write([]byte(quoteJSON))
		case "/execute":
			var body struct {
				Quote json.RawMessage `json:"quote"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			executed = body.Quote
			_, _ = w.Write([]byte(`{"itxHash":"0x0000000000000000000000000000000000000000000000000000000000000077"}`))
		}
	}))
	defer srv.Close()

	node := newNodeClient(t, srv.URL)
	quote, err := node.GetQuote(t.Context(), sampleItx())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x77"), quote.ItxHash)

	_, err = node.Execute(t.Context(), quote, []byte{0x01})
	require.NoError(t, err)
	require.JSONEq(t, quoteJSON, string(executed))
}

func TestNodeClientExecuteIsNotResent(t *testing.T) {
	var primaryHits, backupHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupHits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer backup.Close()

	cfg := relayapi.DefaultConfig()
	cfg.Attempts = 3
	cfg.RetryDelay = time.Millisecond
	cfg.HealthCheckInterval = 0
	api, err := relayapi.NewClient("klaster", primary.URL, []string{backup.URL}, cfg)
	require.NoError(t, err)
	node := executor.NewNodeClient(api)

	_, err = node.Execute(t.Context(), &models.Quote{ItxHash: itxHash}, []byte{0x01})
	require.True(t, relayapi.IsStatus(err, http.StatusBadGateway))
	require.Equal(t, int32(1), primaryHits.Load())
	require.Equal(t, int32(0), backupHits.Load())
}

func TestNodeClientRejectsEmptyQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newNodeClient(t, srv.URL).GetQuote(t.Context(), sampleItx())
	require.Error(t, err)
}

func TestOrchestratorOverHTTPDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := executor.NewOrchestrator(newNodeClient(t, srv.URL), &fakeSigner{}).
		Execute(t.Context(), "faucet", sampleItx())
	require.ErrorIs(t, err, executor.ErrQuoteFailed)
	require.Equal(t, executor.OutcomeFailed, res.Outcome)
	require.Equal(t, int32(1), hits.Load())
}
