package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/registry"
)

// AnalyticsResponse is the formatted analytics page of one product.
type AnalyticsResponse struct {
	Product      models.Product        `json:"product"`
	Address      string                `json:"address"`
	DeployDate   string                `json:"deploy_date"`
	Price        []registry.Field      `json:"price"`
	Mcap         []registry.Field      `json:"mcap"`
	Fees         []registry.Field      `json:"fees,omitempty"`
	Supply       string                `json:"supply"`
	Issuance     []registry.Field      `json:"issuance,omitempty"`
	Redeem       []registry.Field      `json:"redeem,omitempty"`
	Distribution []models.Distribution `json:"distribution"`
	Range        string                `json:"range"`
	Series       []models.DataPoint    `json:"series"`
}

// MountREST registers the static data routes under /api.
func (p *PortalServer) MountREST(mux chi.Router) {
	mux.Route("/api", func(r chi.Router) {
		r.Get("/tokens", p.handleTokens)
		r.Get("/products", p.handleProducts)
		r.Get("/products/{symbol}", p.handleProduct)
		r.Get("/products/{symbol}/analytics", p.handleAnalytics)
	})
}

func (p *PortalServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	if p.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("token registry not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, p.Tokens.Search(r.URL.Query().Get("search")))
}

func (p *PortalServer) handleProducts(w http.ResponseWriter, r *http.Request) {
	if p.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("product catalog not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, p.Catalog.Products())
}

func (p *PortalServer) handleProduct(w http.ResponseWriter, r *http.Request) {
	if p.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("product catalog not loaded"))
		return
	}
	product, err := p.Catalog.Product(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (p *PortalServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if p.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("product catalog not loaded"))
		return
	}
	timeRange, err := registry.NormalizeRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	symbol := chi.URLParam(r, "symbol")
	product, err := p.Catalog.Product(symbol)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	info, series, err := p.Catalog.Analytics(symbol)
	if err != nil {
		Logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to load analytics")
		writeError(w, http.StatusInternalServerError, errors.New("analytics unavailable"))
		return
	}
	points, _ := registry.Series(series, timeRange)

	writeJSON(w, http.StatusOK, AnalyticsResponse{
		Product:      product,
		Address:      info.Address,
		DeployDate:   registry.DeployDate(info),
		Price:        registry.FormatSection(info.PriceData),
		Mcap:         registry.FormatSection(info.McapData),
		Fees:         registry.FormatSection(info.FeesData),
		Supply:       info.TokenData.Supply,
		Issuance:     registry.FormatSection(info.TokenData.IssuanceData),
		Redeem:       registry.FormatSection(info.TokenData.RedeemData),
		Distribution: info.TokenData.Distribution,
		Range:        timeRange,
		Series:       points,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}
