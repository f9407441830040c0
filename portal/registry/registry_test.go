package registry_test

import (
	"errors"
	"testing"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/registry"
	"github.com/zeebo/assert"
)

func TestLoadTokenRegistry(t *testing.T) {
	reg, err := registry.LoadTokenRegistry("testdata/tokens.json")
	assert.NoError(t, err)
	assert.Equal(t, reg.Len(), 4)

	wbtc, err := reg.Lookup("wbtc")
	assert.NoError(t, err)
	assert.Equal(t, wbtc.Decimals, int32(8))
	assert.Equal(t, wbtc.Name, "Wrapped Bitcoin")

	_, err = reg.Lookup("DOGE")
	assert.True(t, errors.Is(err, registry.ErrTokenNotFound))
}

func TestDuplicateTickerRejected(t *testing.T) {
	_, err := registry.NewTokenRegistry([]models.Token{
		{Ticker: "ETH"},
		{Ticker: "eth"},
	})
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	reg, err := registry.LoadTokenRegistry("testdata/tokens.json")
	assert.NoError(t, err)

	assert.Equal(t, len(reg.Search("")), 4)
	assert.Equal(t, len(reg.Search("wrapped")), 2)
	assert.Equal(t, len(reg.Search("LiNk")), 1)
	assert.Equal(t, len(reg.Search("zzz")), 0)
}

func TestCatalogAndAnalytics(t *testing.T) {
	cat, err := registry.LoadCatalog("testdata")
	assert.NoError(t, err)
	assert.Equal(t, len(cat.Products()), 2)

	info, series, err := cat.Analytics("dpi")
	assert.NoError(t, err)
	assert.Equal(t, info.Symbol, "DPI")
	assert.Equal(t, len(info.TokenData.Distribution), 2)
	assert.Equal(t, registry.DeployDate(info), "2020-09-15")

	points, err := registry.Series(series, "")
	assert.NoError(t, err)
	assert.Equal(t, len(points), 2)
	assert.Equal(t, points[1].Price, "112.45")

	_, err = registry.Series(series, "1y-ts")
	assert.Equal(t, err, registry.ErrUnknownRange)

	_, _, err = cat.Analytics("NOPE")
	assert.True(t, errors.Is(err, registry.ErrProductNotFound))
}

func TestFormatKeyAndValue(t *testing.T) {
	tests := []struct {
		key, value string
		label, out string
	}{
		{"price", "112.45", "Current Price", "$112.45"},
		{"mcap", "12500000", "Market Cap", "$12,500,000"},
		{"24h-delta", "2.31", "24H", "2.31%"},
		{"7d-delta", "-4.5", "7D", "-4.5%"},
		{"1m-delta", "1234.5", "1M", "1,234.5%"},
		{"streaming-fee", "0.95", "Streaming fee", "0.95"},
	}
	for _, tt := range tests {
		assert.Equal(t, registry.FormatKey(tt.key), tt.label)
		assert.Equal(t, registry.FormatValue(tt.key, tt.value), tt.out)
	}
}

func TestFetchDataDirEmptySource(t *testing.T) {
	assert.NoError(t, registry.FetchDataDir(t.Context(), "", t.TempDir()))
}
