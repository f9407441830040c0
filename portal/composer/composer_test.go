package composer_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/composer"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/registry"
)

func newRegistry(t *testing.T) *registry.TokenRegistry {
	t.Helper()
	reg, err := registry.NewTokenRegistry([]models.Token{
		{Ticker: "WBTC", Name: "Wrapped Bitcoin", Address: "0x29f2D40B0605204364af54EC677bD022dA425d03", Decimals: 8},
		{Ticker: "WETH", Name: "Wrapped Ether", Address: "0xb16F35c0Ae2912430DAc15764477E179D9B9EbEa", Decimals: 18},
		{Ticker: "USDC", Name: "USD Coin", Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6},
	})
	assert.NoError(t, err)
	return reg
}

func TestSelectIsIdempotent(t *testing.T) {
	s := composer.NewSession(newRegistry(t))

	assert.NoError(t, s.Select("WBTC"))
	assert.NoError(t, s.Select("WETH"))
	assert.NoError(t, s.SetAmount("WBTC", "5"))
	assert.NoError(t, s.Select("wbtc"))

	selected := s.Selected()
	assert.Equal(t, len(selected), 2)
	// re-selecting keeps the existing amount
	assert.Equal(t, selected[0].Amount.String(), "5")

	assert.Error(t, s.Select("DOGE"))
	assert.Equal(t, len(s.Search("wrapped")), 2)
}

func TestRemoveDropsExactlyOne(t *testing.T) {
	s := composer.NewSession(newRegistry(t))
	for _, tk := range []string{"WBTC", "WETH", "USDC"} {
		assert.NoError(t, s.Select(tk))
	}

	s.Remove("WETH")
	selected := s.Selected()
	assert.Equal(t, len(selected), 2)
	assert.Equal(t, selected[0].Token.Ticker, "WBTC")
	assert.Equal(t, selected[1].Token.Ticker, "USDC")

	s.Remove("WETH")
	assert.Equal(t, len(s.Selected()), 2)
}

func TestPercentagesSumToHundred(t *testing.T) {
	s := composer.NewSession(newRegistry(t))
	for _, tk := range []string{"WBTC", "WETH", "USDC"} {
		assert.NoError(t, s.Select(tk))
	}

	cases := [][]string{
		{"1", "1", "1"},
		{"1", "2", "3"},
		{"7", "13", "29"},
		{"100", "1", "1"},
	}
	for _, amounts := range cases {
		assert.NoError(t, s.SetAmount("WBTC", amounts[0]))
		assert.NoError(t, s.SetAmount("WETH", amounts[1]))
		assert.NoError(t, s.SetAmount("USDC", amounts[2]))

		sum := decimal.Zero
		total := s.Total()
		for _, sh := range s.Percentages() {
			sum = sum.Add(sh.Percentage)
			exact := sh.Amount.Div(total).Mul(decimal.NewFromInt(100))
			assert.True(t, exact.Sub(sh.Percentage).Abs().LessThanOrEqual(decimal.RequireFromString("0.02")))
		}
		assert.Equal(t, sum.String(), "100")
	}
}

func TestSetAmountValidation(t *testing.T) {
	s := composer.NewSession(newRegistry(t))
	assert.NoError(t, s.Select("USDC"))

	assert.Equal(t, s.SetAmount("USDC", "0"), composer.ErrAmountTooSmall)
	assert.Error(t, s.SetAmount("USDC", "x"))
	assert.Error(t, s.SetAmount("WETH", "2"))

	assert.NoError(t, s.SetAmount("USDC", "3.9"))
	assert.Equal(t, s.Selected()[0].Amount.String(), "3")
}

func TestCreateArgs(t *testing.T) {
	s := composer.NewSession(newRegistry(t))
	manager := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	modules := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}

	_, err := s.CreateArgs("Index", "IDX", modules, manager)
	assert.Equal(t, err, composer.ErrIncompleteSelection)

	assert.NoError(t, s.Select("WBTC"))
	assert.NoError(t, s.Select("USDC"))
	assert.NoError(t, s.SetAmount("USDC", "10"))

	assert.Equal(t, s.Validate("Index", " "), composer.ErrIncompleteSelection)
	assert.NoError(t, s.Validate("Index", "IDX"))

	_, err = s.CreateArgs("", "IDX", modules, manager)
	assert.Equal(t, err, composer.ErrIncompleteSelection)

	args, err := s.CreateArgs("My Index", "MIDX", modules, manager)
	assert.NoError(t, err)
	assert.Equal(t, len(args.Components), 2)
	assert.Equal(t, len(args.Units), 2)
	assert.Equal(t, args.Units[0].String(), "100000000")
	assert.Equal(t, args.Units[1].String(), "10000000")
	assert.Equal(t, args.Components[1], common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"))
	assert.Equal(t, args.Manager, manager)
}
