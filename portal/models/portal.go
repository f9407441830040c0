package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token is one entry of the static token registry.
type Token struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
	Image    string `json:"img"`
}

// HexAddress returns the checksummed token address.
func (t Token) HexAddress() common.Address {
	return common.HexToAddress(t.Address)
}

// SelectedComponent is a token picked for a new index together with its amount.
// It only lives for the duration of a composition session.
type SelectedComponent struct {
	Token  Token           `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// SetMetadata is a read-only snapshot of an index (Set) contract.
type SetMetadata struct {
	Address             common.Address   `json:"address"`
	Name                string           `json:"name"`
	Symbol              string           `json:"symbol"`
	TotalSupply         *big.Int         `json:"total_supply"`
	Decimals            uint8            `json:"decimals"`
	Components          []common.Address `json:"components"`
	Manager             common.Address   `json:"manager"`
	IsInitializedModule bool             `json:"is_initialized_module"`
}

// ComponentInfo is what the UI needs per component token.
type ComponentInfo struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Product is one row of the product listing.
type Product struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Change string `json:"change"`
	APY    string `json:"apy"`
	TVL    string `json:"tvl"`
	Theme  string `json:"theme"`
	Type   string `json:"type"`
}

// DataPoint is one sample of a time series.
type DataPoint struct {
	Timestamp string `json:"timestamp"`
	Price     string `json:"price"`
}

// Distribution describes the portion of one component in an analytics snapshot.
type Distribution struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Portion string `json:"portion"`
}

// TokenData is the token-data section of the analytics file.
type TokenData struct {
	Supply       string            `json:"supply"`
	IssuanceData map[string]string `json:"issuance-data,omitempty"`
	RedeemData   map[string]string `json:"redeem-data,omitempty"`
	Distribution []Distribution    `json:"distribution"`
}

// Analytics is the per-product analytics document.
type Analytics struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Symbol          string            `json:"symbol"`
	Address         string            `json:"address"`
	DeployTimestamp string            `json:"deploy-timestamp"`
	PriceData       map[string]string `json:"price-data"`
	McapData        map[string]string `json:"mcap-data"`
	FeesData        map[string]string `json:"fees-data,omitempty"`
	TokenData       TokenData         `json:"token-data"`
}

// PriceSeries holds chart samples keyed by time range bucket.
type PriceSeries map[string][]DataPoint
