// Package composer keeps the in-memory selection of a new index: which tokens
// are in the basket, how much of each, and the arguments for the factory call.
package composer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/units"
)

var (
	ErrIncompleteSelection = errors.New("selection, name and symbol are required")
	ErrNotSelected         = errors.New("token is not selected")
	ErrAmountTooSmall      = errors.New("amount must be at least 1")
)

// TokenSource resolves tickers to registry tokens.
type TokenSource interface {
	Lookup(ticker string) (models.Token, error)
	Search(term string) []models.Token
}

// Session is one index creation session. It is not safe for concurrent use.
type Session struct {
	tokens   TokenSource
	selected []models.SelectedComponent
}

// NewSession starts an empty selection backed by tokens.
func NewSession(tokens TokenSource) *Session {
	return &Session{tokens: tokens}
}

// Select adds a token with amount 1. Selecting a ticker that is already in the
// selection does nothing.
func (s *Session) Select(ticker string) error {
	token, err := s.tokens.Lookup(ticker)
	if err != nil {
		return err
	}
	if s.index(token.Ticker) >= 0 {
		return nil
	}
	s.selected = append(s.selected, models.SelectedComponent{Token: token, Amount: decimal.NewFromInt(1)})
	return nil
}

// Remove drops exactly one entry. Removing an unknown ticker is a no-op.
func (s *Session) Remove(ticker string) {
	i := s.index(ticker)
	if i < 0 {
		return
	}
	s.selected = append(s.selected[:i], s.selected[i+1:]...)
}

// SetAmount updates the amount of a selected token. Fractions are cut, the
// form only accepts whole units.
func (s *Session) SetAmount(ticker string, amount string) error {
	i := s.index(ticker)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotSelected, ticker)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	d = d.Truncate(0)
	if d.LessThan(decimal.NewFromInt(1)) {
		return ErrAmountTooSmall
	}
	s.selected[i].Amount = d
	return nil
}

// Selected returns a copy of the selection in insertion order.
func (s *Session) Selected() []models.SelectedComponent {
	out := make([]models.SelectedComponent, len(s.selected))
	copy(out, s.selected)
	return out
}

// Total is the sum of all selected amounts.
func (s *Session) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range s.selected {
		total = total.Add(c.Amount)
	}
	return total
}

// Share is the percentage of one component in the selection.
type Share struct {
	Ticker     string
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

// Percentages returns amount / total * 100 per selected token, rounded to two
// decimals. The rounding remainder goes to the largest share so the displayed
// values always add up to exactly 100.
func (s *Session) Percentages() []Share {
	total := s.Total()
	shares := make([]Share, len(s.selected))
	if total.IsZero() {
		for i, c := range s.selected {
			shares[i] = Share{Ticker: c.Token.Ticker, Amount: c.Amount, Percentage: decimal.Zero}
		}
		return shares
	}

	hundred := decimal.NewFromInt(100)
	sum := decimal.Zero
	largest := 0
	for i, c := range s.selected {
		p := c.Amount.Div(total).Mul(hundred).Round(2)
		shares[i] = Share{Ticker: c.Token.Ticker, Amount: c.Amount, Percentage: p}
		sum = sum.Add(p)
		if c.Amount.GreaterThan(s.selected[largest].Amount) {
			largest = i
		}
	}
	if diff := hundred.Sub(sum); !diff.IsZero() {
		shares[largest].Percentage = shares[largest].Percentage.Add(diff)
	}
	return shares
}

// Search lists registry tokens matching term by name or ticker.
func (s *Session) Search(term string) []models.Token {
	return s.tokens.Search(term)
}

// Validate reports ErrIncompleteSelection when there is nothing to create.
func (s *Session) Validate(name, symbol string) error {
	if len(s.selected) == 0 || strings.TrimSpace(name) == "" || strings.TrimSpace(symbol) == "" {
		return ErrIncompleteSelection
	}
	return nil
}

// CreateArgs are the SetTokenCreator.create arguments.
type CreateArgs struct {
	Components []common.Address
	Units      []*big.Int
	Modules    []common.Address
	Manager    common.Address
	Name       string
	Symbol     string
}

// CreateArgs converts the selection into factory arguments, scaling each
// amount by its token decimals.
func (s *Session) CreateArgs(name, symbol string, modules []common.Address, manager common.Address) (*CreateArgs, error) {
	if err := s.Validate(name, symbol); err != nil {
		return nil, err
	}
	name, symbol = strings.TrimSpace(name), strings.TrimSpace(symbol)

	args := &CreateArgs{
		Components: make([]common.Address, len(s.selected)),
		Units:      make([]*big.Int, len(s.selected)),
		Modules:    modules,
		Manager:    manager,
		Name:       name,
		Symbol:     symbol,
	}
	for i, c := range s.selected {
		u, err := units.ParseDecimal(c.Amount, c.Token.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Token.Ticker, err)
		}
		args.Components[i] = c.Token.HexAddress()
		args.Units[i] = u
	}
	return args, nil
}

func (s *Session) index(ticker string) int {
	for i, c := range s.selected {
		if strings.EqualFold(c.Token.Ticker, ticker) {
			return i
		}
	}
	return -1
}
