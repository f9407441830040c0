// Package registry holds the static data the portal serves: the token
// registry, the product listing and per-product analytics documents.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

var (
	ErrTokenNotFound   = errors.New("token not found in registry")
	ErrProductNotFound = errors.New("product not found")
)

// TokenRegistry is an immutable, ordered list of tokens indexed by ticker.
type TokenRegistry struct {
	tokens   []models.Token
	byTicker map[string]int
}

// NewTokenRegistry indexes tokens by upper-cased ticker. Duplicate tickers are rejected.
func NewTokenRegistry(tokens []models.Token) (*TokenRegistry, error) {
	r := &TokenRegistry{
		tokens:   make([]models.Token, len(tokens)),
		byTicker: make(map[string]int, len(tokens)),
	}
	copy(r.tokens, tokens)
	for i, t := range r.tokens {
		key := strings.ToUpper(t.Ticker)
		if key == "" {
			return nil, fmt.Errorf("token at position %d has no ticker", i)
		}
		if _, dup := r.byTicker[key]; dup {
			return nil, fmt.Errorf("duplicate ticker %s", t.Ticker)
		}
		r.byTicker[key] = i
	}
	return r, nil
}

// LoadTokenRegistry reads a JSON token list (ticker, name, address, decimals, img).
func LoadTokenRegistry(path string) (*TokenRegistry, error) {
	var tokens []models.Token
	if err := readJSON(path, &tokens); err != nil {
		return nil, err
	}
	return NewTokenRegistry(tokens)
}

// Tokens returns a copy of all tokens in registry order.
func (r *TokenRegistry) Tokens() []models.Token {
	out := make([]models.Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

// Len returns the number of tokens.
func (r *TokenRegistry) Len() int {
	return len(r.tokens)
}

// Lookup finds a token by ticker, case-insensitively.
func (r *TokenRegistry) Lookup(ticker string) (models.Token, error) {
	i, ok := r.byTicker[strings.ToUpper(ticker)]
	if !ok {
		return models.Token{}, fmt.Errorf("%w: %s", ErrTokenNotFound, ticker)
	}
	return r.tokens[i], nil
}

// Search returns tokens whose name or ticker contains term, case-insensitively.
// An empty term returns every token.
func (r *TokenRegistry) Search(term string) []models.Token {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return r.Tokens()
	}
	var out []models.Token
	for _, t := range r.tokens {
		if strings.Contains(strings.ToLower(t.Name), term) || strings.Contains(strings.ToLower(t.Ticker), term) {
			out = append(out, t)
		}
	}
	return out
}

// Catalog is the product listing plus analytics documents found in a data directory.
type Catalog struct {
	products []models.Product
	dataDir  string
}

// LoadCatalog reads products.json from dataDir. Analytics documents are read
// lazily from dataDir/analytics/<symbol>.json.
func LoadCatalog(dataDir string) (*Catalog, error) {
	var products []models.Product
	if err := readJSON(filepath.Join(dataDir, "products.json"), &products); err != nil {
		return nil, err
	}
	return &Catalog{products: products, dataDir: dataDir}, nil
}

// Products returns the product listing in file order.
func (c *Catalog) Products() []models.Product {
	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Product returns one product by symbol.
func (c *Catalog) Product(symbol string) (models.Product, error) {
	for _, p := range c.products {
		if strings.EqualFold(p.Symbol, symbol) {
			return p, nil
		}
	}
	return models.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, symbol)
}

// Analytics loads the analytics document and price series of a product.
func (c *Catalog) Analytics(symbol string) (*models.Analytics, models.PriceSeries, error) {
	p, err := c.Product(symbol)
	if err != nil {
		return nil, nil, err
	}
	base := filepath.Join(c.dataDir, "analytics", strings.ToLower(p.Symbol))

	var info models.Analytics
	if err := readJSON(base+".json", &info); err != nil {
		return nil, nil, err
	}

	var advanced struct {
		PriceData models.PriceSeries `json:"price-data"`
	}
	if err := readJSON(base+".series.json", &advanced); err != nil {
		return nil, nil, err
	}
	return &info, advanced.PriceData, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
