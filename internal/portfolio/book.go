package portfolio

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"marketdash/internal/models"
)

// Book is an immutable set of derived holdings. Methods that change
// prices return a new Book and leave the receiver untouched.
type Book struct {
	holdings []models.Holding
}

// NewBook derives every holding and returns the resulting Book.
func NewBook(holdings []models.Holding) Book {
	derived := make([]models.Holding, len(holdings))
	for i, h := range holdings {
		derived[i] = Derive(h)
	}
	return Book{holdings: derived}
}

// Len returns the number of holdings.
func (b Book) Len() int {
	return len(b.holdings)
}

// Holdings returns a copy of the holdings.
func (b Book) Holdings() []models.Holding {
	return append([]models.Holding{}, b.holdings...)
}

// Symbols returns the distinct symbols held.
func (b Book) Symbols() []string {
	seen := make(map[string]bool, len(b.holdings))
	symbols := make([]string, 0, len(b.holdings))
	for _, h := range b.holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}
	return symbols
}

// WithPrice returns a Book where every holding of symbol is re-derived at
// price.
func (b Book) WithPrice(symbol string, price float64) Book {
	return b.WithPrices(map[string]float64{symbol: price})
}

// WithPrices returns a Book re-derived at the given prices. Holdings whose
// symbol is not in prices keep their current price.
func (b Book) WithPrices(prices map[string]float64) Book {
	next := make([]models.Holding, len(b.holdings))
	for i, h := range b.holdings {
		if p, ok := prices[h.Symbol]; ok && p > 0 {
			h.CurrentPrice = p
			h = Derive(h)
		}
		next[i] = h
	}
	return Book{holdings: next}
}

// Totals sums the holdings.
func (b Book) Totals() Totals {
	return computeTotals(b.holdings)
}

// SortKey names a holding column to sort by.
type SortKey string

const (
	SortSymbol   SortKey = "symbol"
	SortValue    SortKey = "value"
	SortGain     SortKey = "gain"
	SortGainPct  SortKey = "gain_pct"
	SortQuantity SortKey = "quantity"
)

// ParseSortKey parses a sort key name.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortSymbol, SortValue, SortGain, SortGainPct, SortQuantity:
		return k, nil
	case "":
		return SortSymbol, nil
	}
	return "", fmt.Errorf("unknown sort key %q (symbol, value, gain, gain_pct, quantity)", s)
}

// Sorted returns a sorted copy of the holdings. The sort is stable, so
// holdings that compare equal keep their original order in either
// direction.
func (b Book) Sorted(key SortKey, desc bool) []models.Holding {
	out := b.Holdings()
	cmp := compareBy(key)
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return cmp(out[j], out[i]) < 0
		}
		return cmp(out[i], out[j]) < 0
	})
	return out
}

func compareBy(key SortKey) func(a, b models.Holding) int {
	num := func(f func(models.Holding) float64) func(a, b models.Holding) int {
		return func(a, b models.Holding) int {
			switch x, y := f(a), f(b); {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}

	switch key {
	case SortValue:
		return num(func(h models.Holding) float64 { return h.CurrentValue })
	case SortGain:
		return num(func(h models.Holding) float64 { return h.PnLValue })
	case SortGainPct:
		return num(func(h models.Holding) float64 { return h.PnLPercent })
	case SortQuantity:
		return num(func(h models.Holding) float64 { return h.Quantity })
	}
	return func(a, b models.Holding) int { return strings.Compare(a.Symbol, b.Symbol) }
}

// csvRow is one exported holding. The id column comes first.
type csvRow struct {
	ID           string `csv:"id"`
	Symbol       string `csv:"symbol"`
	Quantity     string `csv:"quantity"`
	AveragePrice string `csv:"average_price"`
	CurrentPrice string `csv:"current_price"`
	CostBasis    string `csv:"cost_basis"`
	CurrentValue string `csv:"current_value"`
	PnLValue     string `csv:"pnl_value"`
	PnLPercent   string `csv:"pnl_percent"`
}

// ExportCSV writes a header line and one line per holding to w.
func (b Book) ExportCSV(w io.Writer) error {
	rows := make([]*csvRow, 0, len(b.holdings))
	for _, h := range b.holdings {
		rows = append(rows, &csvRow{
			ID:           h.ID,
			Symbol:       h.Symbol,
			Quantity:     strconv.FormatFloat(h.Quantity, 'f', -1, 64),
			AveragePrice: money(h.AveragePrice),
			CurrentPrice: money(h.CurrentPrice),
			CostBasis:    money(h.CostBasis),
			CurrentValue: money(h.CurrentValue),
			PnLValue:     money(h.PnLValue),
			PnLPercent:   money(h.PnLPercent),
		})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing holdings csv: %w", err)
	}
	return nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
