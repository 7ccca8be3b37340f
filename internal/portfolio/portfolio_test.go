package portfolio

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketdash/internal/api"
	"marketdash/internal/api/apitest"
	apperrors "marketdash/internal/errors"
	"marketdash/internal/models"
)

func TestDeriveExample(t *testing.T) {
	h := Derive(models.Holding{Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 12})

	if h.CurrentValue != 1200 {
		t.Errorf("CurrentValue = %v, want 1200", h.CurrentValue)
	}
	if h.CostBasis != 1000 {
		t.Errorf("CostBasis = %v, want 1000", h.CostBasis)
	}
	if h.PnLValue != 200 {
		t.Errorf("PnLValue = %v, want 200", h.PnLValue)
	}
	if h.PnLPercent != 20 {
		t.Errorf("PnLPercent = %v, want 20.00", h.PnLPercent)
	}
}

func TestDeriveZeroCost(t *testing.T) {
	h := Derive(models.Holding{Symbol: "GIFT", Quantity: 10, AveragePrice: 0, CurrentPrice: 5})
	if h.PnLPercent != 0 {
		t.Errorf("PnLPercent = %v, want 0 for zero cost basis", h.PnLPercent)
	}
	if h.PnLValue != 50 {
		t.Errorf("PnLValue = %v, want 50", h.PnLValue)
	}
}

func TestDeriveKeepsGivenCostBasis(t *testing.T) {
	h := Derive(models.Holding{Quantity: 10, AveragePrice: 10, CostBasis: 105, CurrentPrice: 11})
	if h.CostBasis != 105 || h.PnLValue != 5 {
		t.Errorf("got cost %v pnl %v, want 105 and 5", h.CostBasis, h.PnLValue)
	}
}

// Property: derived fields satisfy value = qty*price, pnl = value - cost and
// the percentage relation exactly, including three-decimal prices and
// fractional quantities.
func TestProperty_DerivedInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("derived fields are consistent", prop.ForAll(
		func(qtyMilli, avgMilli, priceMilli int) bool {
			qty := decimal.New(int64(qtyMilli), -3)
			avg := decimal.New(int64(avgMilli), -3)
			price := decimal.New(int64(priceMilli), -3)
			h := Derive(models.Holding{
				Quantity:     qty.InexactFloat64(),
				AveragePrice: avg.InexactFloat64(),
				CurrentPrice: price.InexactFloat64(),
			})

			cost := qty.Mul(avg)
			value := qty.Mul(price)
			if h.CurrentValue != value.InexactFloat64() || h.CostBasis != cost.InexactFloat64() {
				return false
			}
			if h.PnLValue != value.Sub(cost).InexactFloat64() {
				return false
			}
			if cost.IsZero() {
				return h.PnLPercent == 0
			}
			want := value.Sub(cost).Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
			return math.Abs(h.PnLPercent-want) <= 1e-9*math.Max(1, math.Abs(want))
		},
		gen.IntRange(1, 10000000),
		gen.IntRange(0, 1000000),
		gen.IntRange(1, 1000000),
	))

	properties.TestingRun(t)
}

func TestDeriveKeepsThreeDecimalPrices(t *testing.T) {
	h := Derive(models.Holding{Symbol: "AMER", Quantity: 3, AveragePrice: 0.3, CurrentPrice: 0.345})
	if h.CurrentValue != 1.035 {
		t.Errorf("CurrentValue = %v, want 1.035", h.CurrentValue)
	}
	if h.PnLValue != 0.135 {
		t.Errorf("PnLValue = %v, want 0.135", h.PnLValue)
	}
	if h.PnLPercent != 15 {
		t.Errorf("PnLPercent = %v, want 15", h.PnLPercent)
	}

	var buf bytes.Buffer
	if err := NewBook([]models.Holding{h}).ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if got := records[1][6]; got != "1.04" {
		t.Errorf("csv current_value = %q, want 1.04", got)
	}
}

// Property: re-pricing returns a new Book and never changes the source.
func TestProperty_WithPriceDoesNotMutate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("source book unchanged", prop.ForAll(
		func(priceCents int) bool {
			book := NewBook([]models.Holding{
				{ID: "1", Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 12},
				{ID: "2", Symbol: "SWDY", Quantity: 50, AveragePrice: 20, CurrentPrice: 18},
			})
			before := book.Holdings()

			next := book.WithPrice("CIB", float64(priceCents)/100)

			after := book.Holdings()
			if !reflect.DeepEqual(before, after) {
				return false
			}
			return next.Holdings()[0].CurrentPrice == float64(priceCents)/100 &&
				reflect.DeepEqual(next.Holdings()[1], before[1])
		},
		gen.IntRange(1, 1000000),
	))

	properties.TestingRun(t)
}

func TestWithPriceRecomputes(t *testing.T) {
	book := NewBook([]models.Holding{{ID: "1", Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 10}})
	next := book.WithPrice("CIB", 12)

	h := next.Holdings()[0]
	if h.CurrentValue != 1200 || h.PnLValue != 200 || h.PnLPercent != 20 {
		t.Errorf("re-derived holding = %+v", h)
	}
	if book.Holdings()[0].CurrentValue != 1000 {
		t.Error("source book changed")
	}
}

func TestTotals(t *testing.T) {
	book := NewBook([]models.Holding{
		{ID: "1", Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 12, RealizedGain: 15.5},
		{ID: "2", Symbol: "SWDY", Quantity: 50, AveragePrice: 20, CurrentPrice: 18},
	})

	tot := book.Totals()
	if tot.Count != 2 || tot.TotalCost != 2000 || tot.TotalValue != 2100 {
		t.Errorf("totals = %+v", tot)
	}
	if tot.UnrealizedGain != 100 || tot.UnrealizedPercent != 5 || tot.RealizedGain != 15.5 {
		t.Errorf("totals = %+v", tot)
	}

	empty := NewBook(nil).Totals()
	if empty.UnrealizedPercent != 0 || empty.Count != 0 {
		t.Errorf("empty totals = %+v", empty)
	}
}

func TestSortedIsStableAndCopies(t *testing.T) {
	book := NewBook([]models.Holding{
		{ID: "a", Symbol: "ETEL", Quantity: 10, AveragePrice: 1, CurrentPrice: 2},
		{ID: "b", Symbol: "CIB", Quantity: 10, AveragePrice: 1, CurrentPrice: 2},
		{ID: "c", Symbol: "SWDY", Quantity: 10, AveragePrice: 1, CurrentPrice: 5},
	})

	byValue := book.Sorted(SortValue, true)
	ids := []string{byValue[0].ID, byValue[1].ID, byValue[2].ID}
	if fmt.Sprint(ids) != "[c a b]" {
		t.Errorf("desc by value = %v, want [c a b]", ids)
	}

	bySymbol := book.Sorted(SortSymbol, false)
	if bySymbol[0].Symbol != "CIB" || bySymbol[2].Symbol != "SWDY" {
		t.Errorf("asc by symbol = %+v", bySymbol)
	}

	if book.Holdings()[0].ID != "a" {
		t.Error("Sorted must not reorder the book")
	}
}

func TestParseSortKey(t *testing.T) {
	if k, err := ParseSortKey("GAIN_PCT"); err != nil || k != SortGainPct {
		t.Errorf("ParseSortKey = %q, %v", k, err)
	}
	if k, _ := ParseSortKey(""); k != SortSymbol {
		t.Errorf("default sort key = %q", k)
	}
	if _, err := ParseSortKey("colour"); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestExportCSV(t *testing.T) {
	book := NewBook([]models.Holding{
		{ID: "h1", Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 12},
		{ID: "h2", Symbol: "SWDY", Quantity: 2.5, AveragePrice: 20, CurrentPrice: 18},
	})

	var buf bytes.Buffer
	if err := book.ExportCSV(&buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != book.Len()+1 {
		t.Fatalf("got %d lines, want %d", len(records), book.Len()+1)
	}
	if records[0][0] != "id" {
		t.Errorf("first header = %q, want id", records[0][0])
	}
	if records[1][0] != "h1" || records[2][0] != "h2" {
		t.Errorf("first column should be the holding id: %v", records)
	}
	if records[1][6] != "1200.00" {
		t.Errorf("current_value = %q", records[1][6])
	}
	if records[2][2] != "2.5" {
		t.Errorf("quantity = %q", records[2][2])
	}
}

func newTestService(t *testing.T) (*Service, *apitest.Server) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewService(client, nil, zerolog.Nop()), srv
}

func TestServiceRefreshUsesQuotes(t *testing.T) {
	svc, srv := newTestService(t)
	srv.AddHolding(models.Holding{Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 11})
	srv.SetQuote("CIB", 12)

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h := svc.Book().Holdings()[0]
	if h.CurrentPrice != 12 || h.CurrentValue != 1200 || h.PnLPercent != 20 {
		t.Errorf("holding = %+v", h)
	}
}

func TestServiceRefreshSurvivesQuoteFailure(t *testing.T) {
	svc, srv := newTestService(t)
	srv.AddHolding(models.Holding{Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 11})
	srv.FailNext(http.MethodGet, "/api/market/quotes", http.StatusBadGateway)

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h := svc.Book().Holdings()[0]; h.CurrentValue != 1100 {
		t.Errorf("expected holding price fallback, got %+v", h)
	}
}

func TestServiceAddAndRemove(t *testing.T) {
	svc, srv := newTestService(t)
	ctx := context.Background()
	srv.SetQuote("CIB", 12)

	h, err := svc.AddHolding(ctx, "cib", 100, 10)
	if err != nil {
		t.Fatalf("AddHolding: %v", err)
	}
	if svc.Book().Len() != 1 {
		t.Fatalf("expected 1 holding after add, got %d", svc.Book().Len())
	}

	if _, err := svc.AddHolding(ctx, "CIB", 0, 10); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("zero quantity should fail validation, got %v", err)
	}

	if err := svc.RemoveHolding(ctx, h.ID); err != nil {
		t.Fatalf("RemoveHolding: %v", err)
	}
	if svc.Book().Len() != 0 {
		t.Errorf("expected empty book after remove, got %d", svc.Book().Len())
	}
}

func TestServiceOnTick(t *testing.T) {
	svc, srv := newTestService(t)
	srv.AddHolding(models.Holding{ID: "1", Symbol: "CIB", Quantity: 100, AveragePrice: 10, CurrentPrice: 10})
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	svc.OnTick(models.PriceTick{Symbol: "CIB", Price: 12, Timestamp: time.Now()})
	if h := svc.Book().Holdings()[0]; h.PnLValue != 200 {
		t.Errorf("tick should re-derive holding, got %+v", h)
	}
	if syms := svc.Symbols(); len(syms) != 1 || syms[0] != "CIB" {
		t.Errorf("Symbols() = %v", syms)
	}
}

func TestAddHoldingSurvivesRefetchFailure(t *testing.T) {
	svc, srv := newTestService(t)
	ctx := context.Background()

	srv.FailNext(http.MethodGet, "/api/portfolio/holdings", http.StatusInternalServerError)
	h, err := svc.AddHolding(ctx, "SWDY", 10, 20)
	if err != nil {
		t.Fatalf("AddHolding should succeed when only the refetch fails, got %v", err)
	}
	if h == nil || h.ID == "" || h.CostBasis != 200 {
		t.Fatalf("expected the created holding, got %+v", h)
	}
	if svc.Err() == nil {
		t.Error("Err() should report the failed refetch")
	}
	if svc.Book().Len() != 0 {
		t.Error("book keeps its previous contents until a refetch succeeds")
	}
}
