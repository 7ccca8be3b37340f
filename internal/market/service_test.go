package market

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"marketdash/internal/api"
	"marketdash/internal/api/apitest"
	apperrors "marketdash/internal/errors"
	"marketdash/internal/models"
)

func newTestService(t *testing.T) (*Service, *apitest.Server) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewService(client, zerolog.Nop()), srv
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestBreadthIsChronological(t *testing.T) {
	svc, srv := newTestService(t)
	newestFirst := []models.BreadthPoint{
		{Date: day(3), Advancers: 90, Decliners: 60},
		{Date: day(2), Advancers: 40, Decliners: 110},
		{Date: day(1), Advancers: 70, Decliners: 70},
	}
	srv.SetBreadth(newestFirst)

	got, err := svc.Breadth(context.Background(), 3)
	if err != nil {
		t.Fatalf("Breadth: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d points", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Date.Before(got[i-1].Date) {
			t.Errorf("point %d out of order: %v", i, got)
		}
	}
	if q, _ := url.ParseQuery(srv.LastQuery("/api/market/breadth")); q.Get("days") != "3" {
		t.Errorf("days query = %q", q.Get("days"))
	}
}

func TestBreadthFailure(t *testing.T) {
	svc, srv := newTestService(t)
	srv.FailNext(http.MethodGet, "/api/market/breadth", http.StatusInternalServerError)

	if _, err := svc.Breadth(context.Background(), 5); err == nil {
		t.Error("expected error")
	}
	if _, err := svc.Breadth(context.Background(), -1); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("negative days = %v", err)
	}
}

// Property: Chronological never changes its input and returns a sorted
// permutation of it.
func TestProperty_ChronologicalCopies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("input untouched, output sorted", prop.ForAll(
		func(offsets []int) bool {
			points := make([]models.BreadthPoint, len(offsets))
			for i, o := range offsets {
				points[i] = models.BreadthPoint{Date: day(1).AddDate(0, 0, o), Advancers: i}
			}
			before := append([]models.BreadthPoint{}, points...)

			out := Chronological(points)

			for i := range points {
				if points[i] != before[i] {
					return false
				}
			}
			if len(out) != len(points) {
				return false
			}
			for i := 1; i < len(out); i++ {
				if out[i].Date.Before(out[i-1].Date) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

func TestScreener(t *testing.T) {
	svc, srv := newTestService(t)
	srv.SetScreener([]models.ScreenerRow{
		{Symbol: "COMI", Name: "Commercial International Bank", Price: 84, Sector: "Banks"},
		{Symbol: "SWDY", Name: "Elsewedy Electric", Price: 20, Sector: "Industrials"},
	})

	rows, err := svc.Screener(context.Background(), models.ScreenerFilter{SortBy: "Price", Order: "DESC", Limit: 10})
	if err != nil {
		t.Fatalf("Screener: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows", len(rows))
	}

	q, _ := url.ParseQuery(srv.LastQuery("/api/stocks/screener"))
	if q.Get("sort_by") != "price" || q.Get("order") != "desc" || q.Get("limit") != "10" {
		t.Errorf("query = %v", q)
	}
}

func TestValidateFilter(t *testing.T) {
	bad := []models.ScreenerFilter{
		{SortBy: "colour"},
		{Order: "sideways"},
		{MinPrice: 10, MaxPrice: 5},
		{MinPrice: -1},
		{Limit: MaxScreenerLimit + 1},
		{Skip: -3},
	}
	for _, f := range bad {
		if _, err := ValidateFilter(f); !errors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("ValidateFilter(%+v) = %v, want validation error", f, err)
		}
	}

	if _, err := ValidateFilter(models.ScreenerFilter{MinPrice: 5}); err != nil {
		t.Errorf("min price only should be valid: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]models.BreadthPoint{
		{Advancers: 90, Decliners: 60, Unchanged: 10},
		{Advancers: 40, Decliners: 110, Unchanged: 5},
		{Advancers: 70, Decliners: 70},
	})
	if sum.Days != 3 || sum.UpDays != 1 || sum.DownDays != 1 || sum.NetAdvance != -40 {
		t.Errorf("summary = %+v", sum)
	}
}
