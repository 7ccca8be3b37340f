package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"marketdash/internal/api"
	"marketdash/internal/api/apitest"
	"marketdash/internal/config"
	apperrors "marketdash/internal/errors"
	"marketdash/internal/models"
	"marketdash/internal/store"
)

type testEnv struct {
	app *App
	srv *apitest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	local, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: srv.URL, Timeout: 5 * time.Second},
		Chat: config.ChatConfig{
			Language:      "en",
			FallbackReply: config.DefaultFallbackReply,
			HistoryLimit:  50,
		},
		Stream: config.StreamConfig{Mode: config.StreamPoll, PollInterval: time.Second},
		UI:     config.UIConfig{Currency: "EGP", DateFormat: "2006-01-02"},
	}

	return &testEnv{
		app: &App{Config: cfg, Logger: zerolog.Nop(), Client: client, Store: local},
		srv: srv,
	}
}

// run executes the root command and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(e.app)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v (stderr: %s)", args, err, errOut)
	}
	return out
}

func TestWatchlistCommands(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "watchlist", "create", "Banks")
	if !strings.Contains(out, "Created watchlist 'Banks'") {
		t.Errorf("create output = %q", out)
	}

	out = e.mustRun(t, "wl", "add", "banks", "comi", "CIEB")
	if !strings.Contains(out, "Added COMI") || !strings.Contains(out, "Added CIEB") {
		t.Errorf("add output = %q", out)
	}

	out = e.mustRun(t, "watchlist", "list", "--json")
	var lists []models.Watchlist
	if err := json.Unmarshal([]byte(out), &lists); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(lists) != 1 || strings.Join(lists[0].Symbols(), ",") != "COMI,CIEB" {
		t.Errorf("lists = %+v", lists)
	}

	e.mustRun(t, "watchlist", "remove", "Banks", "COMI")
	out = e.mustRun(t, "watchlist", "list", "Banks")
	if strings.Contains(out, "COMI") || !strings.Contains(out, "CIEB") {
		t.Errorf("list Banks = %q", out)
	}

	e.mustRun(t, "watchlist", "delete", "Banks")
	out = e.mustRun(t, "watchlist", "list")
	if !strings.Contains(out, "No watchlists available") {
		t.Errorf("list after delete = %q", out)
	}
}

func TestWatchlistUnknownName(t *testing.T) {
	e := newTestEnv(t)
	_, _, err := e.run(t, "watchlist", "delete", "Nope")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestWatchlistInvalidSymbolIsToasted(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "watchlist", "create", "Tech")

	_, errOut, err := e.run(t, "watchlist", "add", "Tech", "BAD SYMBOL!")
	if !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !strings.Contains(errOut, "✗") {
		t.Errorf("stderr = %q, want toast", errOut)
	}
	if n := e.srv.Hits(http.MethodPost, "/api/watchlists/1/items"); n != 0 {
		t.Errorf("invalid symbol reached backend %d times", n)
	}
}

func TestAlertCommands(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "alert", "create", "comi", "above", "90", "--json")
	var created models.PriceAlert
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if created.Symbol != "COMI" || created.Condition != models.AlertAbove || created.TargetPrice != 90 {
		t.Errorf("created = %+v", created)
	}

	e.srv.TriggerAlert(created.ID, time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC))

	out = e.mustRun(t, "alert", "list")
	if !strings.Contains(out, "No alerts available") {
		t.Errorf("active list = %q", out)
	}
	out = e.mustRun(t, "alert", "list", "--all")
	if !strings.Contains(out, "COMI") {
		t.Errorf("all list = %q", out)
	}

	e.mustRun(t, "alert", "delete", created.ID)
	out = e.mustRun(t, "alert", "list", "--all", "--json")
	var remaining []models.PriceAlert
	if err := json.Unmarshal([]byte(out), &remaining); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(remaining) != 0 {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestAlertCreateRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)

	if _, _, err := e.run(t, "alert", "create", "COMI", "above", "abc"); err == nil {
		t.Error("expected error for non-numeric price")
	}
	if _, _, err := e.run(t, "alert", "create", "COMI", "sideways", "10"); err == nil {
		t.Error("expected error for unknown condition")
	}
	if n := e.srv.Hits(http.MethodPost, "/api/alerts"); n != 0 {
		t.Errorf("backend hit %d times", n)
	}
}

func TestPortfolioShowAndExport(t *testing.T) {
	e := newTestEnv(t)
	e.srv.AddHolding(models.Holding{ID: "h1", Symbol: "COMI", Quantity: 10, AveragePrice: 100})
	e.srv.AddHolding(models.Holding{ID: "h2", Symbol: "SWDY", Quantity: 100, AveragePrice: 20})
	e.srv.SetQuote("COMI", 120)
	e.srv.SetQuote("SWDY", 18)

	out := e.mustRun(t, "portfolio", "show", "--json", "--sort", "value", "--desc")
	var got struct {
		Holdings []models.Holding `json:"holdings"`
		Totals   struct {
			TotalCost      float64 `json:"total_cost"`
			TotalValue     float64 `json:"total_value"`
			UnrealizedGain float64 `json:"unrealized_gain"`
		} `json:"totals"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(got.Holdings) != 2 || got.Holdings[0].Symbol != "SWDY" {
		t.Errorf("holdings = %+v", got.Holdings)
	}
	if got.Totals.TotalCost != 3000 || got.Totals.TotalValue != 3000 || got.Totals.UnrealizedGain != 0 {
		t.Errorf("totals = %+v", got.Totals)
	}

	out = e.mustRun(t, "portfolio", "show")
	for _, want := range []string{"COMI", "SWDY", "Invested:", "EGP 3,000.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = e.mustRun(t, "portfolio", "export")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "id,symbol") {
		t.Errorf("csv header = %q", lines[0])
	}

	path := filepath.Join(t.TempDir(), "holdings.csv")
	out = e.mustRun(t, "portfolio", "export", "--out", path)
	if !strings.Contains(out, "Exported 2 holdings") {
		t.Errorf("export output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.Contains(string(data), "COMI") {
		t.Errorf("export file = %q", data)
	}
}

func TestPortfolioAddRemove(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "pf", "add", "etel", "50", "25.5", "--json")
	var h models.Holding
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if h.Symbol != "ETEL" || h.Quantity != 50 {
		t.Errorf("holding = %+v", h)
	}

	if _, _, err := e.run(t, "pf", "add", "ETEL", "0", "25"); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("zero quantity err = %v", err)
	}

	e.mustRun(t, "pf", "remove", h.ID)
	out = e.mustRun(t, "pf", "show")
	if !strings.Contains(out, "No holdings available") {
		t.Errorf("show after remove = %q", out)
	}
}

func TestPortfolioUnknownSortKey(t *testing.T) {
	e := newTestEnv(t)
	if _, _, err := e.run(t, "portfolio", "show", "--sort", "colour"); err == nil {
		t.Error("expected error for unknown sort key")
	}
}

func TestMarketScreener(t *testing.T) {
	e := newTestEnv(t)
	e.srv.SetScreener([]models.ScreenerRow{
		{Symbol: "COMI", Name: "Commercial International Bank", Sector: "Banks", Price: 80, ChangePercent: 1.5},
	})

	out := e.mustRun(t, "market", "screener", "--sector", "Banks", "--sort", "PRICE", "--order", "desc")
	if !strings.Contains(out, "COMI") {
		t.Errorf("screener output = %q", out)
	}
	q := e.srv.LastQuery("/api/stocks/screener")
	for _, want := range []string{"sector=Banks", "sort_by=price", "order=desc"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}

	if _, _, err := e.run(t, "market", "screener", "--limit", "500"); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("limit 500 err = %v", err)
	}
}

func TestMarketBreadth(t *testing.T) {
	e := newTestEnv(t)
	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }
	e.srv.SetBreadth([]models.BreadthPoint{
		{Date: day(4), Advancers: 50, Decliners: 100, Unchanged: 10},
		{Date: day(2), Advancers: 120, Decliners: 40, Unchanged: 5},
	})

	out := e.mustRun(t, "market", "breadth", "--days", "2")
	first := strings.Index(out, "2024-06-02")
	second := strings.Index(out, "2024-06-04")
	if first < 0 || second < 0 || first > second {
		t.Errorf("breadth not chronological:\n%s", out)
	}
	if !strings.Contains(out, "1 up days, 1 down days") {
		t.Errorf("summary missing:\n%s", out)
	}
	if q := e.srv.LastQuery("/api/market/breadth"); !strings.Contains(q, "days=2") {
		t.Errorf("query = %q", q)
	}
}

func TestChatSendAndHistory(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "chat", "send", "how", "is", "COMI")
	if !strings.Contains(out, "echo: how is COMI") {
		t.Errorf("send output = %q", out)
	}

	out = e.mustRun(t, "chat", "history", "--json")
	var session models.ChatSession
	if err := json.Unmarshal([]byte(out), &session); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	msgs := session.Messages
	if len(msgs) != 2 || msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("history = %+v", msgs)
	}

	e.mustRun(t, "chat", "reset")
	out = e.mustRun(t, "chat", "history", "--json")
	var fresh models.ChatSession
	if err := json.Unmarshal([]byte(out), &fresh); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(fresh.Messages) != 0 || fresh.SessionID == session.SessionID {
		t.Errorf("history after reset = %+v", fresh)
	}
}

func TestChatBackendFailureToasts(t *testing.T) {
	e := newTestEnv(t)
	e.srv.FailNext(http.MethodPost, "/api/chat", http.StatusInternalServerError)

	_, errOut, err := e.run(t, "chat", "send", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(errOut, "✗") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestDashboardDegradesPerSection(t *testing.T) {
	e := newTestEnv(t)
	e.srv.AddHolding(models.Holding{ID: "h1", Symbol: "COMI", Quantity: 10, AveragePrice: 100})
	e.srv.SetQuote("COMI", 110)
	e.srv.FailNext(http.MethodGet, "/api/watchlists", http.StatusInternalServerError)

	out := e.mustRun(t, "dashboard")
	for _, want := range []string{"Watchlists", "✗", "never synced", "Portfolio", "COMI", "No alerts available", "No breadth data available"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q:\n%s", want, out)
		}
	}

	out = e.mustRun(t, "dashboard", "--json")
	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	for _, key := range []string{"market_status", "watchlists", "alerts", "portfolio", "breadth"} {
		if _, ok := got[key]; !ok {
			t.Errorf("json missing %q", key)
		}
	}
}

func TestConfigShowRedactsToken(t *testing.T) {
	e := newTestEnv(t)
	e.app.Config.Credentials.Token = "super-secret-token"

	out := e.mustRun(t, "config", "show", "--json")
	if strings.Contains(out, "super-secret-token") {
		t.Errorf("token leaked: %s", out)
	}
}

func TestStreamSymbolsFromArgs(t *testing.T) {
	e := newTestEnv(t)
	root := NewRootCmd(e.app)

	got, err := streamSymbols(root, e.app, []string{"comi", "SWDY", "COMI"})
	if err != nil {
		t.Fatalf("streamSymbols: %v", err)
	}
	if strings.Join(got, ",") != "COMI,SWDY" {
		t.Errorf("symbols = %v", got)
	}

	if _, err := streamSymbols(root, e.app, []string{"not a symbol"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestStreamSymbolsFromWatchlistsAndHoldings(t *testing.T) {
	e := newTestEnv(t)
	e.mustRun(t, "watchlist", "create", "Mine")
	e.mustRun(t, "watchlist", "add", "Mine", "SWDY", "COMI")
	e.srv.AddHolding(models.Holding{ID: "h1", Symbol: "ETEL", Quantity: 1, AveragePrice: 10})

	got, err := streamSymbols(NewRootCmd(e.app), e.app, nil)
	if err != nil {
		t.Fatalf("streamSymbols: %v", err)
	}
	if strings.Join(got, ",") != "COMI,ETEL,SWDY" {
		t.Errorf("symbols = %v", got)
	}
}

func TestPriceSourceFollowsStreamMode(t *testing.T) {
	e := newTestEnv(t)
	symbols := func() []string { return nil }

	src, err := e.app.priceSource(symbols)
	if err != nil || src.Name() != "poll" {
		t.Errorf("poll mode: src=%v err=%v", src, err)
	}

	e.app.Config.Stream.Mode = config.StreamWebSocket
	e.app.Config.Stream.URL = "ws://localhost:1/ws"
	src, err = e.app.priceSource(symbols)
	if err != nil || src.Name() != "websocket" {
		t.Errorf("websocket mode: src=%v err=%v", src, err)
	}

	e.app.Config.Stream.Mode = config.StreamOff
	if _, err := e.app.priceSource(symbols); err == nil {
		t.Error("expected error when streaming is off")
	}
}

func TestTickPrinterShowsChange(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCmd(&App{Logger: zerolog.Nop()})
	root.SetOut(&buf)
	p := newTickPrinter(NewOutput(root, nil))

	at := time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC)
	p.OnTick(models.PriceTick{Symbol: "COMI", Price: 100, Timestamp: at})
	p.OnTick(models.PriceTick{Symbol: "COMI", Price: 110, Timestamp: at.Add(time.Second)})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "10:00:00") {
		t.Errorf("time not in Cairo: %q", lines[0])
	}
	if !strings.Contains(lines[1], "▲") || !strings.Contains(lines[1], "10.00%") {
		t.Errorf("change line = %q", lines[1])
	}
}
