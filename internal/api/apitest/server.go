// Package apitest provides an in-memory dashboard backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"marketdash/internal/models"
)

// ChatFunc produces the reply for one chat request.
type ChatFunc func(req models.ChatRequest) (*models.ChatResponse, int)

// Server is a fake backend holding watchlists, alerts, holdings and quotes.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	nextID     int
	watchlists []*models.Watchlist
	alerts     []*models.PriceAlert
	holdings   []*models.Holding
	quotes     map[string]float64
	breadth    []models.BreadthPoint
	screener   []models.ScreenerRow
	chat       ChatFunc
	chatLog    []models.ChatRequest

	failures  map[string]int // "METHOD /pattern" -> status
	warmups   int
	hits      map[string]int
	lastQuery map[string]string
}

// NewServer starts a new fake backend.
func NewServer() *Server {
	s := &Server{
		quotes:    make(map[string]float64),
		failures:  make(map[string]int),
		hits:      make(map[string]int),
		lastQuery: make(map[string]string),
		chat: func(req models.ChatRequest) (*models.ChatResponse, int) {
			return &models.ChatResponse{Reply: "echo: " + req.Message, Language: "en"}, http.StatusOK
		},
	}

	r := chi.NewRouter()
	r.Use(s.intercept)

	r.Post("/api/chat", s.handleChat)

	r.Get("/api/watchlists", s.handleListWatchlists)
	r.Post("/api/watchlists", s.handleCreateWatchlist)
	r.Delete("/api/watchlists/{id}", s.handleDeleteWatchlist)
	r.Post("/api/watchlists/{id}/items", s.handleAddItem)
	r.Delete("/api/watchlists/{id}/items/{symbol}", s.handleRemoveItem)

	r.Get("/api/alerts", s.handleListAlerts)
	r.Post("/api/alerts", s.handleCreateAlert)
	r.Delete("/api/alerts/{id}", s.handleDeleteAlert)

	r.Get("/api/portfolio/holdings", s.handleListHoldings)
	r.Post("/api/portfolio/holdings", s.handleCreateHolding)
	r.Delete("/api/portfolio/holdings/{id}", s.handleDeleteHolding)
	r.Get("/api/market/quotes", s.handleQuotes)

	r.Get("/api/stocks/screener", s.handleScreener)
	r.Get("/api/market/breadth", s.handleBreadth)

	s.Server = httptest.NewServer(r)
	return s
}

// intercept counts hits and injects configured failures.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.hits[key]++
		s.lastQuery[r.URL.Path] = r.URL.RawQuery
		status, fail := s.failures[key]
		if fail {
			delete(s.failures, key)
		}
		warm := s.warmups > 0
		if warm {
			s.warmups--
		}
		s.mu.Unlock()

		if warm {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "<html><body>Starting up...</body></html>")
			return
		}
		if fail {
			writeJSON(w, status, map[string]string{"detail": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next request to method+path fail with status.
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// WarmUp makes the next n requests answer with an HTML page.
func (s *Server) WarmUp(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmups = n
}

// Hits returns how many times method+path was requested.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// LastQuery returns the raw query of the last request to path.
func (s *Server) LastQuery(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[path]
}

// SetChat replaces the chat reply function.
func (s *Server) SetChat(fn ChatFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = fn
}

// ChatRequests returns the chat requests received so far.
func (s *Server) ChatRequests() []models.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatRequest(nil), s.chatLog...)
}

// SetQuote sets the current price of symbol.
func (s *Server) SetQuote(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = price
}

// TriggerAlert marks an alert as triggered, as the backend would.
func (s *Server) TriggerAlert(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id {
			a.TriggeredAt = &at
		}
	}
}

// ResetAlertTrigger clears an alert's trigger time. Real backends never do
// this; tests use it to check the client keeps the trigger.
func (s *Server) ResetAlertTrigger(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id {
			a.TriggeredAt = nil
		}
	}
}

// AddHolding seeds a raw holding.
func (s *Server) AddHolding(h models.Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = s.newID()
	}
	s.holdings = append(s.holdings, &h)
}

// SetBreadth seeds market breadth history, newest first.
func (s *Server) SetBreadth(points []models.BreadthPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breadth = points
}

// SetScreener seeds screener rows.
func (s *Server) SetScreener(rows []models.ScreenerRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screener = rows
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	s.chatLog = append(s.chatLog, req)
	fn := s.chat
	s.mu.Unlock()

	resp, status := fn(req)
	writeJSON(w, status, resp)
}

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Watchlist, 0, len(s.watchlists))
	for _, wl := range s.watchlists {
		cp := *wl
		cp.Items = append([]models.WatchlistItem{}, wl.Items...)
		out = append(out, cp)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"watchlists": out})
}

func (s *Server) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "name is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wl := range s.watchlists {
		if strings.EqualFold(wl.Name, body.Name) {
			writeJSON(w, http.StatusConflict, map[string]string{"detail": "watchlist already exists"})
			return
		}
	}
	wl := &models.Watchlist{ID: s.newID(), Name: body.Name, Items: []models.WatchlistItem{}}
	s.watchlists = append(s.watchlists, wl)
	writeJSON(w, http.StatusCreated, wl)
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, wl := range s.watchlists {
		if wl.ID == id {
			s.watchlists = append(s.watchlists[:i], s.watchlists[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "watchlist not found"})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var item models.WatchlistItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil || item.Symbol == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "symbol is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wl := range s.watchlists {
		if wl.ID == id {
			if !wl.Contains(item.Symbol) {
				wl.Items = append(wl.Items, item)
			}
			writeJSON(w, http.StatusCreated, wl)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "watchlist not found"})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	symbol := chi.URLParam(r, "symbol")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wl := range s.watchlists {
		if wl.ID != id {
			continue
		}
		items := wl.Items[:0]
		for _, it := range wl.Items {
			if it.Symbol != symbol {
				items = append(items, it)
			}
		}
		wl.Items = items
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "watchlist not found"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.PriceAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.PriceAlert{
		ID:          s.newID(),
		Symbol:      req.Symbol,
		Condition:   req.Condition,
		TargetPrice: req.TargetPrice,
		CreatedAt:   time.Now().UTC(),
	}
	s.alerts = append(s.alerts, a)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.alerts {
		if a.ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "alert not found"})
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, *h)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"holdings": out})
}

func (s *Server) handleCreateHolding(w http.ResponseWriter, r *http.Request) {
	var req models.CreateHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := &models.Holding{
		ID:           s.newID(),
		Symbol:       req.Symbol,
		Quantity:     req.Quantity,
		AveragePrice: req.AveragePrice,
		CurrentPrice: s.quotes[req.Symbol],
	}
	s.holdings = append(s.holdings, h)
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.holdings {
		if h.ID == id {
			s.holdings = append(s.holdings[:i], s.holdings[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "holding not found"})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	symbols := strings.Split(r.URL.Query().Get("symbols"), ",")

	s.mu.Lock()
	out := make([]models.Quote, 0, len(symbols))
	for _, sym := range symbols {
		if price, ok := s.quotes[sym]; ok {
			out = append(out, models.Quote{Symbol: sym, Price: price, UpdatedAt: time.Now().UTC()})
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": out})
}

func (s *Server) handleScreener(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rows := append([]models.ScreenerRow{}, s.screener...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"stocks": rows, "total": len(rows)})
}

func (s *Server) handleBreadth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	points := append([]models.BreadthPoint{}, s.breadth...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, points)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
