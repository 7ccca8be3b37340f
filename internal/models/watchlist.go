package models

// Watchlist is a user-named list of ticker symbols.
type Watchlist struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Items []WatchlistItem `json:"items"`
}

// WatchlistItem is one symbol of a watchlist.
type WatchlistItem struct {
	Symbol string `json:"symbol"`
}

// Symbols returns the watchlist symbols de-duplicated, in first-seen order.
func (w Watchlist) Symbols() []string {
	seen := make(map[string]bool, len(w.Items))
	symbols := make([]string, 0, len(w.Items))
	for _, item := range w.Items {
		if seen[item.Symbol] {
			continue
		}
		seen[item.Symbol] = true
		symbols = append(symbols, item.Symbol)
	}
	return symbols
}

// Contains reports whether symbol is in the watchlist.
func (w Watchlist) Contains(symbol string) bool {
	for _, item := range w.Items {
		if item.Symbol == symbol {
			return true
		}
	}
	return false
}
