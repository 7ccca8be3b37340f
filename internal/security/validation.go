// Package security provides input validation for user-supplied values.
package security

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "marketdash/internal/errors"
)

// Validation patterns
var (
	// Symbol pattern: uppercase letters, numbers, dots and limited special chars
	symbolPattern = regexp.MustCompile(`^[A-Z0-9.&-]{1,20}$`)

	// Watchlist name pattern: letters (any script), numbers, spaces, underscores and dashes
	watchlistPattern = regexp.MustCompile(`^[\p{L}\p{N}_ -]{1,50}$`)

	// Command injection patterns
	cmdInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[;|$\x60]`),
		regexp.MustCompile(`(?i)(union\s+select|drop\s+table|delete\s+from)`),
	}
)

// MaxMessageLength bounds a chat message.
const MaxMessageLength = 4000

// NormalizeSymbol trims and upper-cases a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol validates a stock symbol and returns its normalized form.
func ValidateSymbol(symbol string) (string, error) {
	symbol = NormalizeSymbol(symbol)

	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}

	if len(symbol) > 20 {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol too long (max 20 characters)")
	}

	if !symbolPattern.MatchString(symbol) {
		return "", apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}

	return symbol, nil
}

// ValidateWatchlistName validates a watchlist name and returns it trimmed.
func ValidateWatchlistName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", apperrors.NewValidationError("name", name, "watchlist name cannot be empty")
	}

	if utf8.RuneCountInString(name) > 50 {
		return "", apperrors.NewValidationError("name", name, "watchlist name too long (max 50 characters)")
	}

	if !watchlistPattern.MatchString(name) || containsInjection(name) {
		return "", apperrors.NewValidationError("name", name, "invalid watchlist name format")
	}

	return name, nil
}

// ValidateTargetPrice validates an alert target price.
func ValidateTargetPrice(price float64) error {
	if !finite(price) {
		return apperrors.NewValidationError("target_price", price, "target price must be a number")
	}
	if price <= 0 {
		return apperrors.NewValidationError("target_price", price, "target price must be positive")
	}
	if price > 1e9 {
		return apperrors.NewValidationError("target_price", price, "target price exceeds maximum allowed")
	}
	return nil
}

// ValidateQuantity validates a holding quantity.
func ValidateQuantity(qty float64) error {
	if !finite(qty) {
		return apperrors.NewValidationError("quantity", qty, "quantity must be a number")
	}
	if qty <= 0 {
		return apperrors.NewValidationError("quantity", qty, "quantity must be positive")
	}
	if qty > 1e9 {
		return apperrors.NewValidationError("quantity", qty, "quantity exceeds maximum allowed")
	}
	return nil
}

// ValidatePrice validates a non-negative price value.
func ValidatePrice(field string, price float64) error {
	if !finite(price) {
		return apperrors.NewValidationError(field, fmt.Sprint(price), "price must be a number")
	}
	if price < 0 {
		return apperrors.NewValidationError(field, fmt.Sprintf("%.2f", price), "price cannot be negative")
	}
	if price > 1e9 {
		return apperrors.NewValidationError(field, fmt.Sprintf("%.2f", price), "price exceeds maximum allowed")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateMessage validates a chat message and returns it trimmed.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewValidationError("message", text, "message cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", apperrors.NewValidationError("message", len(text),
			fmt.Sprintf("message too long (max %d characters)", MaxMessageLength))
	}
	return text, nil
}

// containsInjection checks for command or query injection patterns.
func containsInjection(input string) bool {
	for _, pattern := range cmdInjectionPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}
