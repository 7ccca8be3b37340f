// Package notify provides terminal notifications for the dashboard.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"marketdash/pkg/utils"
)

// Kind represents the kind of a notification.
type Kind int

const (
	KindAlert Kind = iota
	KindSuccess
	KindError
	KindInfo
)

// Notification is a message shown in the terminal.
type Notification struct {
	Kind         Kind
	Symbol       string
	Message      string
	CurrentPrice float64
	TriggerPrice float64
	Currency     string
	Timestamp    time.Time
	Priority     int // Higher = more important
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Handler handles one notification.
type Handler func(n Notification)

// TerminalNotifier queues notifications and hands them to its handlers on
// a single goroutine, so handlers never run concurrently.
type TerminalNotifier struct {
	notifications chan Notification
	handlers      []Handler
	mu            sync.RWMutex
	enabled       bool
	bellEnabled   bool
	bell          io.Writer
}

// NewTerminalNotifier creates a new TerminalNotifier.
func NewTerminalNotifier(bufferSize int) *TerminalNotifier {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &TerminalNotifier{
		notifications: make(chan Notification, bufferSize),
		enabled:       true,
		bellEnabled:   true,
		bell:          os.Stdout,
	}
}

// SetBellEnabled enables or disables the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// SetEnabled enables or disables the notifier.
func (tn *TerminalNotifier) SetEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.enabled = enabled
}

// AddHandler adds a notification handler.
func (tn *TerminalNotifier) AddHandler(handler Handler) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.handlers = append(tn.handlers, handler)
}

// Notify queues a notification. When the buffer is full the oldest
// queued notification is dropped.
func (tn *TerminalNotifier) Notify(n Notification) {
	tn.mu.RLock()
	enabled := tn.enabled
	tn.mu.RUnlock()

	if !enabled {
		return
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	for {
		select {
		case tn.notifications <- n:
			return
		default:
		}
		select {
		case <-tn.notifications:
		default:
		}
	}
}

// Start processes notifications until ctx is done.
func (tn *TerminalNotifier) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-tn.notifications:
				tn.process(n)
			}
		}
	}()
}

func (tn *TerminalNotifier) process(n Notification) {
	tn.mu.RLock()
	handlers := tn.handlers
	bellEnabled := tn.bellEnabled
	bell := tn.bell
	tn.mu.RUnlock()

	if bellEnabled && n.Priority > 0 && bell != nil {
		fmt.Fprint(bell, "\a")
	}

	for _, handler := range handlers {
		handler(n)
	}
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification) string {
	var sb strings.Builder

	timestamp := n.Timestamp.Format("15:04:05")

	var label string
	var paint *color.Color
	switch n.Kind {
	case KindAlert:
		label, paint = "🔔 ALERT", color.New(color.FgYellow, color.Bold)
	case KindSuccess:
		label, paint = "✓ OK", color.New(color.FgGreen)
	case KindError:
		label, paint = "✗ ERROR", color.New(color.FgRed)
	default:
		label, paint = "ℹ INFO", color.New(color.FgCyan)
	}

	sb.WriteString(paint.Sprintf("[%s] %s", timestamp, label))

	if n.Symbol != "" {
		sb.WriteString(fmt.Sprintf(" | %s", n.Symbol))
	}

	sb.WriteString(fmt.Sprintf(" | %s", n.Message))

	if n.CurrentPrice > 0 && n.TriggerPrice > 0 {
		distance := (n.CurrentPrice - n.TriggerPrice) / n.TriggerPrice * 100
		sb.WriteString(fmt.Sprintf(" | Last: %s → Target: %s (%s)",
			utils.FormatMoney(n.CurrentPrice, n.Currency),
			utils.FormatMoney(n.TriggerPrice, n.Currency),
			utils.FormatPercent(distance)))
	}

	return sb.String()
}

// WriterHandler returns a handler that prints formatted notifications to w.
func WriterHandler(w io.Writer) Handler {
	return func(n Notification) {
		fmt.Fprintln(w, FormatNotification(n))
	}
}

// Overlay keeps the most recent notifications for watch-style screens.
type Overlay struct {
	notifications []Notification
	maxVisible    int
	mu            sync.RWMutex
	ttl           time.Duration
}

// NewOverlay creates a new notification overlay.
func NewOverlay(maxVisible int, ttl time.Duration) *Overlay {
	if maxVisible <= 0 {
		maxVisible = 5
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Overlay{
		notifications: make([]Notification, 0, maxVisible),
		maxVisible:    maxVisible,
		ttl:           ttl,
	}
}

// Notify adds a notification to the overlay.
func (o *Overlay) Notify(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	active := make([]Notification, 0, len(o.notifications)+1)
	for _, existing := range o.notifications {
		if now.Sub(existing.Timestamp) < o.ttl {
			active = append(active, existing)
		}
	}
	active = append(active, n)

	if len(active) > o.maxVisible {
		active = active[len(active)-o.maxVisible:]
	}
	o.notifications = active
}

// Visible returns the notifications that have not expired.
func (o *Overlay) Visible() []Notification {
	o.mu.RLock()
	defer o.mu.RUnlock()

	now := time.Now()
	visible := make([]Notification, 0, len(o.notifications))
	for _, n := range o.notifications {
		if now.Sub(n.Timestamp) < o.ttl {
			visible = append(visible, n)
		}
	}
	return visible
}

// Clear clears all notifications.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = o.notifications[:0]
}
