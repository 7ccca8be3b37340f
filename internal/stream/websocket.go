package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "marketdash/internal/errors"
	"marketdash/internal/models"
	"marketdash/pkg/utils"
)

// WebSocketConfig holds WebSocket source settings.
type WebSocketConfig struct {
	URL   string
	Token string
	// Symbols returns the symbols to subscribe to. It is polled so the
	// subscription follows watchlist and portfolio changes.
	Symbols        func() []string
	ResyncInterval time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	// MaxReconnects bounds consecutive failed connects. Zero means retry forever.
	MaxReconnects int
}

// WebSocketSource streams ticks from the backend's price socket and
// reconnects with exponential backoff.
type WebSocketSource struct {
	config WebSocketConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewWebSocketSource creates a new WebSocketSource.
func NewWebSocketSource(config WebSocketConfig, logger zerolog.Logger) *WebSocketSource {
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = 5 * time.Second
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = time.Minute
	}
	return &WebSocketSource{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With().Str("source", "websocket").Logger(),
	}
}

// Name implements Source.
func (s *WebSocketSource) Name() string { return "websocket" }

// subscribeMessage asks the server for ticks of the listed symbols.
type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Run implements Source.
func (s *WebSocketSource) Run(ctx context.Context, publish func(models.PriceTick)) error {
	failures := 0
	for {
		connected, err := s.session(ctx, publish)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
		} else {
			failures++
		}
		if s.config.MaxReconnects > 0 && failures >= s.config.MaxReconnects {
			return apperrors.Wrapf(err, "price socket unreachable after %d attempts", failures)
		}

		delay := utils.CalculateBackoff(failures, s.config.MinBackoff, s.config.MaxBackoff, 2)
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Price socket disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded.
func (s *WebSocketSource) session(ctx context.Context, publish func(models.PriceTick)) (connected bool, err error) {
	header := http.Header{}
	if s.config.Token != "" {
		header.Set("Authorization", "Bearer "+s.config.Token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.config.URL, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("%w: handshake status %d", apperrors.ErrConnectionFailed, resp.StatusCode)
		}
		return false, fmt.Errorf("%w: %v", apperrors.ErrConnectionFailed, err)
	}
	defer conn.Close()
	s.logger.Info().Str("url", s.config.URL).Msg("Price socket connected")

	subscribed, err := s.subscribe(conn, nil)
	if err != nil {
		return true, err
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			ticks, err := ParseTicks(data)
			if err != nil {
				s.logger.Debug().Err(err).Msg("Skipping unparseable message")
				continue
			}
			for _, t := range ticks {
				publish(t)
			}
		}
	}()

	resync := time.NewTicker(s.config.ResyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return true, ctx.Err()
		case err := <-readErr:
			return true, err
		case <-resync.C:
			if subscribed, err = s.subscribe(conn, subscribed); err != nil {
				return true, err
			}
		}
	}
}

// subscribe sends a subscribe message when the wanted symbols differ from
// prev and returns the current set.
func (s *WebSocketSource) subscribe(conn *websocket.Conn, prev []string) ([]string, error) {
	var symbols []string
	if s.config.Symbols != nil {
		symbols = append(symbols, s.config.Symbols()...)
	}
	sort.Strings(symbols)
	if prev != nil && strings.Join(prev, ",") == strings.Join(symbols, ",") {
		return prev, nil
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbols: symbols}); err != nil {
		return prev, err
	}
	s.logger.Debug().Strs("symbols", symbols).Msg("Subscribed")
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}

// ParseTicks decodes a socket message. A message is a single tick object,
// an array of ticks or an envelope with a "data" array. Ticks without a
// symbol or with a non-positive price are skipped.
func ParseTicks(data []byte) ([]models.PriceTick, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw []models.PriceTick
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case '{':
		var env struct {
			Data []models.PriceTick `json:"data"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		if env.Data != nil {
			raw = env.Data
			break
		}
		var t models.PriceTick
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		raw = []models.PriceTick{t}
	default:
		return nil, fmt.Errorf("unexpected message %q", utils.Truncate(string(data), 40))
	}

	ticks := raw[:0]
	for _, t := range raw {
		t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
		if t.Symbol == "" || t.Price <= 0 {
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}
