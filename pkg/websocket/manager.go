// Package websocket streams CLOB market-channel events and folds them
// into the quote cache, reconnecting with backoff when the venue drops
// the connection.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Sink receives parsed market-channel events. The quote cache
// implements it.
type Sink interface {
	ApplyBook(msg *types.BookMessage)
	ApplyPriceChange(msg *types.PriceChangeMessage)
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	Sink                  Sink
	Logger                *zap.Logger
}

// Manager manages one market-channel WebSocket connection. Instruments
// are swapped wholesale at each hourly rollover via SetInstruments.
type Manager struct {
	url          string
	sink         Sink
	logger       *zap.Logger
	reconnectMgr *reconnecter
	config       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool

	connected       atomic.Bool
	connectionStart atomic.Int64
}

// New creates a market-channel manager. Call Start to connect.
func New(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		url:  cfg.URL,
		sink: cfg.Sink,
		reconnectMgr: newReconnecter(reconnectConfig{
			InitialDelay:      cfg.ReconnectInitialDelay,
			MaxDelay:          cfg.ReconnectMaxDelay,
			BackoffMultiplier: cfg.ReconnectBackoffMult,
			JitterPercent:     0.2,
		}, cfg.Logger),
		config:     cfg,
		logger:     cfg.Logger.With(zap.String("component", "websocket")),
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(map[string]bool),
	}, nil
}

// Start dials the venue and launches the read, ping and reconnect
// loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-starting", zap.String("url", m.url))

	if err := m.connect(m.ctx); err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: m.config.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.connected.Store(true)
	m.connectionStart.Store(time.Now().Unix())
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

// SetInstruments replaces the subscription set: instruments no longer
// in ids are unsubscribed, new ones subscribed. Used at market
// rollover when the active Up/Down pair changes.
func (m *Manager) SetInstruments(ctx context.Context, ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	m.mu.RLock()
	var stale, fresh []string
	for id := range m.subscribed {
		if !want[id] {
			stale = append(stale, id)
		}
	}
	for id := range want {
		if !m.subscribed[id] {
			fresh = append(fresh, id)
		}
	}
	m.mu.RUnlock()

	if err := m.Unsubscribe(ctx, stale); err != nil {
		return err
	}

	return m.Subscribe(ctx, fresh)
}

// Subscribe subscribes to a list of instrument IDs.
func (m *Manager) Subscribe(ctx context.Context, instrumentIDs []string) error {
	if len(instrumentIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	fresh := make([]string, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if !m.subscribed[id] {
			fresh = append(fresh, id)
			m.subscribed[id] = true
		}
	}

	if len(fresh) == 0 {
		m.mu.Unlock()
		return nil
	}

	// The first message on a fresh connection carries type:market,
	// later additions use the subscribe operation.
	var msg map[string]interface{}
	if len(m.subscribed) == len(fresh) {
		msg = map[string]interface{}{"assets_ids": fresh, "type": "market"}
	} else {
		msg = map[string]interface{}{"assets_ids": fresh, "operation": "subscribe"}
	}

	total := len(m.subscribed)
	conn := m.conn
	m.mu.Unlock()

	if err := conn.WriteJSON(msg); err != nil {
		m.mu.Lock()
		for _, id := range fresh {
			delete(m.subscribed, id)
		}
		total = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("write subscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(total))

	m.logger.Info("subscribed-to-instruments",
		zap.Int("new-count", len(fresh)),
		zap.Int("total-count", total))

	return nil
}

// Unsubscribe unsubscribes from a list of instrument IDs.
func (m *Manager) Unsubscribe(ctx context.Context, instrumentIDs []string) error {
	if len(instrumentIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	stale := make([]string, 0, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if m.subscribed[id] {
			stale = append(stale, id)
			delete(m.subscribed, id)
		}
	}

	if len(stale) == 0 {
		m.mu.Unlock()
		return nil
	}

	msg := map[string]interface{}{"assets_ids": stale, "operation": "unsubscribe"}

	total := len(m.subscribed)
	conn := m.conn
	m.mu.Unlock()

	if err := conn.WriteJSON(msg); err != nil {
		m.mu.Lock()
		for _, id := range stale {
			m.subscribed[id] = true
		}
		total = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(total))
		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(total))

	m.logger.Info("unsubscribed-from-instruments",
		zap.Int("count", len(stale)),
		zap.Int("remaining-count", total))

	return nil
}

func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.ctx.Done():
			default:
				m.logger.Warn("read-error", zap.Error(err))
			}

			if start := m.connectionStart.Load(); start > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(start, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		m.dispatch(message)
	}
}

// dispatch parses one frame and routes each event to the sink. The
// market channel batches events into JSON arrays; anything else is a
// heartbeat or control frame.
func (m *Manager) dispatch(message []byte) {
	var raws []json.RawMessage
	if err := json.Unmarshal(message, &raws); err != nil {
		if len(message) < 10 {
			return // heartbeat
		}
		preview := string(message)
		if len(preview) > 100 {
			preview = preview[:100]
		}
		m.logger.Debug("websocket-unparseable-frame",
			zap.Error(err),
			zap.Int("bytes", len(message)),
			zap.String("preview", preview))
		return
	}

	for _, raw := range raws {
		start := time.Now()

		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			MessagesDroppedTotal.WithLabelValues("parse_error").Inc()
			continue
		}

		MessagesReceivedTotal.WithLabelValues(envelope.EventType).Inc()

		switch envelope.EventType {
		case "book":
			var book types.BookMessage
			if err := json.Unmarshal(raw, &book); err != nil {
				m.logger.Debug("book-parse-error", zap.Error(err))
				MessagesDroppedTotal.WithLabelValues("parse_error").Inc()
				continue
			}
			m.sink.ApplyBook(&book)
		case "price_change":
			var change types.PriceChangeMessage
			if err := json.Unmarshal(raw, &change); err != nil {
				m.logger.Debug("price-change-parse-error", zap.Error(err))
				MessagesDroppedTotal.WithLabelValues("parse_error").Inc()
				continue
			}
			m.sink.ApplyPriceChange(&change)
		default:
			// last_trade_price, tick_size_change: not needed for
			// top-of-book quoting.
		}

		MessageLatencySeconds.Observe(time.Since(start).Seconds())
	}
}

func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if err == context.Canceled {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		if err := m.resubscribeAll(); err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		m.logger.Info("reconnection-complete")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// resubscribeAll replays the full subscription set after a reconnect.
func (m *Manager) resubscribeAll() error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		ids = append(ids, id)
	}
	conn := m.conn
	m.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	msg := map[string]interface{}{"assets_ids": ids, "type": "market"}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	m.logger.Info("resubscribed-to-instruments", zap.Int("count", len(ids)))

	return nil
}

// Connected reports whether the connection is currently up.
func (m *Manager) Connected() bool { return m.connected.Load() }

// Close stops the loops and closes the connection.
func (m *Manager) Close() error {
	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	ActiveConnections.Set(0)

	m.logger.Info("websocket-closed")

	return nil
}
