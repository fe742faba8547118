package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drcevik47/MahfuzC-Rebalancer/internal/domain"
	"github.com/drcevik47/MahfuzC-Rebalancer/internal/services/marketdata"
)

const (
	MainnetStreamURL = "wss://stream.bybit.com/v5/public/spot"
	TestnetStreamURL = "wss://stream-testnet.bybit.com/v5/public/spot"

	pingInterval         = 20 * time.Second
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10

	tickerTopicPrefix = "tickers."
)

type wsControlMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsPushMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// StatusFunc receives connection state changes. Called from the stream's
// own goroutine; implementations must not invoke planning or execution.
type StatusFunc func(status domain.ConnectionStatus, err error)

// Stream maintains the public spot ticker feed and writes every push update
// into the market data cache. It reconnects with a fixed backoff up to a
// bounded number of attempts; the bound resets on any successful connect.
type Stream struct {
	url      string
	cache    *marketdata.Cache
	logger   *zap.Logger
	onStatus StatusFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	topics map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}

	// fixed timed waits, not event-driven; shortened in tests
	pingInterval   time.Duration
	reconnectDelay time.Duration
}

func NewStream(url string, cache *marketdata.Cache, onStatus StatusFunc, logger *zap.Logger) *Stream {
	if onStatus == nil {
		onStatus = func(domain.ConnectionStatus, error) {}
	}
	return &Stream{
		url:            url,
		cache:          cache,
		logger:         logger,
		onStatus:       onStatus,
		topics:         make(map[string]struct{}),
		pingInterval:   pingInterval,
		reconnectDelay: reconnectDelay,
	}
}

// Start connects and runs the read loop in the background until Close or
// ctx cancellation. The first dial failure is returned synchronously so the
// caller can fall back to REST polling immediately.
func (s *Stream) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.onStatus(domain.ConnectionConnecting, nil)
	if err := s.connect(runCtx); err != nil {
		s.onStatus(domain.ConnectionError, err)
		go s.run(runCtx, 1)
		return err
	}

	go s.run(runCtx, 0)
	return nil
}

// Subscribe registers ticker topics for the given symbols and, when
// connected, sends the subscribe op. Topics survive reconnects.
func (s *Stream) Subscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		topic := tickerTopicPrefix + symbol
		if _, ok := s.topics[topic]; ok {
			continue
		}
		s.topics[topic] = struct{}{}
		args = append(args, topic)
	}

	if len(args) == 0 || s.conn == nil {
		return nil
	}
	return s.conn.WriteJSON(wsControlMessage{Op: "subscribe", Args: args})
}

// Close tears the connection down and stops reconnecting.
func (s *Stream) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	if s.done != nil {
		<-s.done
	}
	s.cache.Clear()
	s.onStatus(domain.ConnectionDisconnected, nil)
}

func (s *Stream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	var subErr error
	if len(topics) > 0 {
		subErr = conn.WriteJSON(wsControlMessage{Op: "subscribe", Args: topics})
	}
	s.mu.Unlock()
	if subErr != nil {
		return subErr
	}

	s.onStatus(domain.ConnectionConnected, nil)
	s.logger.Info("market data stream connected",
		zap.String("url", s.url), zap.Int("topics", len(topics)))
	return nil
}

// run owns reconnection. attempts carries the current consecutive failure
// count; it resets to zero after every successful connect.
func (s *Stream) run(ctx context.Context, attempts int) {
	defer close(s.done)

	for {
		if attempts == 0 {
			if err := s.readLoop(ctx); err == nil {
				return // deliberate close
			}
			s.cache.Clear()
			attempts = 1
		}

		if attempts > maxReconnectAttempts {
			s.logger.Error("market data stream gave up reconnecting",
				zap.Int("attempts", attempts-1))
			s.onStatus(domain.ConnectionError, errReconnectExhausted)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}

		s.onStatus(domain.ConnectionConnecting, nil)
		s.logger.Info("reconnecting market data stream", zap.Int("attempt", attempts))
		if err := s.connect(ctx); err != nil {
			s.logger.Warn("market data stream reconnect failed", zap.Error(err))
			s.onStatus(domain.ConnectionError, err)
			attempts++
			continue
		}
		attempts = 0
	}
}

// readLoop pumps messages until the connection drops. A nil return means
// the loop ended because the stream is shutting down.
func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errConnClosed
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx, conn)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("market data stream read failed", zap.Error(err))
			s.onStatus(domain.ConnectionError, err)
			return err
		}
		s.handleMessage(payload)
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			err := conn.WriteJSON(wsControlMessage{Op: "ping"})
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Stream) handleMessage(payload []byte) {
	var msg wsPushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Debug("unparsable stream message", zap.Error(err))
		return
	}
	if !strings.HasPrefix(msg.Topic, tickerTopicPrefix) || msg.Data.LastPrice == "" {
		return
	}

	symbol := msg.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Topic, tickerTopicPrefix)
	}
	price, err := decimal.NewFromString(msg.Data.LastPrice)
	if err != nil {
		s.logger.Debug("unparsable ticker price",
			zap.String("symbol", symbol), zap.String("raw", msg.Data.LastPrice))
		return
	}
	s.cache.Set(symbol, price)
}
