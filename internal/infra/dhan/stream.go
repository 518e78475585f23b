package dhan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"indexwatch/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	maxRetries       = 10
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second

	subscribeCode = 15 // ticker subscription
)

// Feed maintains the last streamed price for one instrument over the live
// market feed. It is advisory: the REST client falls back to a fetch
// whenever the cached tick is stale or the feed is down.
type Feed struct {
	wsURL           string
	accessToken     string
	clientID        string
	securityID      string
	exchangeSegment string
	staleAfter      time.Duration

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	lastPrice decimal.Decimal
	lastAt    time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// FeedOptions configures the live feed worker.
type FeedOptions struct {
	WSURL           string
	AccessToken     string
	ClientID        string
	SecurityID      string
	ExchangeSegment string
	StaleAfter      time.Duration
}

// NewFeed creates a live feed worker for one instrument.
func NewFeed(opts FeedOptions) *Feed {
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &Feed{
		wsURL:           opts.WSURL,
		accessToken:     opts.AccessToken,
		clientID:        opts.ClientID,
		securityID:      opts.SecurityID,
		exchangeSegment: opts.ExchangeSegment,
		staleAfter:      staleAfter,
	}
}

// Connect starts the connection loop in the background.
func (f *Feed) Connect(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.connectionLoop(ctx)
	return nil
}

func (f *Feed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			slog.Warn("Live feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			infra.GlobalMetrics.SetFeedConnected(false)
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			f.readLoop(ctx)
			infra.GlobalMetrics.SetFeedConnected(false)
		}
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := make(http.Header)
	header.Set("access-token", f.accessToken)
	header.Set("client-id", f.clientID)

	conn, _, err := dialer.DialContext(ctx, f.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return err
	}

	infra.GlobalMetrics.SetFeedConnected(true)
	slog.Info("Live feed connected",
		slog.String("segment", f.exchangeSegment),
		slog.String("security_id", f.securityID),
	)
	return nil
}

func (f *Feed) subscribe() error {
	msg := subscribeRequest{
		RequestCode:     subscribeCode,
		InstrumentCount: 1,
		InstrumentList: []feedInstrument{
			{ExchangeSegment: f.exchangeSegment, SecurityID: f.securityID},
		},
	}
	b, _ := json.Marshal(msg)
	return f.threadSafeWrite(websocket.TextMessage, b)
}

func (f *Feed) threadSafeWrite(msgType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.conn == nil {
		return fmt.Errorf("no conn")
	}
	return f.conn.WriteMessage(msgType, data)
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		if f.conn == nil {
			f.mu.RUnlock()
			return
		}
		f.conn.SetReadDeadline(time.Now().Add(readTimeout))
		f.mu.RUnlock()

		_, msg, err := f.conn.ReadMessage()
		if err != nil {
			f.closeConnection()
			return
		}
		f.handleMessage(msg)
	}
}

func (f *Feed) handleMessage(msg []byte) {
	var tick feedTick
	if json.Unmarshal(msg, &tick) != nil || tick.LastPrice == nil {
		return
	}
	if tick.SecurityID != "" && tick.SecurityID != f.securityID {
		return
	}

	price := decimal.NewFromFloat(*tick.LastPrice)
	if !price.IsPositive() {
		return
	}

	f.mu.Lock()
	f.lastPrice = price
	f.lastAt = time.Now()
	f.mu.Unlock()
}

// Last returns the most recent streamed price if the feed is connected and
// the tick is within the staleness bound.
func (f *Feed) Last() (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.connected || f.lastAt.IsZero() {
		return decimal.Zero, false
	}
	if time.Since(f.lastAt) > f.staleAfter {
		return decimal.Zero, false
	}
	return f.lastPrice, true
}

// IsConnected reports whether the websocket is up.
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *Feed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false
}

// Disconnect stops the worker and closes the connection.
func (f *Feed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
}
