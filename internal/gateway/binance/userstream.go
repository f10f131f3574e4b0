package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/pkg/retry"
	"github.com/nirre55/bot-final/internal/types"
)

var errListenKeyExpired = errors.New("listen key expired")

type listenKeyAPI interface {
	Start(ctx context.Context) (string, error)
	Keepalive(ctx context.Context, key string) error
	Close(ctx context.Context, key string) error
}

type sdkListenKeys struct{ client *futures.Client }

func (s sdkListenKeys) Start(ctx context.Context) (string, error) {
	key, err := s.client.NewStartUserStreamService().Do(ctx)
	return key, wrapError(err)
}

func (s sdkListenKeys) Keepalive(ctx context.Context, key string) error {
	return wrapError(s.client.NewKeepaliveUserStreamService().ListenKey(key).Do(ctx))
}

func (s sdkListenKeys) Close(ctx context.Context, key string) error {
	return wrapError(s.client.NewCloseUserStreamService().ListenKey(key).Do(ctx))
}

// UserStream is the account data stream: execution reports and balance or
// position updates. It owns the listen key and reconnects on its own,
// emitting StreamReconnected once a replacement connection is live.
type UserStream struct {
	wsBase string
	keys   listenKeyAPI
	dialer websocket.Dialer

	ReadTimeout       time.Duration
	KeepaliveInterval time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	key    string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ exchange.OrderStream = (*UserStream)(nil)

func NewUserStream(cfg Config) (*UserStream, error) {
	final := cfg.withDefaults()
	client, err := newFuturesClient(final)
	if err != nil {
		return nil, err
	}
	us := newUserStream(final.WSBaseURL, sdkListenKeys{client: client})
	if final.ProxyEnabled && final.WSProxyURL != "" {
		proxyURL, err := url.Parse(final.WSProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid WS proxy url: %w", err)
		}
		us.dialer.Proxy = http.ProxyURL(proxyURL)
	}
	return us, nil
}

func newUserStream(wsBase string, keys listenKeyAPI) *UserStream {
	return &UserStream{
		wsBase:            wsBase,
		keys:              keys,
		dialer:            websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ReadTimeout:       10 * time.Minute,
		KeepaliveInterval: 30 * time.Minute,
		MinBackoff:        time.Second,
		MaxBackoff:        30 * time.Second,
	}
}

// Start obtains a listen key and connects once before returning, so a
// misconfigured key fails fast. The channel closes when ctx ends.
func (u *UserStream) Start(ctx context.Context) (<-chan exchange.StreamEvent, error) {
	key, err := u.keys.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start user stream: %w", err)
	}
	conn, err := u.dial(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("connect user stream: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	u.mu.Lock()
	u.key = key
	u.conn = conn
	u.cancel = cancel
	u.mu.Unlock()

	out := make(chan exchange.StreamEvent, 256)
	u.wg.Add(2)
	go func() {
		defer u.wg.Done()
		defer close(out)
		u.runLoop(ctx, conn, out)
	}()
	go func() {
		defer u.wg.Done()
		u.keepaliveLoop(ctx)
	}()
	return out, nil
}

func (u *UserStream) dial(ctx context.Context, key string) (*websocket.Conn, error) {
	conn, _, err := u.dialer.DialContext(ctx, u.wsBase+"/"+key, nil)
	if err != nil {
		return nil, err
	}
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(u.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})
	return conn, nil
}

func (u *UserStream) runLoop(ctx context.Context, conn *websocket.Conn, out chan<- exchange.StreamEvent) {
	wait := retry.Backoff{Min: u.MinBackoff, Max: u.MaxBackoff}
	attempt := 0
	for {
		err := u.read(ctx, conn, out)
		u.dropConn()
		if ctx.Err() != nil {
			return
		}
		logger.Warnf("[binance] user stream dropped: %v", err)
		for {
			if !wait.Wait(ctx) {
				return
			}
			attempt++
			key, kerr := u.keys.Start(ctx)
			if kerr != nil {
				logger.Warnf("[binance] user stream listen key: %v", kerr)
				continue
			}
			c, derr := u.dial(ctx, key)
			if derr != nil {
				logger.Warnf("[binance] user stream reconnect #%d: %v", attempt, derr)
				continue
			}
			u.mu.Lock()
			u.key = key
			u.conn = c
			u.mu.Unlock()
			conn = c
			break
		}
		wait.Reset()
		attempt = 0
		logger.Infof("[binance] user stream reconnected")
		if !emit(ctx, out, exchange.StreamEvent{Kind: exchange.StreamReconnected}) {
			return
		}
	}
}

func (u *UserStream) read(ctx context.Context, conn *websocket.Conn, out chan<- exchange.StreamEvent) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(u.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok, err := parseUserEvent(msg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !emit(ctx, out, ev) {
			return ctx.Err()
		}
	}
}

func emit(ctx context.Context, out chan<- exchange.StreamEvent, ev exchange.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

func (u *UserStream) keepaliveLoop(ctx context.Context) {
	if u.KeepaliveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(u.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.mu.Lock()
			key := u.key
			u.mu.Unlock()
			if err := u.keys.Keepalive(ctx, key); err != nil {
				logger.Warnf("[binance] listen key keepalive: %v", err)
			}
		}
	}
}

func (u *UserStream) dropConn() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
}

// Close stops the stream and releases the listen key.
func (u *UserStream) Close() error {
	u.mu.Lock()
	cancel := u.cancel
	key := u.key
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	u.dropConn()
	u.wg.Wait()
	if key == "" {
		return nil
	}
	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return u.keys.Close(ctx, key)
}

// parseUserEvent decodes one stream payload. ok is false for event types
// the core does not consume.
func parseUserEvent(msg []byte) (exchange.StreamEvent, bool, error) {
	if !gjson.ValidBytes(msg) {
		return exchange.StreamEvent{}, false, fmt.Errorf("invalid user stream payload")
	}
	root := gjson.ParseBytes(msg)
	switch root.Get("e").String() {
	case "ORDER_TRADE_UPDATE":
		rep := parseOrderUpdate(root)
		return exchange.StreamEvent{Kind: exchange.StreamExecution, Execution: &rep}, true, nil
	case "ACCOUNT_UPDATE":
		upd := parseAccountUpdate(root)
		return exchange.StreamEvent{Kind: exchange.StreamAccount, Account: &upd}, true, nil
	case "listenKeyExpired":
		return exchange.StreamEvent{}, false, errListenKeyExpired
	}
	return exchange.StreamEvent{}, false, nil
}

func parseOrderUpdate(root gjson.Result) exchange.ExecutionReport {
	o := root.Get("o")
	side, _ := types.ParseSide(o.Get("ps").String())
	orderType := o.Get("ot").String()
	if orderType == "" {
		orderType = o.Get("o").String()
	}
	return exchange.ExecutionReport{
		Symbol:              o.Get("s").String(),
		OrderID:             strconv.FormatInt(o.Get("i").Int(), 10),
		ClientOrderID:       o.Get("c").String(),
		Side:                o.Get("S").String(),
		PositionSide:        side,
		OrderType:           exchange.OrderType(orderType),
		Status:              exchange.OrderStatus(o.Get("X").String()),
		ExecutionType:       o.Get("x").String(),
		CumulativeFilledQty: o.Get("z").Float(),
		LastFillPrice:       o.Get("L").Float(),
		AveragePrice:        o.Get("ap").Float(),
		RealizedProfit:      o.Get("rp").Float(),
		EventTime:           time.UnixMilli(root.Get("E").Int()),
	}
}

func parseAccountUpdate(root gjson.Result) exchange.AccountUpdate {
	upd := exchange.AccountUpdate{
		Balances:  make(map[string]float64),
		EventTime: time.UnixMilli(root.Get("E").Int()),
	}
	root.Get("a.B").ForEach(func(_, b gjson.Result) bool {
		upd.Balances[b.Get("a").String()] = b.Get("wb").Float()
		return true
	})
	root.Get("a.P").ForEach(func(_, p gjson.Result) bool {
		side, ok := types.ParseSide(p.Get("ps").String())
		if !ok {
			return true
		}
		upd.Positions = append(upd.Positions, types.PositionSnapshot{
			Symbol:     p.Get("s").String(),
			Side:       side,
			Quantity:   math.Abs(p.Get("pa").Float()),
			EntryPrice: p.Get("ep").Float(),
		})
		return true
	})
	return upd
}
