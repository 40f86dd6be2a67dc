package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/observability"
)

const (
	defaultCommitment = "confirmed"

	dialTimeout      = 10 * time.Second
	subscribeTimeout = 30 * time.Second

	// Notifications are handed over with a blocking send; the buffer absorbs bursts.
	subscriptionBuffer = 10000
)

var errClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	ReconnectDelay    time.Duration // first redial delay, doubled per failure
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration // extended by every message and pong
	WriteTimeout      time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSClientImpl implements WSClient on gorilla/websocket. One goroutine owns
// the connection: it reads, redials with backoff after a failure and
// resubscribes every registered filter. Channels returned by SubscribeLogs
// survive reconnects and are closed by Close.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	log      *logrus.Entry

	mu       sync.Mutex
	conn     *websocket.Conn // nil while redialing
	subs     []*subscription
	byRemote map[int64]*subscription // server subscription id on the current connection
	pending  map[uint64]pendingSub
	nextID   uint64

	writeMu sync.Mutex

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type subscription struct {
	filter     LogsFilter
	out        chan LogNotification
	registered bool
}

type pendingSub struct {
	sub *subscription
	ack chan error // nil for resubscribes
}

// NewWSClient dials endpoint and starts the connection supervisor.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		log:      logrus.WithFields(logrus.Fields{"component": "solana-ws", "endpoint": endpoint}),
		byRemote: make(map[int64]*subscription),
		pending:  make(map[uint64]pendingSub),
		done:     make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	c.wg.Add(1)
	go c.run(conn)
	return c, nil
}

func (c *WSClientImpl) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// run serves connections until Close.
func (c *WSClientImpl) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for conn != nil {
		c.serve(conn)
		conn = c.redial()
	}
}

// redial returns a new connection, or nil once the client is closed.
func (c *WSClientImpl) redial() *websocket.Conn {
	delay := c.config.ReconnectDelay
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(delay):
		}

		observability.RecordWSReconnect()
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err == nil {
			c.log.Info("reconnected")
			return conn
		}
		c.log.WithError(err).WithField("delay", delay).Warn("reconnect failed")
		delay = min(delay*2, c.config.MaxReconnectDelay)
	}
}

// serve resubscribes on conn and dispatches its messages until it fails.
func (c *WSClientImpl) serve(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return
	}
	resubscribe := c.conn != conn
	c.conn = conn
	c.byRemote = make(map[int64]*subscription)
	subs := append([]*subscription(nil), c.subs...)
	c.mu.Unlock()

	if resubscribe {
		for _, s := range subs {
			if err := c.subscribe(conn, s, nil); err != nil {
				c.log.WithError(err).WithField("mentions", s.filter.Mentions).Warn("resubscribe failed")
			}
		}
	}

	stopPing := make(chan struct{})
	go c.ping(conn, stopPing)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})
	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.log.WithError(err).Warn("connection lost")
			}
			break
		}
		c.dispatch(msg)
	}
	close(stopPing)

	c.mu.Lock()
	c.conn = nil
	for id, p := range c.pending {
		if p.ack != nil {
			p.ack <- errors.New("connection lost before subscription was confirmed")
		}
		delete(c.pending, id)
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *WSClientImpl) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.WithError(err).Debug("ping failed")
			}
		}
	}
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, errClientClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("websocket not connected")
	}

	s := &subscription{filter: filter, out: make(chan LogNotification, subscriptionBuffer)}
	ack := make(chan error, 1)
	if err := c.subscribe(conn, s, ack); err != nil {
		return nil, err
	}

	timer := time.NewTimer(subscribeTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		c.forget(s)
		return nil, ctx.Err()
	case <-timer.C:
		c.forget(s)
		return nil, fmt.Errorf("subscription not confirmed after %s", subscribeTimeout)
	case <-c.done:
		return nil, errClientClosed
	}

	c.log.WithField("mentions", filter.Mentions).Info("logs subscription active")
	return s.out, nil
}

// subscribe sends logsSubscribe for s. dispatch completes it.
func (c *WSClientImpl) subscribe(conn *websocket.Conn, s *subscription, ack chan error) error {
	scope := map[string]interface{}{"mentions": s.filter.Mentions}
	if len(s.filter.Mentions) == 0 {
		scope = map[string]interface{}{"all": nil}
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = pendingSub{sub: s, ack: ack}
	c.mu.Unlock()

	err := c.write(conn, request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params:  []interface{}{scope, map[string]string{"commitment": s.filter.commitment()}},
	})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// forget drops a subscription whose caller gave up waiting.
func (c *WSClientImpl) forget(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		if p.sub == s {
			delete(c.pending, id)
		}
	}
	for remote, sub := range c.byRemote {
		if sub == s {
			delete(c.byRemote, remote)
		}
	}
	for i, sub := range c.subs {
		if sub == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
}

func (c *WSClientImpl) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteJSON(v)
}

// envelope covers every message the server sends: subscribe replies carry
// an id, notifications carry a method.
type envelope struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Params *logsParams     `json:"params"`
}

type logsParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Logs      []string    `json:"logs"`
			Err       interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}

func (c *WSClientImpl) dispatch(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.log.WithError(err).Debug("undecodable message")
		return
	}
	switch {
	case env.Method == "logsNotification" && env.Params != nil:
		c.deliver(env.Params)
	case env.ID != 0:
		c.confirm(&env)
	}
}

func (c *WSClientImpl) confirm(env *envelope) {
	var remote int64
	var err error
	if env.Error != nil {
		err = env.Error
	} else if uerr := json.Unmarshal(env.Result, &remote); uerr != nil {
		err = fmt.Errorf("decode subscription id: %w", uerr)
	}

	c.mu.Lock()
	p, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	if ok && err == nil {
		c.byRemote[remote] = p.sub
		if !p.sub.registered {
			p.sub.registered = true
			c.subs = append(c.subs, p.sub)
		}
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if p.ack != nil {
		p.ack <- err
	} else if err != nil {
		c.log.WithError(err).WithField("request", env.ID).Warn("resubscribe rejected")
	}
}

func (c *WSClientImpl) deliver(p *logsParams) {
	c.mu.Lock()
	s := c.byRemote[p.Subscription]
	c.mu.Unlock()
	if s == nil {
		return
	}

	n := LogNotification{
		Signature: p.Result.Value.Signature,
		Slot:      p.Result.Context.Slot,
		Logs:      p.Result.Value.Logs,
		Err:       p.Result.Value.Err,
	}
	select {
	case s.out <- n:
	case <-c.done:
	}
}

// Close stops the supervisor and closes every subscription channel.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		deadline := time.Now().Add(c.config.WriteTimeout)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		close(s.out)
	}
	c.subs = nil
	c.byRemote = make(map[int64]*subscription)
	return nil
}

var _ WSClient = (*WSClientImpl)(nil)
