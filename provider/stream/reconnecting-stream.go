package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	promclient "github.com/spooky-finn/go-cryptomarkets-view/infrastructure/prometheus"
)

const closeWriteTimeout = time.Second

// Decoder turns one websocket frame into a typed message.
type Decoder[T any] func(payload []byte) (T, error)

type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

func NewDialer(handshakeTimeout time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
}

type Options struct {
	// BaseURL is joined with the subscription key, e.g. wss://host/ws + btcusdt@depth.
	BaseURL string
	Policy  Policy
	Dialer  Dialer
	// Label names the stream kind in metrics.
	Label string
	// After waits for the backoff delay; tests replace it.
	After func(time.Duration) <-chan time.Time
}

// ReconnectingStream owns one socket per subscribed key. It redials with a bounded
// linear backoff until the retry budget is spent or the key is unsubscribed.
type ReconnectingStream[T any] struct {
	opts   Options
	decode Decoder[T]
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]*subscription[T]
	gen  uint64
}

func NewReconnectingStream[T any](opts Options, decode Decoder[T], logger *zap.Logger) *ReconnectingStream[T] {
	if opts.Dialer == nil {
		opts.Dialer = NewDialer(5 * time.Second)
	}
	if opts.Policy.Step <= 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.After == nil {
		opts.After = time.After
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &ReconnectingStream[T]{
		opts:   opts,
		decode: decode,
		logger: logger,
		subs:   make(map[string]*subscription[T]),
	}
}

type subscription[T any] struct {
	key string
	// gen is the active key token: a subscription only delivers while it is the
	// registered generation for its key.
	gen uint64
	// owner counts the handles issued for this socket. Only the latest handle may
	// unsubscribe it; bumped under ReconnectingStream.mu.
	owner atomic.Uint64

	state atomic.Value

	// dispatchMu serializes delivery and doubles as the barrier for Unsubscribe.
	dispatchMu sync.Mutex
	cb         domain.StreamCallbacks[T]
	stopped    bool

	connMu sync.Mutex
	conn   *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (sub *subscription[T]) State() domain.ConnectionState {
	state, _ := sub.state.Load().(domain.ConnectionState)
	return state
}

// Subscribe opens the socket for key in the background. Subscribing a key that is
// already live keeps its socket and hands delivery to the new callbacks; the previous
// handle becomes inert.
func (s *ReconnectingStream[T]) Subscribe(key string, cb domain.StreamCallbacks[T]) *domain.Subscription {
	s.mu.Lock()
	if existing, ok := s.subs[key]; ok {
		owner := existing.owner.Add(1)
		s.mu.Unlock()

		existing.dispatchMu.Lock()
		existing.cb = cb
		existing.dispatchMu.Unlock()

		return s.handle(existing, owner)
	}

	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription[T]{
		key:    key,
		gen:    s.gen,
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.state.Store(domain.ConnectionState_Connecting)
	s.subs[key] = sub
	s.mu.Unlock()

	go s.run(sub)

	return s.handle(sub, 0)
}

// Unsubscribe closes the socket of key with a normal closure and cancels any pending
// reconnect. Once it returns no callback for that subscription runs again.
func (s *ReconnectingStream[T]) Unsubscribe(key string) {
	s.mu.Lock()
	sub, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
	}
	s.mu.Unlock()

	if ok {
		s.stop(sub)
	}
}

// Close unsubscribes every key.
func (s *ReconnectingStream[T]) Close() {
	s.mu.Lock()
	subs := make([]*subscription[T], 0, len(s.subs))
	for key, sub := range s.subs {
		subs = append(subs, sub)
		delete(s.subs, key)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.stop(sub)
	}
}

func (s *ReconnectingStream[T]) handle(sub *subscription[T], owner uint64) *domain.Subscription {
	return &domain.Subscription{
		Topic: sub.key,
		Unsubscribe: func() {
			s.unsubscribe(sub, owner)
		},
		State: func() domain.ConnectionState {
			if sub.owner.Load() != owner {
				return domain.ConnectionState_Closed
			}
			return sub.State()
		},
	}
}

// unsubscribe is a no-op for a handle whose callbacks were replaced by a later
// Subscribe of the same key. Otherwise it drops sub if it is still the registered
// generation, so a handle of a retired socket cannot tear down a newer one.
func (s *ReconnectingStream[T]) unsubscribe(sub *subscription[T], owner uint64) {
	s.mu.Lock()
	if sub.owner.Load() != owner {
		s.mu.Unlock()
		return
	}
	if current, ok := s.subs[sub.key]; ok && current.gen == sub.gen {
		delete(s.subs, sub.key)
	}
	s.mu.Unlock()

	s.stop(sub)
}

func (s *ReconnectingStream[T]) stop(sub *subscription[T]) {
	sub.dispatchMu.Lock()
	if sub.stopped {
		sub.dispatchMu.Unlock()
		<-sub.done
		return
	}
	sub.stopped = true
	sub.dispatchMu.Unlock()

	sub.cancel()

	sub.connMu.Lock()
	if sub.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe")
		_ = sub.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		_ = sub.conn.Close()
	}
	sub.connMu.Unlock()

	<-sub.done
	sub.state.Store(domain.ConnectionState_Closed)

	if config.DebugMode {
		s.logger.Debug("unsubscribed", zap.String("key", sub.key), zap.Uint64("gen", sub.gen))
	}
}

func (s *ReconnectingStream[T]) isCurrent(sub *subscription[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.subs[sub.key]
	return ok && current.gen == sub.gen
}

// retire forgets a subscription that gave up, so the next Subscribe starts fresh.
func (s *ReconnectingStream[T]) retire(sub *subscription[T]) {
	s.mu.Lock()
	if current, ok := s.subs[sub.key]; ok && current.gen == sub.gen {
		delete(s.subs, sub.key)
	}
	s.mu.Unlock()
}

func (s *ReconnectingStream[T]) run(sub *subscription[T]) {
	defer close(sub.done)

	logger := s.logger.With(zap.String("key", sub.key))
	attempt := 0
	s.setState(sub, domain.ConnectionState_Connecting)

	for {
		if sub.ctx.Err() != nil || !s.isCurrent(sub) {
			return
		}

		err := s.connectAndRead(sub, logger, &attempt)
		if sub.ctx.Err() != nil || !s.isCurrent(sub) {
			return
		}

		attempt++
		s.setState(sub, domain.ConnectionState_Closed)
		s.deliverError(sub, &domain.ConnectionError{Topic: sub.key, Attempt: attempt, Err: err})

		if s.opts.Policy.Exhausted(attempt) {
			promclient.StreamRetriesExhausted.WithLabelValues(s.opts.Label).Inc()
			logger.Error("giving up reconnecting", zap.Int("retries", s.opts.Policy.MaxRetries), zap.Error(err))

			s.retire(sub)
			s.deliverError(sub, fmt.Errorf("%s: %w", sub.key, domain.ErrMaxRetriesExceeded))
			return
		}

		delay := s.opts.Policy.Delay(attempt)
		logger.Warn("stream closed, reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		s.setState(sub, domain.ConnectionState_Reconnecting)
		promclient.StreamReconnects.WithLabelValues(s.opts.Label).Inc()

		select {
		case <-sub.ctx.Done():
			return
		case <-s.opts.After(delay):
		}
	}
}

// connectAndRead dials once and pumps frames until the socket fails. A successful
// open resets attempt.
func (s *ReconnectingStream[T]) connectAndRead(sub *subscription[T], logger *zap.Logger, attempt *int) error {
	conn, resp, err := s.opts.Dialer.DialContext(sub.ctx, s.opts.BaseURL+"/"+sub.key, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	sub.connMu.Lock()
	if sub.ctx.Err() != nil {
		sub.connMu.Unlock()
		conn.Close()
		return sub.ctx.Err()
	}
	sub.conn = conn
	sub.connMu.Unlock()

	defer func() {
		sub.connMu.Lock()
		sub.conn = nil
		sub.connMu.Unlock()
		conn.Close()
	}()

	*attempt = 0
	s.setState(sub, domain.ConnectionState_Connected)
	logger.Info("stream connected")

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return fmt.Errorf("closed by server: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := s.decode(payload)
		if err != nil {
			promclient.StreamDecodeErrors.WithLabelValues(s.opts.Label).Inc()
			s.deliverError(sub, &domain.DecodeError{Topic: sub.key, Payload: payload, Err: err})
			continue
		}

		s.deliver(sub, msg)
	}
}

func (s *ReconnectingStream[T]) deliver(sub *subscription[T], msg T) {
	sub.dispatchMu.Lock()
	defer sub.dispatchMu.Unlock()

	if sub.stopped || !s.isCurrent(sub) {
		return
	}
	if sub.cb.OnMessage != nil {
		sub.cb.OnMessage(msg)
	}
}

func (s *ReconnectingStream[T]) deliverError(sub *subscription[T], err error) {
	sub.dispatchMu.Lock()
	defer sub.dispatchMu.Unlock()

	if sub.stopped {
		return
	}
	if sub.cb.OnError != nil {
		sub.cb.OnError(err)
	}
}

func (s *ReconnectingStream[T]) setState(sub *subscription[T], state domain.ConnectionState) {
	sub.dispatchMu.Lock()
	defer sub.dispatchMu.Unlock()

	if sub.stopped {
		return
	}
	sub.state.Store(state)
	if sub.cb.OnState != nil {
		sub.cb.OnState(state)
	}
}
