package sonos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Listener defaults.
const (
	// DefaultEventPort is the port the GENA callback server listens on.
	DefaultEventPort = 3500

	// DefaultSubscriptionTimeout is the subscription lifetime requested
	// from zone players. Subscriptions are renewed at half this interval.
	DefaultSubscriptionTimeout = 30 * time.Minute

	// minRenewInterval stops a tiny device-granted timeout from turning
	// renewal into a busy loop.
	minRenewInterval = 5 * time.Second

	// maxNotifySize bounds a NOTIFY body.
	maxNotifySize = 1 << 20
)

// Logger defines the logging interface used by the sonos package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ListenerOptions holds configuration for the GENA event listener.
type ListenerOptions struct {
	// Host is the address zone players call back on. When empty it is
	// derived per device from the local address that routes to it.
	Host string

	// Port is the callback port. Zero selects DefaultEventPort.
	Port int

	// SubscriptionTimeout is the requested subscription lifetime.
	SubscriptionTimeout time.Duration

	// HTTPClient sends SUBSCRIBE and UNSUBSCRIBE requests.
	HTTPClient *http.Client

	// Logger is an optional structured logger.
	Logger Logger
}

// Listener receives UPnP GENA event notifications for every subscribed
// zone player on one HTTP server, and keeps the subscriptions renewed.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Listener struct {
	host    string
	port    int
	timeout time.Duration
	http    *http.Client
	logger  Logger
	router  chi.Router

	mu      sync.Mutex
	subs    map[string]*genaSubscription
	server  *http.Server
	stopped bool
}

// DeliverFunc receives one NOTIFY body. Calls for one subscription are
// sequential.
type DeliverFunc func(body []byte) error

// NewListener creates an event listener. Call Start to begin serving.
func NewListener(opts ListenerOptions) *Listener {
	chi.RegisterMethod("NOTIFY")

	l := &Listener{
		host:    opts.Host,
		port:    opts.Port,
		timeout: opts.SubscriptionTimeout,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		subs:    make(map[string]*genaSubscription),
	}
	if l.port == 0 {
		l.port = DefaultEventPort
	}
	if l.timeout <= 0 {
		l.timeout = DefaultSubscriptionTimeout
	}
	if l.http == nil {
		l.http = &http.Client{Timeout: 10 * time.Second}
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}

	r := chi.NewRouter()
	r.Method("NOTIFY", "/events/{token}", http.HandlerFunc(l.handleNotify))
	l.router = r
	return l
}

// Handler returns the callback HTTP handler.
func (l *Listener) Handler() http.Handler { return l.router }

// Start binds the callback port and serves in the background.
func (l *Listener) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("binding event listener: %w", err)
	}

	srv := &http.Server{
		Handler:           l.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	l.mu.Lock()
	l.server = srv
	l.stopped = false
	l.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("event listener stopped", "error", err)
		}
	}()

	l.logger.Info("event listener started", "port", l.port)
	return nil
}

// Stop cancels all subscriptions and shuts the callback server down.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	l.stopped = true
	subs := make([]*genaSubscription, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	srv := l.server
	l.server = nil
	l.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(ctx); err != nil {
			l.logger.Debug("unsubscribe on stop failed", "url", s.eventURL, "error", err)
		}
	}

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down event listener: %w", err)
	}
	l.logger.Info("event listener stopped")
	return nil
}

// Subscribe opens a GENA subscription to eventPath on the zone player at
// baseURL. Notifications are passed to deliver until Unsubscribe.
func (l *Listener) Subscribe(ctx context.Context, baseURL, eventPath string, deliver DeliverFunc) (Subscription, error) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil, ErrListenerStopped
	}
	l.mu.Unlock()

	host := l.host
	if host == "" {
		h, err := localAddressFor(baseURL)
		if err != nil {
			return nil, err
		}
		host = h
	}

	s := &genaSubscription{
		listener: l,
		eventURL: baseURL + eventPath,
		token:    uuid.NewString(),
		deliver:  deliver,
		stop:     make(chan struct{}),
	}
	s.callback = fmt.Sprintf("<http://%s/events/%s>", net.JoinHostPort(host, strconv.Itoa(l.port)), s.token)

	// Register first: the initial NOTIFY can beat the SUBSCRIBE response.
	l.mu.Lock()
	l.subs[s.token] = s
	l.mu.Unlock()

	granted, err := s.subscribe(ctx)
	if err != nil {
		l.forget(s.token)
		return nil, err
	}

	go s.renewLoop(granted)
	return s, nil
}

func (l *Listener) forget(token string) {
	l.mu.Lock()
	delete(l.subs, token)
	l.mu.Unlock()
}

func (l *Listener) lookup(token string) (*genaSubscription, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.subs[token]
	return s, ok
}

func (l *Listener) handleNotify(w http.ResponseWriter, r *http.Request) {
	s, ok := l.lookup(chi.URLParam(r, "token"))
	if !ok {
		http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotifySize))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if err := s.notify(body); err != nil {
		l.logger.Warn("discarding malformed event", "url", s.eventURL, "seq", r.Header.Get("SEQ"), "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// genaSubscription is one renewed subscription to one event URL.
type genaSubscription struct {
	listener *Listener
	eventURL string
	token    string
	callback string
	deliver  DeliverFunc

	mu  sync.Mutex
	sid string

	deliverMu sync.Mutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func (s *genaSubscription) notify(body []byte) error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	select {
	case <-s.stop:
		return nil
	default:
	}
	return s.deliver(body)
}

// subscribe sends an initial SUBSCRIBE and returns the granted timeout.
func (s *genaSubscription) subscribe(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", s.eventURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating SUBSCRIBE: %w", err)
	}
	req.Header.Set("CALLBACK", s.callback)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", timeoutHeader(s.listener.timeout))
	return s.send(req)
}

// renew extends the subscription using its SID.
func (s *genaSubscription) renew(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	sid := s.sid
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", s.eventURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating renewal: %w", err)
	}
	req.Header.Set("SID", sid)
	req.Header.Set("TIMEOUT", timeoutHeader(s.listener.timeout))
	return s.send(req)
}

func (s *genaSubscription) send(req *http.Request) (time.Duration, error) {
	resp, err := s.listener.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("SUBSCRIBE %s: %w", s.eventURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	sid := resp.Header.Get("SID")
	if resp.StatusCode != http.StatusOK || sid == "" {
		return 0, fmt.Errorf("%w: %s: HTTP %d", ErrSubscriptionRejected, s.eventURL, resp.StatusCode)
	}

	s.mu.Lock()
	s.sid = sid
	s.mu.Unlock()

	granted := parseTimeoutHeader(resp.Header.Get("TIMEOUT"))
	if granted <= 0 {
		granted = s.listener.timeout
	}
	return granted, nil
}

// renewLoop renews at half the granted timeout. A rejected renewal is
// replaced by a fresh subscription on the same callback.
func (s *genaSubscription) renewLoop(granted time.Duration) {
	for {
		wait := granted / 2
		if wait < minRenewInterval {
			wait = minRenewInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		next, err := s.renew(ctx)
		if err != nil {
			s.listener.logger.Debug("renewal failed, resubscribing", "url", s.eventURL, "error", err)
			next, err = s.subscribe(ctx)
		}
		cancel()
		if err != nil {
			s.listener.logger.Warn("event subscription lost", "url", s.eventURL, "error", err)
			next = minRenewInterval * 2
		}
		granted = next
	}
}

// Unsubscribe stops renewal and cancels the subscription on the device.
func (s *genaSubscription) Unsubscribe(ctx context.Context) error {
	first := false
	s.stopOnce.Do(func() {
		close(s.stop)
		first = true
	})
	if !first {
		return nil
	}
	s.listener.forget(s.token)

	s.mu.Lock()
	sid := s.sid
	s.mu.Unlock()
	if sid == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", s.eventURL, nil)
	if err != nil {
		return fmt.Errorf("creating UNSUBSCRIBE: %w", err)
	}
	req.Header.Set("SID", sid)
	resp, err := s.listener.http.Do(req)
	if err != nil {
		return fmt.Errorf("UNSUBSCRIBE %s: %w", s.eventURL, err)
	}
	resp.Body.Close()
	return nil
}

func timeoutHeader(d time.Duration) string {
	return "Second-" + strconv.Itoa(int(d/time.Second))
}

// parseTimeoutHeader decodes "Second-1800". "infinite" and malformed
// values yield zero.
func parseTimeoutHeader(v string) time.Duration {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(strings.ToLower(v), "second-") {
		return 0
	}
	n, err := strconv.Atoi(v[len("second-"):])
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// localAddressFor returns the local IP that routes to the device at baseURL.
func localAddressFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing device URL: %w", err)
	}
	conn, err := net.Dial("udp", u.Host)
	if err != nil {
		return "", fmt.Errorf("finding local address for %s: %w", u.Host, err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("finding local address for %s: unexpected %T", u.Host, conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
