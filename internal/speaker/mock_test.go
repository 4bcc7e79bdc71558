package speaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos/sonostest"
)

// fakeTicker is driven by the test instead of the clock.
type fakeTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// tickerFactory records every ticker a speaker creates.
type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) latest() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

// tick fires the latest ticker n times, waiting for each tick to be taken.
func (f *tickerFactory) tick(t *testing.T, n int) {
	t.Helper()
	tk := f.latest()
	if tk == nil {
		t.Fatal("no ticker created")
	}
	for i := 0; i < n; i++ {
		select {
		case tk.c <- time.Now():
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not consumed", i)
		}
	}
}

// mockNotifier records notifications.
type mockNotifier struct {
	mu      sync.Mutex
	changes []Property
	actions []ActionRecord
}

func (n *mockNotifier) PropertyChanged(_ string, p Property) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, p)
}

func (n *mockNotifier) ActionStatus(_ string, a ActionRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, a)
}

// changesFor returns the notified values of one property, in order.
func (n *mockNotifier) changesFor(name string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, p := range n.changes {
		if p.Name == name {
			out = append(out, p.Value)
		}
	}
	return out
}

func (n *mockNotifier) actionRecords() []ActionRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ActionRecord(nil), n.actions...)
}

func (n *mockNotifier) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = nil
	n.actions = nil
}

// mockFailure records disconnect escalations.
type mockFailure struct {
	mu   sync.Mutex
	errs []error
}

func (f *mockFailure) AssumeDisconnected(s *Speaker, err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
	_ = s.Close(context.Background())
}

func (f *mockFailure) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

// mockArt returns a fixed href for any non-empty art URI.
type mockArt struct {
	mu   sync.Mutex
	uris []string
	err  error
}

func (a *mockArt) Update(_ context.Context, deviceID, artURI string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uris = append(a.uris, artURI)
	if a.err != nil {
		return "", a.err
	}
	if artURI == "" {
		return "", nil
	}
	return "/media/sonos/" + deviceID + "/album.png", nil
}

func (a *mockArt) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.uris...)
}

// stallingArt never answers for a real art URI until its context ends.
type stallingArt struct {
	mu      sync.Mutex
	started int
	ended   int
}

func (a *stallingArt) Update(ctx context.Context, _, artURI string) (string, error) {
	if artURI == "" {
		return "", nil
	}
	a.mu.Lock()
	a.started++
	a.mu.Unlock()
	<-ctx.Done()
	a.mu.Lock()
	a.ended++
	a.mu.Unlock()
	return "", ctx.Err()
}

func (a *stallingArt) counts() (started, ended int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started, a.ended
}

// dialRecorder hands out in-memory zones keyed by address.
type dialRecorder struct {
	mu    sync.Mutex
	zones map[string]*sonostest.MockDevice
	order []string
}

func newDialRecorder() *dialRecorder {
	return &dialRecorder{zones: make(map[string]*sonostest.MockDevice)}
}

func (r *dialRecorder) zone(addr string) *sonostest.MockDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[addr]
	if !ok {
		z = sonostest.NewMockDevice()
		r.zones[addr] = z
	}
	return z
}

func (r *dialRecorder) Dial(addr string) GroupJoiner {
	r.mu.Lock()
	r.order = append(r.order, addr)
	r.mu.Unlock()
	return r.zone(addr)
}

func (r *dialRecorder) dialed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// harness bundles a speaker with its collaborators.
type harness struct {
	device   *sonostest.MockDevice
	notifier *mockNotifier
	failure  *mockFailure
	art      *mockArt
	tickers  *tickerFactory
	dialer   *dialRecorder
	speaker  *Speaker
}

func newHarness(t *testing.T, setup func(d *sonostest.MockDevice)) *harness {
	t.Helper()
	return newHarnessWith(t, setup, nil)
}

// newHarnessWith lets a test adjust the speaker options before New.
func newHarnessWith(t *testing.T, setup func(d *sonostest.MockDevice), tune func(o *Options)) *harness {
	t.Helper()
	h := &harness{
		device:   sonostest.NewMockDevice(),
		notifier: &mockNotifier{},
		failure:  &mockFailure{},
		art:      &mockArt{},
		tickers:  &tickerFactory{},
		dialer:   newDialRecorder(),
	}
	if setup != nil {
		setup(h.device)
	}

	opts := Options{
		ID:             "00-0E-58-AA-BB-CC:7",
		Address:        "192.168.1.20",
		Device:         h.device,
		Dial:           h.dialer.Dial,
		Notifier:       h.notifier,
		Failure:        h.failure,
		Art:            h.art,
		CommandTimeout: time.Second,
		NewTicker:      h.tickers.New,
	}
	if tune != nil {
		tune(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.speaker = s
	return h
}

// startHarness creates and initialises a speaker, closing it when the test ends.
func startHarness(t *testing.T, setup func(d *sonostest.MockDevice)) *harness {
	t.Helper()
	return startHarnessWith(t, setup, nil)
}

func startHarnessWith(t *testing.T, setup func(d *sonostest.MockDevice), tune func(o *Options)) *harness {
	t.Helper()
	h := newHarnessWith(t, setup, tune)
	if err := h.speaker.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = h.speaker.Close(context.Background()) })
	return h
}

func (h *harness) value(t *testing.T, name string) any {
	t.Helper()
	p, err := h.speaker.Property(name)
	if err != nil {
		t.Fatalf("Property(%q) error = %v", name, err)
	}
	return p.Value
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
