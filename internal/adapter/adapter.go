package adapter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/discovery"
	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
	"github.com/nerrad567/gray-logic-sonos/internal/store"
)

// Adapter defaults.
const (
	DefaultDiscoveryTimeout = 20 * time.Second
	DefaultPairingWindow    = 60 * time.Second
	defaultCommandTimeout   = 5 * time.Second
)

// Client is a connection to one zone player.
type Client interface {
	speaker.Device
	speaker.GroupJoiner
	DeviceDescription(ctx context.Context) (sonos.DeviceDescription, error)
}

// ConnectFunc returns a client for the zone player at address.
type ConnectFunc func(address string) Client

// Discoverer finds zone players while ctx is live.
type Discoverer interface {
	Browse(ctx context.Context, found discovery.FoundFunc) error
}

// Logger defines the logging interface used by the adapter.
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

// Options configures an Adapter.
type Options struct {
	// Connect creates device clients. Required.
	Connect ConnectFunc

	// Store remembers attached speakers. Optional.
	Store store.Repository

	// Discoverer browses for zone players. Optional; without it
	// pairing windows do nothing.
	Discoverer Discoverer

	// Host receives registry and speaker notifications. Optional.
	Host Host

	// Art stores album art. Optional.
	Art speaker.ArtStore

	// Addresses are attached at Start in addition to saved speakers.
	Addresses []string

	DiscoveryTimeout time.Duration
	PairingWindow    time.Duration
	CommandTimeout   time.Duration

	// NewTicker overrides the speakers' progress ticker.
	NewTicker speaker.TickerFactory

	Logger Logger
}

// Adapter is the registry of attached speakers. It attaches speakers
// found by address or discovery and applies the disconnect policy: a
// speaker whose command fails is closed, dropped from the registry and a
// pairing window is opened so it can come back.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Adapter struct {
	connect          ConnectFunc
	store            store.Repository
	discoverer       Discoverer
	host             Host
	art              speaker.ArtStore
	addresses        []string
	discoveryTimeout time.Duration
	pairingWindow    time.Duration
	commandTimeout   time.Duration
	newTicker        speaker.TickerFactory
	logger           Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	speakers map[string]*speaker.Speaker
	pending  map[string]bool
	stopped  bool

	pairMu      sync.Mutex
	pairCancel  context.CancelFunc
	pairGen     uint64
	pairStopped bool
}

// New creates an adapter. Call Start to attach speakers.
func New(opts Options) (*Adapter, error) {
	if opts.Connect == nil {
		return nil, fmt.Errorf("connect func is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		connect:          opts.Connect,
		store:            opts.Store,
		discoverer:       opts.Discoverer,
		host:             opts.Host,
		art:              opts.Art,
		addresses:        opts.Addresses,
		discoveryTimeout: opts.DiscoveryTimeout,
		pairingWindow:    opts.PairingWindow,
		commandTimeout:   opts.CommandTimeout,
		newTicker:        opts.NewTicker,
		logger:           opts.Logger,
		ctx:              ctx,
		cancel:           cancel,
		speakers:         make(map[string]*speaker.Speaker),
		pending:          make(map[string]bool),
	}
	if a.discoveryTimeout <= 0 {
		a.discoveryTimeout = DefaultDiscoveryTimeout
	}
	if a.pairingWindow <= 0 {
		a.pairingWindow = DefaultPairingWindow
	}
	if a.commandTimeout <= 0 {
		a.commandTimeout = defaultCommandTimeout
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	return a, nil
}

// Start attaches the saved and configured speakers, then opens the
// initial discovery window. Speakers that cannot be reached are logged
// and left for discovery.
func (a *Adapter) Start(ctx context.Context) error {
	addresses := slices.Clone(a.addresses)
	if a.store != nil {
		saved, err := a.store.List(ctx)
		if err != nil {
			a.logger.Warn("loading saved speakers failed", "error", err)
		}
		for _, s := range saved {
			addresses = append(addresses, s.Address)
		}
	}
	slices.Sort(addresses)
	addresses = slices.Compact(addresses)

	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.AddDevice(ctx, addr); err != nil {
				a.logAttachError(addr, err)
			}
		}()
	}
	wg.Wait()

	a.logger.Info("adapter started", "speakers", a.Count())
	a.StartPairing(a.discoveryTimeout)
	return nil
}

// Stop cancels discovery and closes every speaker.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	a.pairMu.Lock()
	a.pairStopped = true
	a.pairMu.Unlock()

	a.CancelPairing()
	a.cancel()
	a.wg.Wait()

	a.mu.Lock()
	speakers := make([]*speaker.Speaker, 0, len(a.speakers))
	for _, s := range a.speakers {
		speakers = append(speakers, s)
	}
	a.speakers = make(map[string]*speaker.Speaker)
	a.mu.Unlock()

	var errs []error
	for _, s := range speakers {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Info("adapter stopped")
	return errors.Join(errs...)
}

// AddDevice attaches the zone player at address.
//
// The device description is read first; bridges and devices without a
// serial number are refused. The speaker is initialised, registered,
// saved to the store and announced to the host.
//
// Parameters:
//   - ctx: Bounds the description read and speaker initialisation
//   - address: Host or IP of the zone player
//
// Returns:
//   - *speaker.Speaker: The attached speaker
//   - error: ErrUnsupportedDevice, ErrDuplicateDevice, ErrStopped, a
//     description or Init failure, or speaker.ErrDisconnected if the
//     speaker failed while attaching
func (a *Adapter) AddDevice(ctx context.Context, address string) (*speaker.Speaker, error) {
	client := a.connect(address)

	dctx, cancel := context.WithTimeout(ctx, a.commandTimeout)
	desc, err := client.DeviceDescription(dctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("reading device description from %s: %w", address, err)
	}
	if desc.ZoneType == sonos.ZoneTypeBridge {
		return nil, fmt.Errorf("%w: %s is a bridge", ErrUnsupportedDevice, address)
	}
	id := desc.SerialNum
	if id == "" {
		return nil, fmt.Errorf("%w: %s has no serial number", ErrUnsupportedDevice, address)
	}

	if err := a.reserve(id); err != nil {
		return nil, err
	}
	defer a.release(id)

	s, err := speaker.New(speaker.Options{
		ID:             id,
		Address:        address,
		Device:         client,
		Dial:           a.dial,
		Notifier:       a,
		Failure:        a,
		Art:            a.art,
		Logger:         a.logger,
		CommandTimeout: a.commandTimeout,
		NewTicker:      a.newTicker,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("initialising %s: %w", address, err)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = s.Close(context.Background())
		return nil, ErrStopped
	}
	a.speakers[id] = s
	a.mu.Unlock()

	// A failure escalated before the insert found nothing to remove.
	if s.Failed() {
		a.forget(s)
		return nil, fmt.Errorf("initialising %s: %w", address, speaker.ErrDisconnected)
	}

	if a.store != nil {
		saved := store.SavedSpeaker{ID: id, Address: address, Title: s.Title()}
		if err := a.store.Save(ctx, saved); err != nil {
			a.logger.Warn("saving speaker failed", "device_id", id, "error", err)
		}
	}

	a.logger.Info("speaker attached", "device_id", id, "title", s.Title(), "address", address)
	if a.host != nil {
		a.host.DeviceAdded(s.Description())
		// Disconnected while being announced.
		if !a.holds(s) {
			a.host.DeviceRemoved(id)
		}
	}
	return s, nil
}

// forget drops s from the registry if it is still the entry for its id.
func (a *Adapter) forget(s *speaker.Speaker) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.speakers[s.ID()]; ok && cur == s {
		delete(a.speakers, s.ID())
		return true
	}
	return false
}

// holds reports whether s is the registry entry for its id.
func (a *Adapter) holds(s *speaker.Speaker) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.speakers[s.ID()] == s
}

// reserve claims id for an attach in progress.
func (a *Adapter) reserve(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return ErrStopped
	}
	if _, ok := a.speakers[id]; ok || a.pending[id] {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, id)
	}
	a.pending[id] = true
	return nil
}

func (a *Adapter) release(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

func (a *Adapter) dial(address string) speaker.GroupJoiner {
	return a.connect(address)
}

// RemoveDevice detaches a speaker at the host's request and forgets it.
func (a *Adapter) RemoveDevice(ctx context.Context, id string) error {
	a.mu.Lock()
	s, ok := a.speakers[id]
	delete(a.speakers, id)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	if err := s.Close(ctx); err != nil {
		a.logger.Debug("closing speaker failed", "device_id", id, "error", err)
	}
	if a.store != nil {
		if err := a.store.Delete(ctx, id); err != nil {
			a.logger.Warn("forgetting speaker failed", "device_id", id, "error", err)
		}
	}
	if a.art != nil {
		_, _ = a.art.Update(ctx, id, "")
	}

	a.logger.Info("speaker removed", "device_id", id)
	if a.host != nil {
		a.host.DeviceRemoved(id)
	}
	return nil
}

// AssumeDisconnected implements speaker.FailurePolicy. The speaker is
// closed before it leaves the registry, then a pairing window opens. The
// saved address is kept.
//
// Parameters:
//   - s: The failed speaker; a no-op for the registry if it was already replaced
//   - err: The remote failure that caused the escalation, logged only
func (a *Adapter) AssumeDisconnected(s *speaker.Speaker, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.commandTimeout)
	if cerr := s.Close(ctx); cerr != nil {
		a.logger.Debug("closing failed speaker", "device_id", s.ID(), "error", cerr)
	}
	cancel()

	removed := a.forget(s)
	a.mu.RLock()
	stopped := a.stopped
	a.mu.RUnlock()

	a.logger.Warn("speaker disconnected", "device_id", s.ID(), "error", err)
	if removed && a.host != nil {
		a.host.DeviceRemoved(s.ID())
	}
	if !stopped {
		a.StartPairing(a.pairingWindow)
	}
}

// PropertyChanged implements speaker.Notifier.
func (a *Adapter) PropertyChanged(deviceID string, p speaker.Property) {
	if a.host != nil {
		a.host.PropertyChanged(deviceID, p)
	}
}

// ActionStatus implements speaker.Notifier.
func (a *Adapter) ActionStatus(deviceID string, rec speaker.ActionRecord) {
	if a.host != nil {
		a.host.ActionStatus(deviceID, rec)
	}
}

// StartPairing opens a discovery window of length d, replacing any open one.
func (a *Adapter) StartPairing(d time.Duration) {
	if a.discoverer == nil {
		return
	}
	if d <= 0 {
		d = a.pairingWindow
	}

	a.pairMu.Lock()
	if a.pairStopped {
		a.pairMu.Unlock()
		return
	}
	if a.pairCancel != nil {
		a.pairCancel()
	}
	ctx, cancel := context.WithTimeout(a.ctx, d)
	a.pairGen++
	gen := a.pairGen
	a.pairCancel = cancel
	a.wg.Add(1)
	a.pairMu.Unlock()

	a.logger.Info("pairing started", "window", d)
	go a.pair(ctx, gen, cancel)
}

func (a *Adapter) pair(ctx context.Context, gen uint64, cancel context.CancelFunc) {
	defer a.wg.Done()
	defer a.endPairing(gen, cancel)

	err := a.discoverer.Browse(ctx, func(p discovery.Player) {
		if a.attached(p.Address) {
			return
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if _, err := a.AddDevice(a.ctx, p.Address); err != nil {
				a.logAttachError(p.Address, err)
			}
		}()
	})
	if err != nil {
		a.logger.Warn("discovery failed", "error", err)
	}
}

func (a *Adapter) endPairing(gen uint64, cancel context.CancelFunc) {
	cancel()
	a.pairMu.Lock()
	if a.pairGen == gen {
		a.pairCancel = nil
	}
	a.pairMu.Unlock()
	a.logger.Debug("pairing window closed")
}

// CancelPairing closes the open discovery window, if any.
func (a *Adapter) CancelPairing() {
	a.pairMu.Lock()
	defer a.pairMu.Unlock()
	if a.pairCancel != nil {
		a.pairCancel()
		a.pairCancel = nil
	}
}

// Pairing reports whether a discovery window is open.
func (a *Adapter) Pairing() bool {
	a.pairMu.Lock()
	defer a.pairMu.Unlock()
	return a.pairCancel != nil
}

// Speaker returns the attached speaker with id.
func (a *Adapter) Speaker(id string) (*speaker.Speaker, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.speakers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return s, nil
}

// Speakers returns the attached speakers ordered by id.
func (a *Adapter) Speakers() []*speaker.Speaker {
	a.mu.RLock()
	out := make([]*speaker.Speaker, 0, len(a.speakers))
	for _, s := range a.speakers {
		out = append(out, s)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of attached speakers.
func (a *Adapter) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.speakers)
}

func (a *Adapter) attached(address string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.speakers {
		if s.Address() == address {
			return true
		}
	}
	return false
}

func (a *Adapter) logAttachError(address string, err error) {
	switch {
	case errors.Is(err, ErrDuplicateDevice), errors.Is(err, ErrUnsupportedDevice), errors.Is(err, ErrStopped):
		a.logger.Debug("speaker not attached", "address", address, "reason", err)
	default:
		a.logger.Warn("attaching speaker failed", "address", address, "error", err)
	}
}
