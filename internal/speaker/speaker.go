package speaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
)

// Speaker operation defaults.
const (
	// defaultCommandTimeout bounds each device round trip.
	defaultCommandTimeout = 5 * time.Second

	// defaultEventBuffer is the depth of the per-speaker event queue.
	defaultEventBuffer = 64

	// defaultArtTimeout bounds one album art refresh. Art is fetched
	// independently of device commands.
	defaultArtTimeout = 15 * time.Second
)

// Options holds configuration for creating a speaker.
type Options struct {
	// ID is the stable device identifier (the zone player serial).
	ID string

	// Address is the host the device was reached at.
	Address string

	// Device is the control surface of the zone player.
	Device Device

	// Dial opens command channels to other zones for the group action.
	Dial Dialer

	// Notifier receives property and action notifications. Optional.
	Notifier Notifier

	// Failure handles speakers that must be assumed disconnected. Optional.
	Failure FailurePolicy

	// Art stores album art. Optional; without it albumArt stays empty.
	Art ArtStore

	// Logger is an optional structured logger.
	Logger Logger

	// CommandTimeout bounds each device request. Defaults to 5s.
	CommandTimeout time.Duration

	// ArtTimeout bounds one album art refresh. Defaults to 15s.
	ArtTimeout time.Duration

	// NewTicker creates the progress ticker. Defaults to NewRealTicker.
	NewTicker TickerFactory
}

// Description is the host-facing description of a speaker.
type Description struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Address    string       `json:"address"`
	Properties []Property   `json:"properties"`
	Actions    []ActionSpec `json:"actions"`
}

// Speaker reconciles one zone player's pushed events and host writes
// against a single property cache.
//
// Events, commands, action executions and progress ticks are serialized by
// one mutex, so at most one of them runs at a time. A write arriving while
// another is in flight waits behind it; nothing is dropped. Any
// RemoteCommandFailure marks the speaker failed under that mutex and is
// then handed to the FailurePolicy.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Speaker struct {
	id             string
	address        string
	device         Device
	notifier       Notifier
	failure        FailurePolicy
	art            ArtStore
	logger         Logger
	commandTimeout time.Duration
	newTicker      TickerFactory
	validator      *inputValidator

	cache    *Cache
	modes    *ModeCoordinator
	volume   *CapabilityProbe
	topology *TopologyActionBuilder

	// mu serializes everything that touches device state.
	mu       sync.Mutex
	progress ProgressEstimator
	failed   bool
	closed   bool
	sub      sonos.Subscription
	tickStop chan struct{}
	tickGen  uint64

	// infoMu guards values readable without waiting on mu.
	infoMu      sync.RWMutex
	title       string
	groupAction ActionSpec

	// Album art refreshes run outside mu, one at a time under artMu.
	// artURI and artSeen are guarded by mu.
	artMu      sync.Mutex
	artTimeout time.Duration
	artURI     string
	artSeen    bool
	artGen     atomic.Uint64
	artCtx     context.Context
	artCancel  context.CancelFunc
	artWG      sync.WaitGroup

	ready     atomic.Bool
	events    chan sonos.Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a speaker. Call Init before exposing it to the host.
func New(opts Options) (*Speaker, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.Dial == nil {
		return nil, fmt.Errorf("dialer is required")
	}

	s := &Speaker{
		id:             opts.ID,
		address:        opts.Address,
		device:         opts.Device,
		notifier:       opts.Notifier,
		failure:        opts.Failure,
		art:            opts.Art,
		logger:         opts.Logger,
		commandTimeout: opts.CommandTimeout,
		artTimeout:     opts.ArtTimeout,
		newTicker:      opts.NewTicker,
		validator:      newInputValidator(),
		events:         make(chan sonos.Event, defaultEventBuffer),
		done:           make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.commandTimeout <= 0 {
		s.commandTimeout = defaultCommandTimeout
	}
	if s.artTimeout <= 0 {
		s.artTimeout = defaultArtTimeout
	}
	if s.newTicker == nil {
		s.newTicker = NewRealTicker
	}

	s.artCtx, s.artCancel = context.WithCancel(context.Background())
	s.cache = NewCache(speakerProperties(), s.propertyChanged)
	s.modes = NewModeCoordinator(opts.Device)
	s.volume = NewCapabilityProbe(opts.Device)
	s.topology = NewTopologyActionBuilder(opts.Device, opts.Dial)
	s.groupAction = BuildGroupAction(nil, "")

	return s, nil
}

// ID returns the stable device identifier.
func (s *Speaker) ID() string { return s.id }

// Address returns the host the device was reached at.
func (s *Speaker) Address() string { return s.address }

// Title returns the zone name reported by the device.
func (s *Speaker) Title() string {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.title
}

// Init reads the full device state, builds the group action and opens
// the event subscription. Property notifications start once Init returns.
// Album art is stored before Init returns, bounded by ArtTimeout rather
// than ctx.
//
// Parameters:
//   - ctx: Bounds the state queries and the subscription request
//
// Returns:
//   - error: If any state query or the subscription fails; the speaker
//     must then be closed and discarded
func (s *Speaker) Init(ctx context.Context) error {
	s.mu.Lock()
	err := s.fetchState(ctx)
	artGen, artURI := s.artGen.Load(), s.artURI
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if artGen != 0 {
		s.refreshArt(artGen, artURI)
	}

	go s.processEvents()

	sub, err := s.device.Subscribe(ctx, s.enqueue)
	if err != nil {
		s.closeOnce.Do(func() { close(s.done) })
		return fmt.Errorf("subscribing to events: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		// Escalated and closed while subscribing.
		s.mu.Unlock()
		uctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout)
		_ = sub.Unsubscribe(uctx)
		cancel()
		return ErrDisconnected
	}
	s.sub = sub
	s.syncTickerLocked()
	s.mu.Unlock()

	s.ready.Store(true)
	s.logger.Info("speaker initialised", "device_id", s.id, "title", s.Title(), "address", s.address)
	return nil
}

// fetchState populates the cache from device queries. Caller holds mu.
func (s *Speaker) fetchState(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, s.commandTimeout*4)
	defer cancel()

	title, err := s.device.ZoneName(cctx)
	if err != nil {
		return remote("getZoneAttrs", err)
	}
	s.infoMu.Lock()
	s.title = title
	s.infoMu.Unlock()

	fixed, err := s.volume.Init(cctx)
	if err != nil {
		return err
	}
	s.cache.SetReadOnly(PropVolume, fixed)
	if !fixed {
		vol, err := s.device.Volume(cctx)
		if err != nil {
			return remote("getVolume", err)
		}
		s.cache.SetCached(PropVolume, clampVolume(vol))
	}

	muted, err := s.device.Muted(cctx)
	if err != nil {
		return remote("getMuted", err)
	}
	s.cache.SetCached(PropMuted, muted)

	state, err := s.device.TransportState(cctx)
	if err != nil {
		return remote("getCurrentState", err)
	}
	playing := state == sonos.StatePlaying
	s.cache.SetCached(PropPlaying, playing)
	s.progress.SetPlaying(playing)

	track, err := s.device.CurrentTrack(cctx)
	if err != nil {
		return remote("currentTrack", err)
	}
	s.applyTrackInfoLocked(track)
	s.requestArtLocked(track.ArtURI)
	s.progress.Load(track.Duration, track.Position)
	s.publishProgressLocked()

	mode, err := s.device.PlayMode(cctx)
	if err != nil {
		return remote("getPlayMode", err)
	}
	s.observePlayModeLocked(mode)

	crossfade, err := s.device.CrossfadeMode(cctx)
	if err != nil {
		return remote("getCrossfadeMode", err)
	}
	s.cache.SetCached(PropCrossfade, crossfade)

	group, err := s.topology.Build(cctx)
	if err != nil {
		return err
	}
	s.setGroupAction(group)
	return nil
}

// Property returns a snapshot of the named property.
func (s *Speaker) Property(name string) (Property, error) {
	p, ok := s.cache.Snapshot(name)
	if !ok {
		return Property{}, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return p, nil
}

// Properties returns snapshots of all properties.
func (s *Speaker) Properties() []Property {
	return s.cache.List()
}

// Actions returns the action schemas, with the group action as last built.
func (s *Speaker) Actions() []ActionSpec {
	actions := staticActions()
	s.infoMu.RLock()
	actions = append(actions, s.groupAction)
	s.infoMu.RUnlock()
	return actions
}

// Description returns the speaker description without touching the device.
func (s *Speaker) Description() Description {
	return Description{
		ID:         s.id,
		Title:      s.Title(),
		Address:    s.address,
		Properties: s.Properties(),
		Actions:    s.Actions(),
	}
}

// Describe rebuilds the group action from the current topology and
// returns the description.
func (s *Speaker) Describe(ctx context.Context) (Description, error) {
	err := s.locked(func() error {
		cctx, cancel := context.WithTimeout(ctx, s.commandTimeout*2)
		defer cancel()
		group, err := s.topology.Build(cctx)
		if err != nil {
			return err
		}
		s.setGroupAction(group)
		return nil
	})
	if err != nil {
		return Description{}, err
	}
	return s.Description(), nil
}

// SetValue writes a host value to the device.
//
// The value is coerced to the property's type first. Volume writes check
// fixed volume with the device before anything else. A value equal to
// the cached one then returns without a command. On success the cache is
// updated and the host notified.
//
// Parameters:
//   - ctx: Caller context; each device request is also bounded by CommandTimeout
//   - name: Property name, e.g. "volume"
//   - value: Host value, coerced to the property type
//
// Returns:
//   - any: The value now stored in the cache
//   - error: ErrUnknownProperty, ErrReadOnly, a *CapabilityError, a
//     *RemoteCommandFailure, or ErrDisconnected once the speaker failed
func (s *Speaker) SetValue(ctx context.Context, name string, value any) (any, error) {
	var result any
	err := s.locked(func() error {
		prop, ok := s.cache.Snapshot(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
		v, err := prop.Coerce(value)
		if err != nil {
			return err
		}
		// Volume read-only state is re-checked against the device instead.
		if prop.ReadOnly && name != PropVolume {
			return &CapabilityError{Property: name, Reason: "not writable"}
		}

		cctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()

		// Fixed volume can change out of band, so it is checked before
		// the unchanged-value shortcut.
		if name == PropVolume {
			if err := s.checkVolumeLocked(cctx); err != nil {
				return err
			}
		}
		if valuesEqual(prop.Value, v) {
			result = prop.Value
			return nil
		}

		stored, err := s.writeLocked(cctx, name, v)
		if err != nil {
			return err
		}
		s.cache.SetCached(name, stored)
		result = stored
		return nil
	})
	return result, err
}

// checkVolumeLocked refreshes the volume read-only flag from the device
// and rejects writes while fixed volume is active.
func (s *Speaker) checkVolumeLocked(ctx context.Context) error {
	fixed, err := s.volume.Check(ctx)
	if err != nil {
		return err
	}
	s.cache.SetReadOnly(PropVolume, fixed)
	if fixed {
		return &CapabilityError{Property: PropVolume, Reason: "fixed volume is active"}
	}
	return nil
}

// writeLocked sends the command for one property write and returns the
// value to cache. Caller holds mu.
func (s *Speaker) writeLocked(ctx context.Context, name string, v any) (any, error) {
	switch name {
	case PropPlaying:
		playing := v.(bool)
		if playing {
			if err := s.device.Play(ctx); err != nil {
				return nil, remote("play", err)
			}
		} else if err := s.device.Pause(ctx); err != nil {
			return nil, remote("pause", err)
		}
		s.progress.SetPlaying(playing)
		s.syncTickerLocked()
		return playing, nil

	case PropVolume:
		if err := s.device.SetVolume(ctx, v.(int)); err != nil {
			return nil, remote("setVolume", err)
		}
		return v, nil

	case PropMuted:
		if err := s.device.SetMuted(ctx, v.(bool)); err != nil {
			return nil, remote("setMuted", err)
		}
		return v, nil

	case PropCrossfade:
		if err := s.device.SetCrossfade(ctx, v.(bool)); err != nil {
			return nil, remote("setCrossfadeMode", err)
		}
		return v, nil

	case PropShuffle:
		if err := s.modes.SetShuffle(ctx, v.(bool)); err != nil {
			return nil, err
		}
		return v, nil

	case PropRepeat:
		if err := s.modes.SetRepeat(ctx, Repeat(v.(string))); err != nil {
			return nil, err
		}
		return v, nil

	case PropProgress:
		target, err := s.progress.SeekByPercent(v.(float64))
		if err != nil {
			return nil, err
		}
		if err := s.seekLocked(ctx, target); err != nil {
			return nil, err
		}
		return s.progress.Percent(), nil

	case PropPosition:
		target, err := s.progress.SeekByPosition(v.(int))
		if err != nil {
			return nil, err
		}
		if err := s.seekLocked(ctx, target); err != nil {
			return nil, err
		}
		return s.progress.Position(), nil
	}

	return nil, &CapabilityError{Property: name, Reason: "not writable"}
}

func (s *Speaker) seekLocked(ctx context.Context, target int) error {
	if err := s.device.Seek(ctx, target); err != nil {
		return remote("seek", err)
	}
	s.progress.Seeked(target)
	s.publishProgressLocked()
	return nil
}

// action returns the schema of the named action.
func (s *Speaker) action(name string) (ActionSpec, bool) {
	for _, a := range s.Actions() {
		if a.Name == name {
			return a, true
		}
	}
	return ActionSpec{}, false
}

// PerformAction validates input, runs the action and reports its start and
// finish to the notifier.
//
// Parameters:
//   - ctx: Caller context; each device request is also bounded by CommandTimeout
//   - name: Action name, e.g. "play" or "group"
//   - input: Action input, validated against the action's schema
//
// Returns:
//   - ActionRecord: The record with its final status
//   - error: ErrUnknownAction or a validation error before the action
//     starts; otherwise the action's failure, also reflected in the record
func (s *Speaker) PerformAction(ctx context.Context, name string, input ActionInput) (ActionRecord, error) {
	spec, ok := s.action(name)
	if !ok {
		return ActionRecord{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if err := s.validator.Validate(spec, input); err != nil {
		return ActionRecord{}, err
	}

	rec := ActionRecord{
		ID:            uuid.NewString(),
		Name:          name,
		Input:         input,
		Status:        ActionPending,
		TimeRequested: time.Now().UTC(),
	}
	s.actionStatus(rec)

	err := s.locked(func() error {
		timeout := s.commandTimeout
		if name == ActionGroup {
			timeout *= time.Duration(3 + len(input))
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return s.runActionLocked(cctx, name, input)
	})

	finished := time.Now().UTC()
	rec.TimeCompleted = &finished
	if err != nil {
		rec.Status = ActionFailed
		rec.Error = err.Error()
	} else {
		rec.Status = ActionCompleted
	}
	s.actionStatus(rec)
	return rec, err
}

func (s *Speaker) runActionLocked(ctx context.Context, name string, input ActionInput) error {
	switch name {
	case ActionNext:
		return remote("next", s.device.Next(ctx))
	case ActionPrev:
		return remote("previous", s.device.Previous(ctx))
	case ActionStop:
		return remote("stop", s.device.Stop(ctx))
	case ActionPlayURI:
		uri, _ := input.Get("uri")
		return remote("play", s.device.PlayURI(ctx, uri.(string)))
	case ActionGroup:
		if err := s.topology.Execute(ctx, input, s.Title()); err != nil {
			return err
		}
		group, err := s.topology.Build(ctx)
		if err != nil {
			return err
		}
		s.setGroupAction(group)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownAction, name)
}

// locked runs fn under mu unless the speaker is failed or closed. A
// RemoteCommandFailure from fn marks the speaker failed and stops the
// ticker before mu is released, then the FailurePolicy is invoked.
func (s *Speaker) locked(fn func() error) error {
	s.mu.Lock()
	if s.failed || s.closed {
		s.mu.Unlock()
		return ErrDisconnected
	}
	err := fn()
	failed := IsRemoteFailure(err)
	if failed {
		s.failed = true
		s.stopTickerLocked()
	}
	s.mu.Unlock()

	if failed {
		s.escalate(err)
	}
	return err
}

func (s *Speaker) escalate(err error) {
	s.logger.Warn("assuming speaker disconnected", "device_id", s.id, "error", err)
	if s.failure != nil {
		s.failure.AssumeDisconnected(s, err)
	}
}

// Failed reports whether the speaker has been handed to the disconnect policy.
func (s *Speaker) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Close stops the ticker, stops event processing and cancels the device
// subscription. It is idempotent.
func (s *Speaker) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTickerLocked()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.artCancel()
	s.artWG.Wait()

	s.ready.Store(false)
	s.closeOnce.Do(func() { close(s.done) })

	if sub == nil {
		return nil
	}
	uctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()
	if err := sub.Unsubscribe(uctx); err != nil {
		return fmt.Errorf("unsubscribing %s: %w", s.id, err)
	}
	return nil
}

func (s *Speaker) setGroupAction(spec ActionSpec) {
	s.infoMu.Lock()
	s.groupAction = spec
	s.infoMu.Unlock()
}

func (s *Speaker) propertyChanged(p Property) {
	if s.notifier != nil && s.ready.Load() {
		s.notifier.PropertyChanged(s.id, p)
	}
}

func (s *Speaker) actionStatus(rec ActionRecord) {
	if s.notifier != nil {
		s.notifier.ActionStatus(s.id, rec)
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
