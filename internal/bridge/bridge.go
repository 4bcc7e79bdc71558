package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

const (
	defaultPairingWindow = 60 * time.Second
	defaultQoS           = 1
)

// Logger is the logging surface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the part of the MQTT client the bridge needs. It is
// satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Registry is the speaker registry commands and requests act on. It is
// satisfied by *adapter.Adapter.
type Registry interface {
	Speaker(id string) (*speaker.Speaker, error)
	Speakers() []*speaker.Speaker
	RemoveDevice(ctx context.Context, id string) error
	StartPairing(d time.Duration)
	CancelPairing()
	Pairing() bool
	Count() int
}

// Options configures a Bridge.
type Options struct {
	// MQTT is required.
	MQTT MQTTClient

	BridgeID string
	Version  string

	// QoS for state, ack and action messages. Defaults to 1.
	QoS byte

	HealthInterval time.Duration

	// PairingWindow is used by start_pairing requests without a duration.
	PairingWindow time.Duration

	Logger Logger
}

// Bridge carries speaker state and commands over MQTT. It implements
// the adapter's Host interface: property changes become retained state
// snapshots, attached speakers become retained discovery messages and
// removals clear both.
//
// Commands and requests are handled on their own goroutines so handlers
// never block the MQTT client's delivery loop.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt          MQTTClient
	qos           byte
	bridgeID      string
	pairingWindow time.Duration
	health        *HealthReporter
	logger        Logger

	regMu    sync.RWMutex
	registry Registry

	statesMu sync.Mutex
	states   map[string]*deviceState

	ctx      context.Context
	cancel   context.CancelFunc
	goMu     sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// deviceState is the last published snapshot of one speaker. mu orders
// publishes for the device.
type deviceState struct {
	mu      sync.Mutex
	address string
	state   map[string]any
}

// New creates a bridge. Call Start to subscribe and begin health reports.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, ErrMQTTRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}
	window := opts.PairingWindow
	if window <= 0 {
		window = defaultPairingWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:          opts.MQTT,
		qos:           qos,
		bridgeID:      opts.BridgeID,
		pairingWindow: window,
		logger:        logger,
		states:        make(map[string]*deviceState),
		ctx:           ctx,
		cancel:        cancel,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Logger:    logger,
	})
	return b, nil
}

// Start attaches the registry, subscribes to command and request topics
// and starts health reporting.
func (b *Bridge) Start(ctx context.Context, reg Registry) error {
	b.regMu.Lock()
	b.registry = reg
	b.regMu.Unlock()
	b.health.Track(reg.Count, reg.Pairing)

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("publishing starting status failed", "error", err)
	}

	topics := mqtt.Topics{}
	if err := b.mqtt.Subscribe(topics.AllCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	if err := b.mqtt.Subscribe(topics.AllRequests(), b.qos, b.handleRequest); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}

	b.health.Start(ctx)
	b.logger.Info("bridge started", "bridge_id", b.bridgeID)
	return nil
}

// Stop waits for in-flight commands and publishes a stopping status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.goMu.Lock()
		b.stopped = true
		b.goMu.Unlock()

		b.cancel()
		b.wg.Wait()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// Republish publishes discovery and state for every attached speaker and
// the current health. Use it after a broker reconnect.
func (b *Bridge) Republish() {
	reg := b.getRegistry()
	if reg == nil {
		return
	}
	for _, s := range reg.Speakers() {
		b.DeviceAdded(s.Description())
	}
	if err := b.health.PublishNow(); err != nil {
		b.logger.Warn("publishing health failed", "error", err)
	}
}

func (b *Bridge) getRegistry() Registry {
	b.regMu.RLock()
	defer b.regMu.RUnlock()
	return b.registry
}

// spawn runs fn on a tracked goroutine unless the bridge is stopping.
func (b *Bridge) spawn(fn func(ctx context.Context)) bool {
	b.goMu.Lock()
	defer b.goMu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
	return true
}

// PropertyChanged publishes the speaker's updated state snapshot.
func (b *Bridge) PropertyChanged(deviceID string, p speaker.Property) {
	st := b.deviceState(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state[p.Name] = p.Value
	b.publishStateLocked(deviceID, st)
}

// ActionStatus publishes an action lifecycle update.
func (b *Bridge) ActionStatus(deviceID string, rec speaker.ActionRecord) {
	b.publishJSON(mqtt.Topics{}.Action(deviceID), ActionMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Action:    rec,
	}, false)
}

// DeviceAdded publishes the retained description and full state of a
// newly attached speaker.
func (b *Bridge) DeviceAdded(d speaker.Description) {
	b.publishJSON(mqtt.Topics{}.Discovery(d.ID), DiscoveryMessage{
		Timestamp:   time.Now().UTC(),
		Bridge:      b.bridgeID,
		Protocol:    protocol,
		Description: d,
	}, true)

	st := b.deviceState(d.ID)
	st.mu.Lock()
	st.address = d.Address
	st.state = stateMap(d.Properties)
	b.publishStateLocked(d.ID, st)
	st.mu.Unlock()
}

// DeviceRemoved clears the retained discovery and state of a speaker.
func (b *Bridge) DeviceRemoved(deviceID string) {
	b.statesMu.Lock()
	delete(b.states, deviceID)
	b.statesMu.Unlock()

	topics := mqtt.Topics{}
	for _, topic := range []string{topics.Discovery(deviceID), topics.State(deviceID)} {
		if err := b.mqtt.Publish(topic, nil, b.qos, true); err != nil {
			b.logger.Warn("clearing retained message failed", "topic", topic, "error", err)
		}
	}
}

func (b *Bridge) deviceState(id string) *deviceState {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	st, ok := b.states[id]
	if !ok {
		st = &deviceState{state: make(map[string]any)}
		b.states[id] = st
	}
	return st
}

// publishStateLocked publishes st. Caller holds st.mu.
func (b *Bridge) publishStateLocked(deviceID string, st *deviceState) {
	b.publishJSON(mqtt.Topics{}.State(deviceID), StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     st.state,
		Protocol:  protocol,
		Address:   st.address,
	}, true)
}

func (b *Bridge) publishJSON(topic string, msg any, retained bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("encoding message failed", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// handleCommand decodes a command and runs it on its own goroutine.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID := mqtt.Topics{}.DeviceID(topic)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(AckMessage{
			DeviceID: deviceID,
			Status:   AckFailed,
			Error:    errorDetail(fmt.Errorf("%w: %w", ErrInvalidCommand, err)),
		})
		return fmt.Errorf("parse command: %w", err)
	}
	cmd.DeviceID = deviceID
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.spawn(func(ctx context.Context) {
		b.publishAck(b.execute(ctx, cmd))
	})
	return nil
}

// execute runs cmd and builds its ack.
func (b *Bridge) execute(ctx context.Context, cmd CommandMessage) AckMessage {
	ack := AckMessage{CommandID: cmd.ID, DeviceID: cmd.DeviceID, Status: AckAccepted}

	b.logger.Debug("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	err := func() error {
		reg := b.getRegistry()
		if reg == nil {
			return ErrNotStarted
		}
		s, err := reg.Speaker(cmd.DeviceID)
		if err != nil {
			return err
		}

		switch cmd.Command {
		case CommandSetProperty:
			if cmd.Property == "" {
				return fmt.Errorf("%w: property is required", ErrInvalidCommand)
			}
			v, err := s.SetValue(ctx, cmd.Property, cmd.Value)
			ack.Value = v
			return err

		case CommandAction:
			if cmd.Action == "" {
				return fmt.Errorf("%w: action is required", ErrInvalidCommand)
			}
			rec, err := s.PerformAction(ctx, cmd.Action, cmd.Input)
			ack.ActionID = rec.ID
			return err

		default:
			return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Command)
		}
	}()
	if err != nil {
		ack.Status = AckFailed
		ack.Value = nil
		ack.Error = errorDetail(err)
		b.logger.Warn("command failed",
			"command_id", cmd.ID,
			"device_id", cmd.DeviceID,
			"error", err)
	}
	return ack
}

func (b *Bridge) publishAck(ack AckMessage) {
	ack.Timestamp = time.Now().UTC()
	ack.Protocol = protocol
	b.publishJSON(mqtt.Topics{}.Ack(ack.DeviceID), ack, false)
}

// handleRequest decodes a request and answers it on its own goroutine.
func (b *Bridge) handleRequest(topic string, payload []byte) error {
	requestID := mqtt.Topics{}.DeviceID(topic)

	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.respond(requestID, nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err))
		return fmt.Errorf("parse request: %w", err)
	}
	req.RequestID = requestID

	b.spawn(func(ctx context.Context) {
		data, err := b.serve(ctx, req)
		b.respond(req.RequestID, data, err)
	})
	return nil
}

// serve runs one request and returns its response data.
func (b *Bridge) serve(ctx context.Context, req RequestMessage) (any, error) {
	reg := b.getRegistry()
	if reg == nil {
		return nil, ErrNotStarted
	}

	switch req.Action {
	case RequestDescribe:
		s, err := reg.Speaker(req.DeviceID)
		if err != nil {
			return nil, err
		}
		desc, err := s.Describe(ctx)
		if err != nil {
			return nil, err
		}
		b.publishJSON(mqtt.Topics{}.Discovery(desc.ID), DiscoveryMessage{
			Timestamp:   time.Now().UTC(),
			Bridge:      b.bridgeID,
			Protocol:    protocol,
			Description: desc,
		}, true)
		return desc, nil

	case RequestList:
		speakers := reg.Speakers()
		out := make([]speaker.Description, 0, len(speakers))
		for _, s := range speakers {
			out = append(out, s.Description())
		}
		return out, nil

	case RequestStartPairing:
		d := b.pairingWindow
		if req.Duration > 0 {
			d = time.Duration(req.Duration) * time.Second
		}
		reg.StartPairing(d)
		return map[string]any{"pairing": true, "duration": int(d / time.Second)}, nil

	case RequestCancelPairing:
		reg.CancelPairing()
		return map[string]any{"pairing": false}, nil

	case RequestRemove:
		if err := reg.RemoveDevice(ctx, req.DeviceID); err != nil {
			return nil, err
		}
		return map[string]any{"device_id": req.DeviceID}, nil

	default:
		return nil, fmt.Errorf("%w: unknown request %q", ErrInvalidCommand, req.Action)
	}
}

func (b *Bridge) respond(requestID string, data any, err error) {
	resp := ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Success:   err == nil,
		Data:      data,
		Error:     errorDetail(err),
	}
	if err != nil {
		resp.Data = nil
	}
	b.publishJSON(mqtt.Topics{}.Response(requestID), resp, false)
}
