package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes the retained bridge health message at a fixed
// interval and on demand.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	logger    Logger

	// devices and pairing are read at publish time.
	devices func() int
	pairing func() bool
	stateMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Publisher is the part of the MQTT client the reporter needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval defaults to 30 seconds.
	Interval time.Duration

	Publisher Publisher
	Logger    Logger
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		logger:    logger,
		devices:   func() int { return 0 },
		pairing:   func() bool { return false },
		done:      make(chan struct{}),
	}
}

// Track sets the functions that report the attached speaker count and
// whether a pairing window is open.
func (h *HealthReporter) Track(devices func() int, pairing func() bool) {
	h.stateMu.Lock()
	h.devices = devices
	h.pairing = pairing
	h.stateMu.Unlock()
}

// Start publishes immediately and then every interval until ctx ends or
// Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final stopping status. Safe to call
// more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a starting status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Message builds the current health message without publishing it.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	h.stateMu.RLock()
	devices, pairing := h.devices(), h.pairing()
	h.stateMu.RUnlock()

	return HealthMessage{
		Bridge:         h.bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		DevicesManaged: devices,
		Pairing:        pairing,
		Reason:         reason,
	}
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Warn("publishing health failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("publishing health failed", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}
