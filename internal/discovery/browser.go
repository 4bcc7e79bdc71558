package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service identifiers advertised by zone players.
const (
	ServiceType = "_sonos._tcp"
	Domain      = "local"
)

// Logger defines the logging interface used by the browser.
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

// Player is one resolved zone player advertisement.
type Player struct {
	// Instance is the mDNS instance name, e.g. "RINCON_000E58AABBCC01400@Kitchen".
	Instance string

	// Address is the first IPv4 address the player answered with.
	Address string
}

// Zone returns the room name embedded in the instance name, if any.
func (p Player) Zone() string {
	if _, zone, ok := strings.Cut(p.Instance, "@"); ok {
		return zone
	}
	return ""
}

// FoundFunc receives each newly seen player.
type FoundFunc func(Player)

// BrowseFunc runs one zeroconf browse. Tests replace it.
type BrowseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// Options configures a Browser.
type Options struct {
	// Interface restricts browsing to one network interface.
	Interface string

	// Logger is an optional structured logger.
	Logger Logger

	// Browse overrides zeroconf.Browse.
	Browse BrowseFunc
}

// Browser discovers zone players over mDNS.
//
// Thread Safety: Browse may be called concurrently; each call is an
// independent browse.
type Browser struct {
	iface  string
	logger Logger
	browse BrowseFunc
}

// NewBrowser creates a browser.
func NewBrowser(opts Options) *Browser {
	b := &Browser{
		iface:  opts.Interface,
		logger: opts.Logger,
		browse: opts.Browse,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.browse == nil {
		b.browse = zeroconf.Browse
	}
	return b
}

// Browse reports players to found until ctx is done. Each instance is
// reported once. found is called from a single goroutine.
func (b *Browser) Browse(ctx context.Context, found FoundFunc) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts, err := b.clientOptions()
	if err != nil {
		return err
	}

	cctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.collect(cctx, entries, removed, found)
	}()

	err = b.browse(ctx, ServiceType, Domain, entries, removed, opts...)
	cancel()
	wg.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("browsing %s: %w", ServiceType, err)
	}
	return nil
}

func (b *Browser) collect(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, found FoundFunc) {
	seen := make(map[string]bool)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			p, ok := toPlayer(entry)
			if !ok || seen[p.Instance] {
				continue
			}
			seen[p.Instance] = true
			b.logger.Debug("zone player found", "instance", p.Instance, "address", p.Address)
			found(p)

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			// A player that comes back within the same browse is reported again.
			delete(seen, entry.Instance)

		case <-ctx.Done():
			return
		}
	}
}

func (b *Browser) clientOptions() ([]zeroconf.ClientOption, error) {
	if b.iface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(b.iface)
	if err != nil {
		return nil, fmt.Errorf("mdns interface %q: %w", b.iface, err)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}, nil
}

// toPlayer keeps entries that resolved to an IPv4 address.
func toPlayer(entry *zeroconf.ServiceEntry) (Player, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return Player{}, false
	}
	return Player{Instance: entry.Instance, Address: entry.AddrIPv4[0].String()}, true
}
