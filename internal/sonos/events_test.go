package sonos

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

// notifyBody wraps LastChange instance variables in a GENA property set.
func notifyBody(ns, vars string) string {
	lc := fmt.Sprintf(`<Event xmlns="%s"><InstanceID val="0">%s</InstanceID></Event>`, ns, vars)
	return `<?xml version="1.0"?><e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">` +
		`<e:property><LastChange>` + html.EscapeString(lc) + `</LastChange></e:property></e:propertyset>`
}

func avtBody(vars string) string {
	return notifyBody("urn:schemas-upnp-org:metadata-1-0/AVT/", vars)
}

func rcsBody(vars string) string {
	return notifyBody("urn:schemas-upnp-org:metadata-1-0/RCS/", vars)
}

// eventRecorder collects decoded events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func TestParseLastChange(t *testing.T) {
	body := rcsBody(`<Volume channel="Master" val="24"/><Volume channel="LF" val="100"/><Mute channel="Master" val="0"/>`)
	vars, err := ParseLastChange([]byte(body))
	if err != nil {
		t.Fatalf("ParseLastChange() error = %v", err)
	}
	want := map[string]string{"Volume/Master": "24", "Volume/LF": "100", "Mute/Master": "0"}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("vars = %v, want %v", vars, want)
	}
}

func TestDecodeAVTransport(t *testing.T) {
	rec := &eventRecorder{}
	dec := newEventDecoder("http://192.168.1.20:1400", rec.handle)

	vars := `<TransportState val="PLAYING"/>` +
		`<CurrentPlayMode val="SHUFFLE"/>` +
		`<CurrentCrossfadeMode val="1"/>` +
		`<CurrentTrackDuration val="0:03:00"/>` +
		`<CurrentTrackMetaData val="` + html.EscapeString(trackMetadata) + `"/>`
	if err := dec.avTransport([]byte(avtBody(vars))); err != nil {
		t.Fatalf("avTransport() error = %v", err)
	}

	want := []Event{
		AVTransportEvent{PlayMode: "SHUFFLE", Crossfade: true, HasMetadata: true, MetadataKnown: true},
		CurrentTrackEvent{Track: Track{
			Title: "Blue in Green", Artist: "Miles Davis", Album: "Kind of Blue", Duration: 180,
			ArtURI: "http://192.168.1.20:1400/getaa?s=1&u=x-sonos-http%3atrack.mp3",
		}},
		PlayStateEvent{State: StatePlaying},
	}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("events =\n%+v\nwant\n%+v", got, want)
	}
}

func TestDecodeAVTransportFillsUnchangedSettings(t *testing.T) {
	rec := &eventRecorder{}
	dec := newEventDecoder("", rec.handle)

	_ = dec.avTransport([]byte(avtBody(`<CurrentPlayMode val="REPEAT_ALL"/><CurrentCrossfadeMode val="1"/>`)))
	rec.take()

	// Only the play mode changed; crossfade keeps its last value and the
	// metadata state is still unknown.
	_ = dec.avTransport([]byte(avtBody(`<CurrentPlayMode val="NORMAL"/>`)))
	got := rec.take()
	want := []Event{AVTransportEvent{PlayMode: "NORMAL", Crossfade: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestDecodeAVTransportMetadataStaysKnown(t *testing.T) {
	rec := &eventRecorder{}
	dec := newEventDecoder("http://192.168.1.20:1400", rec.handle)

	vars := `<CurrentPlayMode val="NORMAL"/>` +
		`<CurrentTrackMetaData val="` + html.EscapeString(trackMetadata) + `"/>`
	_ = dec.avTransport([]byte(avtBody(vars)))
	rec.take()

	// A later play mode change without metadata keeps the last metadata state.
	_ = dec.avTransport([]byte(avtBody(`<CurrentPlayMode val="REPEAT_ALL"/>`)))
	want := []Event{AVTransportEvent{PlayMode: "REPEAT_ALL", HasMetadata: true, MetadataKnown: true}}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestDecodeAVTransportStopped(t *testing.T) {
	rec := &eventRecorder{}
	dec := newEventDecoder("", rec.handle)

	_ = dec.avTransport([]byte(avtBody(`<TransportState val="STOPPED"/><CurrentTrackMetaData val=""/>`)))
	want := []Event{
		AVTransportEvent{HasMetadata: false, MetadataKnown: true},
		PlayStateEvent{State: StateStopped},
		PlaybackStoppedEvent{},
	}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestDecodeRenderingControl(t *testing.T) {
	rec := &eventRecorder{}
	dec := newEventDecoder("", rec.handle)

	body := rcsBody(`<Volume channel="Master" val="24"/><Volume channel="RF" val="100"/><Mute channel="Master" val="1"/>`)
	if err := dec.renderingControl([]byte(body)); err != nil {
		t.Fatalf("renderingControl() error = %v", err)
	}
	want := []Event{VolumeEvent{Volume: 24}, MutedEvent{Muted: true}}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestMalformedNotify(t *testing.T) {
	dec := newEventDecoder("", (&eventRecorder{}).handle)
	if err := dec.avTransport([]byte("<not-xml")); err == nil {
		t.Error("avTransport(malformed) error = nil")
	}
}

// fakeEventSource accepts GENA SUBSCRIBE/UNSUBSCRIBE and records callbacks.
type fakeEventSource struct {
	mu          sync.Mutex
	callbacks   map[string]string
	renewals    int
	unsubscribe []string
}

func newFakeEventSource(t *testing.T) (*fakeEventSource, *httptest.Server) {
	t.Helper()
	f := &fakeEventSource{callbacks: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeEventSource) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case "SUBSCRIBE":
		if sid := r.Header.Get("SID"); sid != "" {
			f.renewals++
			w.Header().Set("SID", sid)
		} else {
			sid := fmt.Sprintf("uuid:sub-%d", len(f.callbacks)+1)
			f.callbacks[r.URL.Path] = strings.Trim(r.Header.Get("CALLBACK"), "<>")
			w.Header().Set("SID", sid)
		}
		w.Header().Set("TIMEOUT", "Second-1800")
	case "UNSUBSCRIBE":
		f.unsubscribe = append(f.unsubscribe, r.Header.Get("SID"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeEventSource) callback(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks[path]
}

func (f *fakeEventSource) unsubscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubscribe)
}

// deliverNotify posts body to the listener's handler at callback's path.
func deliverNotify(t *testing.T, l *Listener, callback, body string) int {
	t.Helper()
	idx := strings.Index(callback, "/events/")
	if idx < 0 {
		t.Fatalf("callback %q has no events path", callback)
	}
	req := httptest.NewRequest("NOTIFY", callback[idx:], strings.NewReader(body))
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	rr := httptest.NewRecorder()
	l.Handler().ServeHTTP(rr, req)
	return rr.Code
}

func TestListenerSubscribeAndNotify(t *testing.T) {
	src, srv := newFakeEventSource(t)
	l := NewListener(ListenerOptions{Host: "127.0.0.1", Port: 3501})
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), ClientOptions{Listener: l})

	rec := &eventRecorder{}
	sub, err := c.Subscribe(context.Background(), rec.handle)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	avCallback := src.callback(AVTransport.Event)
	rcCallback := src.callback(RenderingControl.Event)
	if !strings.HasPrefix(avCallback, "http://127.0.0.1:3501/events/") || rcCallback == "" || avCallback == rcCallback {
		t.Fatalf("callbacks = %q, %q", avCallback, rcCallback)
	}

	if code := deliverNotify(t, l, rcCallback, rcsBody(`<Volume channel="Master" val="12"/>`)); code != http.StatusOK {
		t.Fatalf("NOTIFY status = %d", code)
	}
	if code := deliverNotify(t, l, avCallback, avtBody(`<TransportState val="PAUSED_PLAYBACK"/>`)); code != http.StatusOK {
		t.Fatalf("NOTIFY status = %d", code)
	}
	want := []Event{VolumeEvent{Volume: 12}, PlayStateEvent{State: StatePaused}}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}

	if err := sub.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if src.unsubscribed() != 2 {
		t.Errorf("UNSUBSCRIBE count = %d, want 2", src.unsubscribed())
	}
	if code := deliverNotify(t, l, avCallback, avtBody(`<TransportState val="PLAYING"/>`)); code != http.StatusPreconditionFailed {
		t.Errorf("NOTIFY after unsubscribe status = %d, want 412", code)
	}
	if len(rec.take()) != 0 {
		t.Error("event delivered after unsubscribe")
	}
}

func TestListenerMalformedNotifyAccepted(t *testing.T) {
	src, srv := newFakeEventSource(t)
	l := NewListener(ListenerOptions{Host: "127.0.0.1"})
	sub, err := l.Subscribe(context.Background(), srv.URL, AVTransport.Event, func([]byte) error {
		return fmt.Errorf("bad")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Unsubscribe(context.Background())

	if code := deliverNotify(t, l, src.callback(AVTransport.Event), "junk"); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestListenerRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewListener(ListenerOptions{Host: "127.0.0.1"})
	_, err := l.Subscribe(context.Background(), srv.URL, AVTransport.Event, func([]byte) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("Subscribe() error = %v, want rejection", err)
	}
	if len(l.subs) != 0 {
		t.Error("rejected subscription left registered")
	}
}

func TestListenerStopped(t *testing.T) {
	l := NewListener(ListenerOptions{Host: "127.0.0.1"})
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := l.Subscribe(context.Background(), "http://127.0.0.1:1400", AVTransport.Event, nil); err != ErrListenerStopped {
		t.Errorf("Subscribe() after Stop error = %v", err)
	}
}

func TestClientSubscribeWithoutListener(t *testing.T) {
	c := NewClient("192.168.1.20", ClientOptions{})
	if _, err := c.Subscribe(context.Background(), func(Event) {}); err != ErrNoListener {
		t.Errorf("Subscribe() error = %v, want ErrNoListener", err)
	}
}

func TestTimeoutHeader(t *testing.T) {
	if got := parseTimeoutHeader("Second-1800"); got != 30*time.Minute {
		t.Errorf("parseTimeoutHeader = %v", got)
	}
	if got := parseTimeoutHeader("infinite"); got != 0 {
		t.Errorf("parseTimeoutHeader(infinite) = %v", got)
	}
	if got := timeoutHeader(90 * time.Second); got != "Second-90" {
		t.Errorf("timeoutHeader = %q", got)
	}
}
