package speaker

import (
	"errors"
	"testing"
)

func TestCacheNotifiesOnlyOnChange(t *testing.T) {
	var got []Property
	c := NewCache(speakerProperties(), func(p Property) { got = append(got, p) })

	if !c.SetCached(PropVolume, 40) {
		t.Error("SetCached(40) reported no change")
	}
	if c.SetCached(PropVolume, 40) {
		t.Error("SetCached(40) twice reported a change")
	}
	if len(got) != 1 || got[0].Value != 40 {
		t.Fatalf("notifications = %+v, want one with value 40", got)
	}
}

func TestCacheUnknownProperty(t *testing.T) {
	c := NewCache(speakerProperties(), nil)
	if c.SetCached("bass", 3) {
		t.Error("SetCached(unknown) reported a change")
	}
	if _, ok := c.Get("bass"); ok {
		t.Error("Get(unknown) ok = true")
	}
}

func TestCacheListOrder(t *testing.T) {
	c := NewCache(speakerProperties(), nil)
	list := c.List()
	want := []string{
		PropPlaying, PropVolume, PropMuted, PropShuffle, PropRepeat, PropCrossfade,
		PropTrack, PropArtist, PropAlbum, PropProgress, PropPosition, PropAlbumArt,
	}
	if len(list) != len(want) {
		t.Fatalf("List() has %d properties, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("List()[%d] = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestCacheSetReadOnlyDoesNotNotify(t *testing.T) {
	calls := 0
	c := NewCache(speakerProperties(), func(Property) { calls++ })

	if !c.SetReadOnly(PropVolume, true) {
		t.Error("SetReadOnly(true) reported no change")
	}
	p, _ := c.Snapshot(PropVolume)
	if !p.ReadOnly {
		t.Error("volume not read-only")
	}
	if calls != 0 {
		t.Errorf("notify called %d times", calls)
	}
}

func TestCacheSnapshotIsCopy(t *testing.T) {
	c := NewCache(speakerProperties(), nil)
	p, _ := c.Snapshot(PropTrack)
	p.Value = "changed"
	if v, _ := c.Get(PropTrack); v != "" {
		t.Errorf("cache mutated through snapshot: %v", v)
	}
}

func TestPropertyCoerce(t *testing.T) {
	props := map[string]Property{}
	for _, p := range speakerProperties() {
		props[p.Name] = p
	}

	tests := []struct {
		name    string
		prop    string
		in      any
		want    any
		wantErr bool
	}{
		{"bool", PropMuted, true, true, false},
		{"bool from string", PropMuted, "true", nil, true},
		{"integer from json float", PropVolume, float64(25), 25, false},
		{"integer fractional", PropVolume, 25.5, nil, true},
		{"integer above max", PropVolume, 101, nil, true},
		{"integer below min", PropVolume, -1, nil, true},
		{"number", PropProgress, 42.5, 42.5, false},
		{"number from int", PropProgress, 10, 10.0, false},
		{"number above max", PropProgress, 100.1, nil, true},
		{"enum", PropRepeat, "One", "One", false},
		{"enum wrong case", PropRepeat, "one", nil, true},
		{"enum wrong type", PropRepeat, 1, nil, true},
		{"string", PropTrack, "Song", "Song", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := props[tt.prop].Coerce(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Errorf("Coerce(%v) error = %v, want ErrInvalidValue", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}
