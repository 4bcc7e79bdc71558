package speaker

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// ValueType is the declared type of a property.
type ValueType string

// Property value types.
const (
	TypeBoolean ValueType = "boolean"
	TypeInteger ValueType = "integer"
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
	TypeEnum    ValueType = "enum"
	TypeImage   ValueType = "image"
)

// Property names exposed by every speaker.
const (
	PropPlaying   = "playing"
	PropVolume    = "volume"
	PropMuted     = "muted"
	PropShuffle   = "shuffle"
	PropRepeat    = "repeat"
	PropCrossfade = "crossfade"
	PropTrack     = "track"
	PropArtist    = "artist"
	PropAlbum     = "album"
	PropProgress  = "progress"
	PropPosition  = "position"
	PropAlbumArt  = "albumArt"
)

// Property is a named, typed, host-visible piece of speaker state.
type Property struct {
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	Type         ValueType `json:"type"`
	SemanticType string    `json:"@type,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Enum         []string  `json:"enum,omitempty"`
	Minimum      *float64  `json:"minimum,omitempty"`
	Maximum      *float64  `json:"maximum,omitempty"`
	ReadOnly     bool      `json:"readOnly,omitempty"`
	Value        any       `json:"value"`
}

func bound(v float64) *float64 { return &v }

// speakerProperties returns the property set of a freshly attached speaker.
// Values start at their zero value and are filled in by Init.
func speakerProperties() []Property {
	return []Property{
		{Name: PropPlaying, Title: "Playing", Type: TypeBoolean, SemanticType: "BooleanProperty", Value: false},
		{Name: PropVolume, Title: "Volume", Type: TypeInteger, SemanticType: "LevelProperty", Unit: "percent",
			Minimum: bound(0), Maximum: bound(100), Value: 0},
		{Name: PropMuted, Title: "Muted", Type: TypeBoolean, SemanticType: "BooleanProperty", Value: false},
		{Name: PropShuffle, Title: "Shuffle", Type: TypeBoolean, SemanticType: "BooleanProperty", Value: false},
		{Name: PropRepeat, Title: "Repeat", Type: TypeEnum, Enum: []string{string(RepeatNone), string(RepeatOne), string(RepeatAll)},
			Value: string(RepeatNone)},
		{Name: PropCrossfade, Title: "Crossfade", Type: TypeBoolean, SemanticType: "BooleanProperty", Value: false},
		{Name: PropTrack, Title: "Track", Type: TypeString, ReadOnly: true, Value: ""},
		{Name: PropArtist, Title: "Artist", Type: TypeString, ReadOnly: true, Value: ""},
		{Name: PropAlbum, Title: "Album", Type: TypeString, ReadOnly: true, Value: ""},
		{Name: PropProgress, Title: "Progress", Type: TypeNumber, SemanticType: "LevelProperty", Unit: "percent",
			Minimum: bound(0), Maximum: bound(100), Value: 0.0},
		{Name: PropPosition, Title: "Position", Type: TypeInteger, Unit: "second", Minimum: bound(0), Value: 0},
		{Name: PropAlbumArt, Title: "Album Art", Type: TypeImage, SemanticType: "ImageProperty", ReadOnly: true, Value: ""},
	}
}

// Coerce converts a host-supplied value to the property's Go representation:
// bool, int, float64 or string. JSON numbers decode as float64, so integer
// properties accept whole floats.
func (p Property) Coerce(v any) (any, error) {
	switch p.Type {
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a boolean, got %T", ErrInvalidValue, p.Name, v)
		}
		return b, nil

	case TypeInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s expects an integer, got %v", ErrInvalidValue, p.Name, v)
		}
		if err := p.checkRange(f); err != nil {
			return nil, err
		}
		return int(f), nil

	case TypeNumber:
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s expects a number, got %v", ErrInvalidValue, p.Name, v)
		}
		if err := p.checkRange(f); err != nil {
			return nil, err
		}
		return f, nil

	case TypeEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(p.Enum, s) {
			return nil, fmt.Errorf("%w: %s must be one of %v, got %v", ErrInvalidValue, p.Name, p.Enum, v)
		}
		return s, nil

	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidValue, p.Name, v)
		}
		return s, nil
	}
}

func (p Property) checkRange(f float64) error {
	if p.Minimum != nil && f < *p.Minimum {
		return fmt.Errorf("%w: %s below minimum %v", ErrInvalidValue, p.Name, *p.Minimum)
	}
	if p.Maximum != nil && f > *p.Maximum {
		return fmt.Errorf("%w: %s above maximum %v", ErrInvalidValue, p.Name, *p.Maximum)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// valuesEqual compares two cached values. Cached values are always scalar
// (bool, int, float64, string) so interface equality is exact.
func valuesEqual(a, b any) bool {
	return a == b
}
