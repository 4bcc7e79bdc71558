package speaker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Action names exposed by every speaker.
const (
	ActionNext    = "next"
	ActionPrev    = "prev"
	ActionStop    = "stop"
	ActionGroup   = "group"
	ActionPlayURI = "playUri"
)

// ActionSpec describes a host-invocable action.
type ActionSpec struct {
	Name        string       `json:"name"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Input       *InputSchema `json:"input,omitempty"`
}

// InputSchema is the JSON schema of an action's object input.
type InputSchema struct {
	Type       string                `json:"type"`
	Properties map[string]InputField `json:"properties"`
	Required   []string              `json:"required,omitempty"`
}

// InputField is one field of an InputSchema.
type InputField struct {
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Default any    `json:"default,omitempty"`
}

// staticActions returns the actions whose schema never changes.
func staticActions() []ActionSpec {
	return []ActionSpec{
		{Name: ActionNext, Title: "Next", Description: "Skip to next track"},
		{Name: ActionPrev, Title: "Previous", Description: "Skip to previous track"},
		{Name: ActionStop, Title: "Stop", Description: "Stop playback"},
		{
			Name:        ActionPlayURI,
			Title:       "Play URI",
			Description: "Play a stream or file by URI",
			Input: &InputSchema{
				Type:       "object",
				Properties: map[string]InputField{"uri": {Type: "string", Title: "URI"}},
				Required:   []string{"uri"},
			},
		},
	}
}

// InputValue is one field of an action invocation.
type InputValue struct {
	Name  string
	Value any
}

// ActionInput is an action's object input in the order the caller sent it.
type ActionInput []InputValue

// UnmarshalJSON decodes a JSON object keeping field order.
func (in *ActionInput) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*in = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: input must be an object", ErrInvalidInput)
	}

	out := ActionInput{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, InputValue{Name: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*in = out
	return nil
}

// MarshalJSON encodes the input as a JSON object in field order.
func (in ActionInput) MarshalJSON() ([]byte, error) {
	if in == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range in {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the named field.
func (in ActionInput) Get(name string) (any, bool) {
	for _, f := range in {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the input as a map for schema validation.
func (in ActionInput) Map() map[string]any {
	m := make(map[string]any, len(in))
	for _, f := range in {
		m[f.Name] = f.Value
	}
	return m
}

// ActionStatus is the lifecycle state of an ActionRecord.
type ActionStatus string

// Action lifecycle states.
const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// ActionRecord is one invocation of an action.
type ActionRecord struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Input         ActionInput  `json:"input,omitempty"`
	Status        ActionStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	TimeRequested time.Time    `json:"timeRequested"`
	TimeCompleted *time.Time   `json:"timeCompleted,omitempty"`
}

const maxCachedSchemas = 32

// inputValidator compiles action input schemas once per distinct schema.
type inputValidator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

func newInputValidator() *inputValidator {
	return &inputValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate checks input against spec's schema. Actions without input
// ignore whatever was sent.
func (v *inputValidator) Validate(spec ActionSpec, input ActionInput) error {
	if spec.Input == nil {
		return nil
	}

	compiled, err := v.compile(spec.Input)
	if err != nil {
		return fmt.Errorf("compiling %s input schema: %w", spec.Name, err)
	}

	// Round-trip through JSON so the validator sees decoded JSON types.
	raw, err := json.Marshal(input.Map())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (v *inputValidator) compile(schema *InputSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cache[key]; ok {
		return s, nil
	}
	// Group schemas change with topology; keep the cache bounded.
	if len(v.cache) >= maxCachedSchemas {
		clear(v.cache)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("input.json", doc); err != nil {
		return nil, err
	}
	compiled, err := c.Compile("input.json")
	if err != nil {
		return nil, err
	}
	v.cache[key] = compiled
	return compiled, nil
}
