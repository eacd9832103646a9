// Package codec converts between in-memory events and the opaque
// (event-name string, payload bytes) pairs the repository persists. One
// registry per event family maps event_name back to a constructor so
// reads can resolve the right Go type without runtime reflection on the
// hot path — built once at startup, looked up by name thereafter.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/ILLUVRSE/eventcore/internal/events"
)

// Codec converts a single event family between its in-memory
// representation and the bytes the store persists.
type Codec interface {
	// Encode returns the opaque payload bytes for payload; eventName only
	// labels a CodecError on failure.
	Encode(eventName string, payload interface{}) ([]byte, error)
	// Decode resolves eventName through the registry and unmarshals data
	// into a fresh instance of the registered type.
	Decode(eventName string, data []byte) (interface{}, error)
}

// Registry maps event_name to a constructor for the payload type. It must
// be populated once at startup before any Decode call relies on it.
type Registry struct {
	family        events.Family
	constructors  map[string]func() interface{}
}

// NewRegistry creates an empty registry for the given family.
func NewRegistry(family events.Family) *Registry {
	return &Registry{
		family:       family,
		constructors: make(map[string]func() interface{}),
	}
}

// Register associates eventName with a constructor. Re-registering the
// same name overwrites the previous constructor; callers typically do
// this once at process startup.
func (r *Registry) Register(eventName string, ctor func() interface{}) {
	r.constructors[eventName] = ctor
}

// Family reports which event family this registry resolves names for.
func (r *Registry) Family() events.Family { return r.family }

// JSONCodec is the reference codec: a reversible JSON encoding keyed by
// the type resolver held in Registry. Any codec that is reversible for
// the registered types is an acceptable substitute.
type JSONCodec struct {
	registry *Registry
}

// NewJSONCodec builds a JSON codec bound to registry.
func NewJSONCodec(registry *Registry) *JSONCodec {
	return &JSONCodec{registry: registry}
}

func (c *JSONCodec) Encode(eventName string, payload interface{}) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, &events.CodecError{EventName: eventName, Cause: err}
	}
	return b, nil
}

func (c *JSONCodec) Decode(eventName string, data []byte) (interface{}, error) {
	ctor, ok := c.registry.constructors[eventName]
	if !ok {
		return nil, &events.CodecError{EventName: eventName, Cause: fmt.Errorf("no type registered for event name %q in family %s", eventName, c.registry.family)}
	}
	target := ctor()
	if err := json.Unmarshal(data, target); err != nil {
		return nil, &events.CodecError{EventName: eventName, Cause: err}
	}
	return target, nil
}
