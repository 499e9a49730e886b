package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/DANIELAGORA/leiberluna/message"
)

// ErrUnknownCapability is returned by Validate for a name the registry does not list.
var ErrUnknownCapability = errors.New("client: unknown capability")

// CapabilitySource is implemented by connections that know their capabilities
// without asking the server, such as the simulated transport.
type CapabilitySource interface {
	Capabilities() []message.Capability
}

// CapabilityRegistry is an immutable snapshot of the operations a server offers.
// It is informational: Call never consults it.
type CapabilityRegistry struct {
	caps   []message.Capability
	byName map[string]message.Capability
}

func NewCapabilityRegistry(caps []message.Capability) *CapabilityRegistry {
	r := &CapabilityRegistry{
		caps:   make([]message.Capability, len(caps)),
		byName: make(map[string]message.Capability, len(caps)),
	}
	for i, c := range caps {
		params := make(map[string]message.TypeHint, len(c.Parameters))
		for k, v := range c.Parameters {
			params[k] = v
		}
		c.Parameters = params
		r.caps[i] = c
		r.byName[c.Name] = c
	}
	return r
}

// List returns a copy of the descriptors in server order.
func (r *CapabilityRegistry) List() []message.Capability {
	out := make([]message.Capability, len(r.caps))
	copy(out, r.caps)
	return out
}

func (r *CapabilityRegistry) Lookup(name string) (message.Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *CapabilityRegistry) Len() int {
	return len(r.caps)
}

// Validate checks the params present against the declared type hints. Missing and
// undeclared params are accepted.
func (r *CapabilityRegistry) Validate(name string, params map[string]any) error {
	c, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	var errs []error
	for key, value := range params {
		hint, declared := c.Parameters[key]
		if !declared || value == nil {
			continue
		}
		if !matchesHint(hint, value) {
			errs = append(errs, fmt.Errorf("%s: parameter %q should be %s, got %T", name, key, hint, value))
		}
	}
	return errors.Join(errs...)
}

func matchesHint(hint message.TypeHint, v any) bool {
	switch v.(type) {
	case json.Number:
		return hint == message.TypeNumber
	case json.RawMessage:
		return true
	}
	kind := reflect.TypeOf(v).Kind()
	switch hint {
	case message.TypeString:
		return kind == reflect.String
	case message.TypeNumber:
		switch kind {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	case message.TypeBoolean:
		return kind == reflect.Bool
	case message.TypeArray:
		return kind == reflect.Slice || kind == reflect.Array
	case message.TypeObject:
		return kind == reflect.Map || kind == reflect.Struct ||
			(kind == reflect.Pointer && reflect.TypeOf(v).Elem().Kind() == reflect.Struct)
	default:
		return true
	}
}
