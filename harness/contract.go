package harness

import (
	"errors"
	"fmt"
)

// ErrContractViolation marks a received value that does not match the contract.
var ErrContractViolation = errors.New("harness: contract violation")

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}

func asMap(v any, what string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, violation("%s is %T, want an object", what, v)
	}

	return m, nil
}

// number accepts the integer and float kinds produced by in-memory payloads
// and by JSON or msgpack decoding.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func nonEmptyString(m map[string]any, key string) error {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return violation("%q = %v, want a non-empty string", key, m[key])
	}

	return nil
}

// CheckOrigin verifies the origin section of a metrics message.
func CheckOrigin(v any, serviceID string) error {
	m, err := asMap(v, "origin")
	if err != nil {
		return err
	}

	if err = nonEmptyString(m, "host"); err != nil {
		return err
	}

	if err = nonEmptyString(m, "id"); err != nil {
		return err
	}

	if port, ok := number(m["port"]); !ok || port <= 0 {
		return violation("port = %v, want a positive number", m["port"])
	}

	if m["serviceId"] != serviceID {
		return violation("serviceId = %v, want %q", m["serviceId"], serviceID)
	}

	return nil
}

// CheckData verifies the command section of a metrics message.
func CheckData(v any, group, name string) error {
	m, err := asMap(v, "data")
	if err != nil {
		return err
	}

	if m["type"] != CommandType {
		return violation("type = %v, want %q", m["type"], CommandType)
	}

	if m["group"] != group {
		return violation("group = %v, want %q", m["group"], group)
	}

	if m["name"] != name {
		return violation("name = %v, want %q", m["name"], name)
	}

	if _, ok := m["isCircuitBreakerOpen"].(bool); !ok {
		return violation("isCircuitBreakerOpen = %v, want a boolean", m["isCircuitBreakerOpen"])
	}

	for _, k := range []string{"currentTime", "errorPercentage", "errorCount", "requestCount", "rollingCountSuccess"} {
		if n, ok := number(m[k]); !ok || n < 0 {
			return violation("%q = %v, want a non-negative number", k, m[k])
		}
	}

	return nil
}

// CheckEvent verifies the event name of a metrics message.
func CheckEvent(v any) error {
	if s, ok := v.(string); !ok || s != StreamEvent {
		return violation("event = %v, want %q", v, StreamEvent)
	}

	return nil
}
