package codec

import "fmt"

// Values travel with a kind tag so scalars and byte slices come back with the
// Go type they were sent with. Anything else is kind "any" and decodes into the
// codec's generic representation (maps, slices, float64 or sized integers).

const kindAny = "any"

type decodeFunc func(raw []byte, unmarshal func([]byte, any) error) (any, error)

func into[T any](raw []byte, unmarshal func([]byte, any) error) (any, error) {
	var v T
	if err := unmarshal(raw, &v); err != nil {
		return nil, err
	}

	return v, nil
}

var decoders = map[string]decodeFunc{
	"nil":     func([]byte, func([]byte, any) error) (any, error) { return nil, nil },
	"string":  into[string],
	"bytes":   into[[]byte],
	"bool":    into[bool],
	"int":     into[int],
	"int8":    into[int8],
	"int16":   into[int16],
	"int32":   into[int32],
	"int64":   into[int64],
	"uint":    into[uint],
	"uint8":   into[uint8],
	"uint16":  into[uint16],
	"uint32":  into[uint32],
	"uint64":  into[uint64],
	"float32": into[float32],
	"float64": into[float64],
	kindAny:   into[any],
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case bool:
		return "bool"
	case int:
		return "int"
	case int8:
		return "int8"
	case int16:
		return "int16"
	case int32:
		return "int32"
	case int64:
		return "int64"
	case uint:
		return "uint"
	case uint8:
		return "uint8"
	case uint16:
		return "uint16"
	case uint32:
		return "uint32"
	case uint64:
		return "uint64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	default:
		return kindAny
	}
}

func decodeValue(kind string, raw []byte, unmarshal func([]byte, any) error) (any, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}

	return dec(raw, unmarshal)
}
