package state

import (
	"encoding/json"
	"fmt"
	"math"
)

// sumScale is the decimal precision kept by the Add policy.
const sumScale = 1e12

func zero(k Kind) any {
	switch k {
	case KindString:
		return ""
	case KindNumber:
		return 0.0
	case KindBool:
		return false
	case KindList:
		return []any{}
	case KindMap:
		return map[string]any{}
	default:
		return nil
	}
}

// canonical converts v to its JSON form. Primitive values skip the
// marshal round trip.
func canonical(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x, nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value of type %T is not serializable: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize returns v in canonical form and checks it against kind.
// A nil v stays nil.
func normalize(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	c, err := canonical(v)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	ok := true
	switch kind {
	case KindString:
		_, ok = c.(string)
	case KindNumber:
		_, ok = c.(float64)
	case KindBool:
		_, ok = c.(bool)
	case KindList:
		_, ok = c.([]any)
	case KindMap:
		_, ok = c.(map[string]any)
	}
	if !ok {
		return nil, fmt.Errorf("expected %s, got %T", kind, v)
	}
	return c, nil
}

func roundSum(f float64) float64 {
	return math.Round(f*sumScale) / sumScale
}

// deepCopy copies a canonical value.
func deepCopy(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	default:
		return x
	}
}
