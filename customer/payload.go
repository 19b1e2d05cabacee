package customer

import (
	"encoding/json"
	"sort"
)

// FromPayload decodes an inference request. The payload must carry exactly
// the input columns; nothing is defaulted. The returned record has no
// prediction.
func FromPayload(payload map[string]any, b Bounds) (Record, error) {
	var r Record
	if payload == nil {
		return r, &InvalidInputError{Reason: "empty payload"}
	}

	unknown := make([]string, 0)
	for key := range payload {
		if _, ok := fieldsByName[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return r, invalid(unknown[0], "unknown field")
	}

	for i := range inputFields {
		f := &inputFields[i]
		raw, ok := payload[f.name]
		if !ok {
			return r, invalid(f.name, "missing")
		}
		v, ok := toFloat(raw)
		if !ok {
			return r, invalid(f.name, "must be a number, got %T", raw)
		}
		if err := f.set(&r, v); err != nil {
			return r, err
		}
	}

	if err := r.Validate(b, false); err != nil {
		return Record{}, err
	}
	return r, nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
