package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/errors"
)

// NativeKey is a survey-assigned identifier (a household serial, an SPM unit
// id) in canonical string form. Two keys are equal when the survey meant the
// same entity, whether the raw file stored it as text, an integer or an
// integral float.
type NativeKey string

// NewNativeKey canonicalizes a raw identifier value.
func NewNativeKey(value any) (NativeKey, error) {
	switch v := value.(type) {
	case NativeKey:
		if v == "" {
			return "", errors.New(errors.KindInvalidKey, "empty identifier")
		}
		return v, nil
	case int64:
		return NativeKey(strconv.FormatInt(v, 10)), nil
	case int:
		return NativeKey(strconv.Itoa(v)), nil
	case int32:
		return NativeKey(strconv.FormatInt(int64(v), 10)), nil
	case float64:
		return floatKey(v)
	case float32:
		return floatKey(float64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", errors.New(errors.KindInvalidKey, "empty identifier")
		}
		return NativeKey(s), nil
	case []byte:
		return NewNativeKey(string(v))
	case nil:
		return "", errors.New(errors.KindInvalidKey, "missing identifier")
	default:
		return "", errors.Newf(errors.KindInvalidKey, "unsupported identifier type %T", value)
	}
}

const maxExactFloatInt = 1 << 53

func floatKey(f float64) (NativeKey, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New(errors.KindInvalidKey, "missing identifier")
	}
	if f == math.Trunc(f) {
		// past 2^53 neighbouring integers share a float, so the key is ambiguous
		if math.Abs(f) >= maxExactFloatInt {
			return "", errors.Newf(errors.KindInvalidKey, "identifier %s exceeds float precision", strconv.FormatFloat(f, 'f', -1, 64))
		}
		return NativeKey(strconv.FormatInt(int64(f), 10)), nil
	}
	return NativeKey(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (k NativeKey) String() string {
	return string(k)
}

// Int64 parses a numeric key.
func (k NativeKey) Int64() (int64, error) {
	v, err := strconv.ParseInt(string(k), 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.KindInvalidKey, "identifier %q is not an integer", string(k))
	}
	return v, nil
}

// FormatKeys renders up to limit keys for error messages.
func FormatKeys(keys []NativeKey, limit int) string {
	parts := make([]string, 0, limit)
	for i, key := range keys {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(keys)-limit))
			break
		}
		parts = append(parts, string(key))
	}
	return strings.Join(parts, ", ")
}
