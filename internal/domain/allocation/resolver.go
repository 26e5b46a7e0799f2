// Package allocation computes how production costs flow down a batch lineage.
//
// The engine is a pure function over an in-memory batch tree, the stage
// templates that name each stage's quantity fields, and a cost ledger
// snapshot. It performs no I/O and never fails on incomplete data: missing
// values degrade to zero so a half-filled form still yields a result.
package allocation

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// numericPrefix matches the leading decimal number of a form value such as "40.5 kg".
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// ResolveFieldValue extracts the numeric quantity stored under field.
//
// Values are either bare scalars or objects carrying a "value" entry (plus
// unit, type...). The boolean is false when the field is absent or its value
// is not a finite number.
func ResolveFieldValue(data map[string]interface{}, field string) (float64, bool) {
	if field == "" || data == nil {
		return 0, false
	}

	raw, ok := data[field]
	if !ok {
		return 0, false
	}

	if inner, isObject := objectValue(raw); isObject {
		raw = inner
	}

	return toFloat(raw)
}

// objectValue returns the "value" entry of map-shaped values, including
// named map types such as bson.M.
func objectValue(v interface{}) (interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m["value"], true
	case map[interface{}]interface{}:
		return m["value"], true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	entry := rv.MapIndex(reflect.ValueOf("value").Convert(rv.Type().Key()))
	if !entry.IsValid() {
		return nil, true
	}
	return entry.Interface(), true
}

func toFloat(v interface{}) (float64, bool) {
	var f float64

	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		return parseNumber(n.String())
	case primitive.Decimal128:
		return parseNumber(n.String())
	case string:
		return parseNumber(n)
	default:
		return 0, false
	}

	return finite(f)
}

func parseNumber(s string) (float64, bool) {
	match := numericPrefix.FindString(strings.TrimSpace(s))
	if match == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
