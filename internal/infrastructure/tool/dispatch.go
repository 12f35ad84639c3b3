package tool

import (
	"strconv"
)

// coerceAndDefault walks a tool's raw JSON-schema-like Parameters map and
// mutates a copy of args: missing properties get their schema "default"
// filled in, and present values are coerced to the declared type when the
// model handed over a string where an integer/number/boolean/array was
// expected — the common shape a text-only LLM response produces. This
// runs before schema validation; validation still rejects whatever
// coercion couldn't fix (e.g. a genuinely missing required field with no
// default).
func coerceAndDefault(schema map[string]interface{}, args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}

	props, _ := schema["properties"].(map[string]interface{})
	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]interface{})
		if !ok {
			continue
		}
		propType, _ := prop["type"].(string)

		val, present := out[name]
		if !present {
			if def, hasDefault := prop["default"]; hasDefault {
				out[name] = def
			}
			continue
		}
		out[name] = coerceValue(val, propType)
	}

	return out
}

// coerceValue converts val to targetType when val is a string carrying
// the right shape (e.g. "42" -> 42.0 for "integer"/"number"). Anything
// that doesn't parse cleanly is left untouched so schema validation can
// reject it with a clear error instead of silently mangling it.
func coerceValue(val interface{}, targetType string) interface{} {
	s, isString := val.(string)
	if !isString {
		return val
	}

	switch targetType {
	case "integer", "number":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case "array":
		return []interface{}{s}
	}
	return val
}
