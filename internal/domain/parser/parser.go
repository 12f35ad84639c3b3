// Package parser implements the LLM Response Parser: turning a free-form
// model response into a ParsedAction. Total by construction — every
// strategy returns parsed|none (per Design Note "replace exception-driven
// control flow with explicit result types"); Parse itself never raises,
// it only ever returns a Result, falling back to a synthetic "error"
// action when nothing could be recovered.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/reactorctl/reactor/internal/domain/entity"
)

// Result is everything the Controller needs from one LLM response.
type Result struct {
	Thought  string
	Intent   string
	Action   entity.ParsedAction
	IsFinish bool
}

var (
	thoughtRe = regexp.MustCompile(`(?is)Thought:\s*(.*?)(?:\n\s*(?:Intent|Action):|$)`)
	intentRe  = regexp.MustCompile(`(?is)Intent:\s*(.*?)(?:\n\s*Action:|$)`)
	actionRe  = regexp.MustCompile(`(?is)Action:\s*({.*?})\s*$`)
	splitRe   = regexp.MustCompile(`(?is)"tool_name"\s*:\s*"([^"]+)".*?"parameters"\s*:\s*({.*?})`)
	keyScrapeToolNameRe = regexp.MustCompile(`(?is)"?tool_name"?\s*:\s*"?([A-Za-z0-9_\.\-]+)"?`)
)

// Parse extracts a ParsedAction from a free-form LLM response. Strategies
// are tried in order; the first to produce a structurally valid action
// wins. If every strategy fails, Parse returns a synthetic tool_name="error"
// action carrying the raw text for the Controller to surface as an
// observation.
func Parse(text string) Result {
	res := Result{
		Thought: firstMatch(thoughtRe, text),
		Intent:  firstMatch(intentRe, text),
	}

	action, ok := parseAction(text)
	if !ok {
		action = entity.ParsedAction{
			ToolName:   "error",
			Parameters: map[string]interface{}{"raw": text},
			Reason:     "could not parse an Action block from the model response",
		}
	}

	res.Action = validate(action)
	res.IsFinish = res.Action.IsFinish()
	return res
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// parseAction runs the three ordered strategies, returning the first one
// that produces a structurally sane action.
func parseAction(text string) (entity.ParsedAction, bool) {
	if a, ok := balancedBraceStrategy(text); ok {
		return a, true
	}
	if a, ok := regexStrategy(text); ok {
		return a, true
	}
	if a, ok := keyScrapeStrategy(text); ok {
		return a, true
	}
	return entity.ParsedAction{}, false
}

// balancedBraceStrategy locates "Action:", scans to the first '{', and
// walks characters with a brace counter (skipping braces inside quoted
// strings) until the counter returns to zero.
func balancedBraceStrategy(text string) (entity.ParsedAction, bool) {
	idx := strings.Index(text, "Action:")
	if idx < 0 {
		return entity.ParsedAction{}, false
	}
	rest := text[idx+len("Action:"):]
	start := strings.Index(rest, "{")
	if start < 0 {
		return entity.ParsedAction{}, false
	}

	slice, ok := extractBalanced(rest[start:])
	if !ok {
		return entity.ParsedAction{}, false
	}

	return decodeActionJSON(slice)
}

// extractBalanced walks s from its first '{' and returns the substring up
// to and including the matching closing brace, respecting quoted strings
// and escapes.
func extractBalanced(s string) (string, bool) {
	depth := 0
	inString := false
	var quote rune
	escaped := false
	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"', '\'':
			if !inString {
				inString = true
				quote = r
			} else if r == quote {
				inString = false
			}
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1], true
				}
			}
		}
	}
	return "", false
}

// decodeActionJSON tries strict JSON first, then a loose-literal
// normalization pass (unquoted keys, single-quoted / bareword values —
// the common shape a weaker model emits instead of JSON).
func decodeActionJSON(slice string) (entity.ParsedAction, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(slice), &raw); err == nil {
		return mapToAction(raw), true
	}
	if err := json.Unmarshal([]byte(normalizeLooseLiteral(slice)), &raw); err == nil {
		return mapToAction(raw), true
	}
	return entity.ParsedAction{}, false
}

var (
	bareKeyRe      = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	singleQuoteRe  = regexp.MustCompile(`'([^']*)'`)
	bareValueRe    = regexp.MustCompile(`:\s*([A-Za-z_][A-Za-z0-9_./\\-]*)\s*([,}])`)
	pyConstantsRe  = regexp.MustCompile(`\b(True|False|None)\b`)
)

// normalizeLooseLiteral converts a Python-literal/JS-object-ish fragment
// (unquoted keys, single-quoted strings, True/False/None, bare word
// values) into valid JSON. Best-effort: good enough for the common cases
// an under-specified model emits, not a general parser.
func normalizeLooseLiteral(s string) string {
	out := pyConstantsRe.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case "True":
			return "true"
		case "False":
			return "false"
		default:
			return "null"
		}
	})
	out = singleQuoteRe.ReplaceAllString(out, `"$1"`)
	out = bareKeyRe.ReplaceAllString(out, `$1"$2":`)
	out = bareValueRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := bareValueRe.FindStringSubmatch(m)
		val := sub[1]
		switch val {
		case "true", "false", "null":
			return ": " + val + sub[2]
		}
		return `: "` + val + `"` + sub[2]
	})
	return out
}

func mapToAction(raw map[string]interface{}) entity.ParsedAction {
	a := entity.ParsedAction{}
	if name, ok := raw["tool_name"].(string); ok {
		a.ToolName = name
	}
	if params, ok := raw["parameters"].(map[string]interface{}); ok {
		a.Parameters = params
	}
	if reason, ok := raw["reason"].(string); ok {
		a.Reason = reason
	}
	return a
}

// regexStrategy: the "Action:\s*({.*?})" fallback, plus the split pattern
// that recovers tool_name/parameters separately when the whole-object
// match fails (e.g. because of an unbalanced trailing fragment).
func regexStrategy(text string) (entity.ParsedAction, bool) {
	if m := actionRe.FindStringSubmatch(text); len(m) == 2 {
		if a, ok := decodeActionJSON(m[1]); ok {
			return a, true
		}
	}
	if m := splitRe.FindStringSubmatch(text); len(m) == 3 {
		a := entity.ParsedAction{ToolName: m[1]}
		var params map[string]interface{}
		if err := json.Unmarshal([]byte(m[2]), &params); err == nil {
			a.Parameters = params
		} else if err := json.Unmarshal([]byte(normalizeLooseLiteral(m[2])), &params); err == nil {
			a.Parameters = params
		}
		if a.ToolName != "" {
			return a, true
		}
	}
	return entity.ParsedAction{}, false
}

var scriptContentRe = regexp.MustCompile(`(?is)"script_content"\s*:\s*"(.*?)"\s*[,}]`)
var paramsStartRe = regexp.MustCompile(`"parameters"\s*:\s*`)

// keyScrapeStrategy directly regexes out tool_name, then best-effort
// parses whatever follows "parameters": as a balanced-brace object. A
// multi-line script_content value, if present, first has its literal
// newlines and double quotes escaped (a common failure mode: models emit
// literal newlines inside a JSON string), so decoding turns them back into
// real newlines and quotes.
func keyScrapeStrategy(text string) (entity.ParsedAction, bool) {
	m := keyScrapeToolNameRe.FindStringSubmatch(text)
	if len(m) < 2 || m[1] == "" {
		return entity.ParsedAction{}, false
	}
	a := entity.ParsedAction{ToolName: m[1], Parameters: map[string]interface{}{}}

	fixed := text
	if sc := scriptContentRe.FindStringSubmatch(text); len(sc) == 2 {
		escaped := strings.NewReplacer("\n", "\\n", "\"", "\\\"").Replace(sc[1])
		fixed = strings.Replace(text, sc[1], escaped, 1)
	}

	if loc := paramsStartRe.FindStringIndex(fixed); loc != nil {
		rest := fixed[loc[1]:]
		if slice, ok := extractBalanced(rest); ok {
			var params map[string]interface{}
			if err := json.Unmarshal([]byte(slice), &params); err == nil {
				a.Parameters = params
			} else if err := json.Unmarshal([]byte(normalizeLooseLiteral(slice)), &params); err == nil {
				a.Parameters = params
			}
		}
	}
	return a, true
}

// validate applies the pydantic-style post-parse checks spec.md describes:
// tool_name non-empty, parameters defaults to {}, reason optional.
func validate(a entity.ParsedAction) entity.ParsedAction {
	if a.Parameters == nil {
		a.Parameters = map[string]interface{}{}
	}
	if a.ToolName == "" {
		return entity.ParsedAction{
			ToolName:   "error",
			Parameters: map[string]interface{}{},
			Reason:     "parsed action had an empty tool_name",
		}
	}
	return a
}
