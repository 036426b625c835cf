// Package jsonx extracts a JSON object from free-form model output with a
// sequence of increasingly permissive strategies.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Stage identifies which strategy produced a Result.
type Stage int

const (
	StageDirect Stage = iota
	StageFence
	StageBraces
	StageRepair
	StageFields
	StageRaw
)

func (s Stage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageFence:
		return "fence"
	case StageBraces:
		return "braces"
	case StageRepair:
		return "repair"
	case StageFields:
		return "fields"
	default:
		return "raw"
	}
}

const (
	// KeyParseError is set to true when no strategy produced an object.
	KeyParseError = "parse_error"
	// KeyRawResponse holds the unparsed text alongside KeyParseError.
	KeyRawResponse = "raw_response"
)

// Schema lists the fields the caller expects. It drives the per-field
// fallback. BodyField, when set, names the long free-text field that may
// contain characters breaking strict JSON.
type Schema struct {
	Fields    []string
	BodyField string
}

// Result is the parsed object and the strategy that produced it.
type Result struct {
	Data  map[string]any
	Stage Stage
}

// Failed reports whether every strategy failed.
func (r Result) Failed() bool { return r.Stage == StageRaw }

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// Parse never fails: when nothing parses the raw text is returned under
// KeyRawResponse with KeyParseError set.
func Parse(text string, schema Schema) Result {
	trimmed := strings.TrimSpace(text)

	if obj, ok := decodeObject(trimmed); ok {
		return Result{Data: obj, Stage: StageDirect}
	}

	candidate := trimmed
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		candidate = strings.TrimSpace(m[1])
		if obj, ok := decodeObject(candidate); ok {
			return Result{Data: obj, Stage: StageFence}
		}
	}

	if block, ok := outermostBraces(candidate); ok {
		candidate = block
		if obj, ok := decodeObject(block); ok {
			return Result{Data: obj, Stage: StageBraces}
		}
	}

	if strings.Contains(candidate, "{") {
		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			if obj, ok := decodeObject(repaired); ok && hasAnyField(obj, schema) {
				return Result{Data: obj, Stage: StageRepair}
			}
		}
	}

	if obj := extractFields(candidate, schema); len(obj) > 0 {
		return Result{Data: obj, Stage: StageFields}
	}

	return Result{Data: map[string]any{KeyRawResponse: text, KeyParseError: true}, Stage: StageRaw}
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func outermostBraces(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func hasAnyField(obj map[string]any, schema Schema) bool {
	if len(schema.Fields) == 0 {
		return true
	}
	for _, f := range schema.Fields {
		if _, ok := obj[f]; ok {
			return true
		}
	}
	return false
}

// extractFields pulls known fields out of text one at a time. Scalar fields
// use a strict string/literal pattern. The body field spans from its opening
// quote up to the next known sibling key or the closing brace, so unescaped
// quotes and raw newlines inside it survive.
func extractFields(text string, schema Schema) map[string]any {
	out := make(map[string]any)
	for _, f := range schema.Fields {
		if f == schema.BodyField {
			continue
		}
		key := regexp.QuoteMeta(f)
		strRe := regexp.MustCompile(`"` + key + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		if m := strRe.FindStringSubmatch(text); m != nil {
			out[f] = unescape(m[1])
			continue
		}
		litRe := regexp.MustCompile(`"` + key + `"\s*:\s*(true|false|null|-?\d+(?:\.\d+)?)`)
		if m := litRe.FindStringSubmatch(text); m != nil {
			out[f] = literal(m[1])
		}
	}
	if schema.BodyField != "" {
		if body, ok := extractBody(text, schema); ok {
			out[schema.BodyField] = body
		}
	}
	return out
}

func extractBody(text string, schema Schema) (string, bool) {
	openRe := regexp.MustCompile(`"` + regexp.QuoteMeta(schema.BodyField) + `"\s*:\s*"`)
	loc := openRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[1]:]

	var siblings []string
	for _, f := range schema.Fields {
		if f != schema.BodyField {
			siblings = append(siblings, regexp.QuoteMeta(f))
		}
	}
	if len(siblings) > 0 {
		nextRe := regexp.MustCompile(`"\s*,\s*"(?:` + strings.Join(siblings, "|") + `)"\s*:`)
		if m := nextRe.FindStringIndex(rest); m != nil {
			return unescape(rest[:m[0]]), true
		}
	}
	closeRe := regexp.MustCompile(`"\s*}\s*$`)
	if m := closeRe.FindStringIndex(rest); m != nil {
		return unescape(rest[:m[0]]), true
	}
	if i := strings.LastIndex(rest, `"`); i >= 0 {
		return unescape(rest[:i]), true
	}
	return unescape(strings.TrimSpace(rest)), true
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\/`, "/", `\\`, `\`)

func unescape(s string) string { return unescaper.Replace(s) }

func literal(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
