// Package extract turns loosely formatted model output into a short list of strings.
//
// Strategies run strict to lenient and the first one that yields an item wins, so a
// well-formed JSON answer is never shadowed by the heuristic scanners further down. A JSON
// strategy that finds the list but no usable item ends the cascade with an empty result.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxItems caps every strategy's output.
const MaxItems = 6

// Strategy inspects raw text and returns candidate items, or nil when it does not apply.
// field names the array inside a JSON object, e.g. "prompts".
type Strategy func(raw, field string) []string

type step struct {
	run Strategy
	// structural steps are authoritative once they match, even when every item is blank.
	structural bool
}

var cascade = []step{
	{run: DirectJSON, structural: true},
	{run: EmbeddedObject, structural: true},
	{run: BracketedList},
	{run: Lines},
}

// Extract runs the cascade. The result is never nil; an empty slice means nothing usable
// was found.
func Extract(raw, field string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	for _, st := range cascade {
		found := st.run(raw, field)
		if found == nil {
			continue
		}
		if items := clean(found); len(items) > 0 || st.structural {
			return items
		}
	}
	return []string{}
}

// DirectJSON parses the whole text as a JSON array, or an object holding the array in field.
func DirectJSON(raw, field string) []string {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		return stringsOf(t)
	case map[string]any:
		return fieldOf(t, field)
	}
	return nil
}

// EmbeddedObject parses the span from the first '{' to the last '}'.
func EmbeddedObject(raw, field string) []string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
		return nil
	}
	return fieldOf(obj, field)
}

var (
	bracketRe = regexp.MustCompile(`\[([\s\S]*?)\]`)
	quotedRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// BracketedList scans the first [...] span for quoted strings, falling back to a comma split.
func BracketedList(raw, _ string) []string {
	m := bracketRe.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return nil
	}
	inner := m[1]

	var out []string
	for _, q := range quotedRe.FindAllStringSubmatch(inner, -1) {
		if q[1] != "" {
			out = append(out, q[1])
		} else if q[2] != "" {
			out = append(out, q[2])
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, part := range strings.Split(inner, ",") {
		part = strings.NewReplacer(`"`, "", "'", "", "\n", "", "\r", "").Replace(part)
		out = append(out, part)
	}
	return out
}

var markerRe = regexp.MustCompile(`^[-\d.)\s•*]+`)

// Lines keeps lines that are still longer than three characters once list markers are gone.
func Lines(raw, _ string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(markerRe.ReplaceAllString(strings.TrimSuffix(line, "\r"), ""))
		if utf8.RuneCountInString(line) > 3 {
			out = append(out, line)
		}
	}
	return out
}

func fieldOf(obj map[string]any, field string) []string {
	if field == "" {
		return nil
	}
	arr, ok := obj[field].([]any)
	if !ok {
		return nil
	}
	return stringsOf(arr)
}

func stringsOf(arr []any) []string {
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// clean trims, drops empties and truncates.
func clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxItems {
			break
		}
	}
	return out
}
