// Package textparse extracts action items from free-form model output.
// It tries strict JSON first and falls back to splitting lines, so callers
// always get a list even when the model ignored the requested format.
package textparse

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	fence  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	bullet = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\[[ xX]?\])\s*`)
)

// ParseActions returns the action items in text.
func ParseActions(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if m := fence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	if items, ok := parseJSON(text); ok {
		return items
	}
	return parseLines(text)
}

// parseJSON accepts a JSON array of strings or an object with an
// "actions" array. Any other array or object yields no actions, and a
// top-level JSON string is unwrapped and parsed again. Other scalars are
// left to the line splitter.
func parseJSON(text string) ([]string, bool) {
	if !gjson.Valid(text) {
		return nil, false
	}

	v := gjson.Parse(text)
	switch {
	case v.Type == gjson.String:
		return ParseActions(v.String()), true
	case v.IsObject():
		v = v.Get("actions")
		if !v.IsArray() {
			return nil, true
		}
	case !v.IsArray():
		return nil, false
	}

	var items []string
	for _, el := range v.Array() {
		if el.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(el.String()); s != "" {
			items = append(items, s)
		}
	}
	return items, true
}

func parseLines(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(bullet.ReplaceAllString(line, ""))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}
