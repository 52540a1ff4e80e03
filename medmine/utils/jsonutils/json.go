package jsonutils

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	reFence         = regexp.MustCompile("(?s)```(?:json)?(.*?)```")
	reObj           = regexp.MustCompile(`(?s)\{.*\}`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ErrNoJSON is returned when the input holds no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found")

// ExtractJSON tries to extract a JSON block from LLM output.
//
// Priority:
// 1. Triple-backtick fenced block
// 2. Any {...} JSON object
//
// Invisible Unicode characters and trailing commas are removed.
func ExtractJSON(input string) string {
	input = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\uFEFF' || r == '\u200B' || r == '\u200C' || r == '\u200D' {
			return -1
		}
		return r
	}, input))

	if match := reFence.FindStringSubmatch(input); len(match) > 1 && strings.Contains(match[1], "{") {
		input = strings.TrimSpace(match[1])
	}
	if match := reObj.FindString(input); match != "" {
		input = strings.TrimSpace(match)
	} else {
		return ""
	}

	input = reTrailingComma.ReplaceAllString(input, "$1")
	return strings.TrimSpace(input)
}

// DecodeLLMObject extracts the first JSON object from model output into v.
// Over-escaped output (\" everywhere) is retried once after unescaping.
func DecodeLLMObject(input string, v interface{}) error {
	raw := ExtractJSON(input)
	if raw == "" {
		return ErrNoJSON
	}
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	unescaped := strings.ReplaceAll(raw, `\"`, `"`)
	if unescaped == raw {
		return err
	}
	if err2 := json.Unmarshal([]byte(unescaped), v); err2 != nil {
		return err
	}
	return nil
}

// ToJSON serializes a Go value to a JSON string with indentation.
// Returns an empty string if serialization fails.
func ToJSON(v interface{}) string {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes))
}
