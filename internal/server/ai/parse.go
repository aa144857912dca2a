package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("empty response from model")
	ErrNoJSON        = errors.New("no JSON object in model response")
	ErrMalformedJSON = errors.New("malformed JSON in model response")
	ErrMissingField  = errors.New("missing required field in model response")
)

// Critique is the content returned by the model.
type Critique struct {
	Technique   string `json:"technique"`
	Composition string `json:"composition"`
	Color       string `json:"color"`
	Overall     string `json:"overall,omitempty"`
}

// ParseResponse extracts the first balanced JSON object from text and
// decodes it into a Critique. technique, composition and color must be
// present and non-empty.
func ParseResponse(text string) (*Critique, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	obj, ok := firstObject(text)
	if !ok {
		return nil, ErrNoJSON
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	c := &Critique{
		Technique:   stringify(fields["technique"]),
		Composition: stringify(fields["composition"]),
		Color:       stringify(fields["color"]),
		Overall:     stringify(fields["overall"]),
	}
	for _, f := range []struct{ name, value string }{
		{"technique", c.Technique},
		{"composition", c.Composition},
		{"color", c.Color},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return c, nil
}

// firstObject returns the first brace-balanced {...} substring, ignoring
// braces inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
