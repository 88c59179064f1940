package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// parsedBody is the outcome of the parse stage. Raw keeps the exact
// bytes the provider signed; JSON is the extracted payload document,
// unwrapped from the form envelope when the provider posts
// application/x-www-form-urlencoded with a payload field.
type parsedBody struct {
	Raw    []byte
	JSON   []byte
	Fields map[string]any
}

func parseBody(body []byte, contentType string) (parsedBody, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return parsedBody{}, fmt.Errorf("pipeline: request body is empty")
	}

	document := body
	if isFormEncoded(contentType, body) {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return parsedBody{}, fmt.Errorf("pipeline: parse form body: %w", err)
		}
		payload := strings.TrimSpace(values.Get("payload"))
		if payload == "" {
			return parsedBody{}, fmt.Errorf("pipeline: form body has no payload field")
		}
		document = []byte(payload)
	}

	var fields map[string]any
	if err := json.Unmarshal(document, &fields); err != nil {
		return parsedBody{}, fmt.Errorf("pipeline: decode payload: %w", err)
	}
	if len(fields) == 0 {
		return parsedBody{}, fmt.Errorf("pipeline: payload is an empty object")
	}
	return parsedBody{Raw: body, JSON: document, Fields: fields}, nil
}

func isFormEncoded(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '['
}

// stringField walks dotted paths through the parsed document and
// returns the first non-empty string value.
func stringField(fields map[string]any, paths ...string) string {
	for _, path := range paths {
		current := any(fields)
		found := true
		for _, part := range strings.Split(path, ".") {
			node, ok := current.(map[string]any)
			if !ok {
				found = false
				break
			}
			current, ok = node[part]
			if !ok {
				found = false
				break
			}
		}
		if !found {
			continue
		}
		if value, ok := current.(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
