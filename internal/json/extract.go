// Package json extracts structured payloads from LLM text responses.
//
// Models return JSON wrapped in prose or markdown fences more often than
// not. Extraction failures here are parse errors: they surface to the
// caller and are never retried.
package json

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/quizforge/remote"
)

// Extract parses the JSON value embedded in an LLM response into T.
// Handles pure JSON, markdown-fenced JSON, and a JSON value surrounded by
// commentary. Errors carry the Parse classification.
func Extract[T any](response string) (T, error) {
	var result T
	raw, err := locate(response)
	if err != nil {
		return result, remote.WrapKind(remote.KindParse, err)
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, remote.WrapKind(remote.KindParse,
			fmt.Errorf("failed to unmarshal response JSON: %w", err))
	}
	return result, nil
}

// locate finds the JSON portion of a response. Uses simple delimiter
// matching, so unbalanced braces inside strings can defeat it; the model
// responses this handles are small enough that this has not mattered.
func locate(response string) (string, error) {
	response = stripFences(response)

	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	// Objects and arrays both occur: ideas come back as an array, health
	// as an object.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(response, pair[0])
		end := strings.LastIndex(response, pair[1])
		if start == -1 || end <= start {
			continue
		}
		candidate := response[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			return candidate, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON in response: %q", preview)
}

// stripFences removes markdown code fence markers.
// Handles ```json\n...\n``` and ```\n...\n```.
func stripFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}
