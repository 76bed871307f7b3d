// Package reply extracts the structured payload the assistant is asked to
// emit from its free-form text.
package reply

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xaenox/gigachat-bot/internal/models"
)

const (
	fenceJSON = "```json"
	fence     = "```"
)

// Clean trims the text and removes one leading ```json or ``` marker and one
// trailing ``` marker.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, fenceJSON):
		s = strings.TrimPrefix(s, fenceJSON)
	case strings.HasPrefix(s, fence):
		s = strings.TrimPrefix(s, fence)
	}
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

// Parse decodes raw into a StructuredReply. Each field is decoded on its
// own so a malformed optional field does not discard the others. When the
// cleaned text is not a JSON object, the reply falls back to the original
// text as the response and structured is false.
//
// Parse never fails; callers must still check HasResponse.
func Parse(raw string) (reply models.StructuredReply, structured bool) {
	cleaned := Clean(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return models.StructuredReply{Response: raw, RawJSON: cleaned}, false
	}

	reply = models.StructuredReply{
		Response:              stringField(fields, "response"),
		Comment:               stringField(fields, "comment"),
		Emotion:               stringField(fields, "emotion"),
		Confidence:            confidenceField(fields, "confidence"),
		Topics:                stringsField(fields, "topics"),
		Suggestions:           stringsField(fields, "suggestions"),
		IsFinalRecommendation: boolField(fields, "is_final_recommendation"),
		RawJSON:               cleaned,
	}
	return reply, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// confidenceField accepts a number or a numeric string in [0,1].
func confidenceField(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = parsed
	}
	if f < 0 || f > 1 {
		return nil
	}
	return &f
}

// stringsField accepts an array (non-string items are skipped) or a single
// string.
func stringsField(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := stringField(fields, key); strings.TrimSpace(s) != "" {
			return []string{s}
		}
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, err := strconv.ParseBool(strings.TrimSpace(s))
		return err == nil && parsed
	}
	return false
}
