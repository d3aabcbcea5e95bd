package rag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seanblong/knowledgebase/pkg/models"
)

// completion is the structured reply the model is asked to produce.
type completion struct {
	Answer                string
	MissingInfo           []string
	EnrichmentSuggestions []string
}

// parseCompletion validates the reply before any field is trusted. A
// missing or non-string answer, or list fields that are not arrays of
// strings, fail with models.ErrCompletionParse.
func parseCompletion(raw string) (completion, error) {
	body := stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return completion{}, fmt.Errorf("%w: %v", models.ErrCompletionParse, err)
	}

	var out completion
	ans, ok := fields["answer"]
	if !ok || bytes.Equal(bytes.TrimSpace(ans), []byte("null")) {
		return completion{}, fmt.Errorf("%w: missing \"answer\"", models.ErrCompletionParse)
	}
	if err := json.Unmarshal(ans, &out.Answer); err != nil {
		return completion{}, fmt.Errorf("%w: \"answer\" is not a string", models.ErrCompletionParse)
	}

	var err error
	if out.MissingInfo, err = stringList(fields, "missing_info"); err != nil {
		return completion{}, err
	}
	if out.EnrichmentSuggestions, err = stringList(fields, "enrichment_suggestions"); err != nil {
		return completion{}, err
	}
	return out, nil
}

// stringList decodes an optional array of strings; absent or null is empty.
func stringList(fields map[string]json.RawMessage, key string) ([]string, error) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %q is not an array of strings", models.ErrCompletionParse, key)
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// add even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
