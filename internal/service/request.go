package service

import (
	"fmt"
	"strings"
)

// EmbedRequest is a schema-checked /embed body.
type EmbedRequest struct {
	Text string
	// Model is accepted for compatibility and ignored; the loaded model is
	// always used.
	Model string
}

// BatchEmbedRequest is a schema-checked /batch-embed body.
type BatchEmbedRequest struct {
	Texts []string
	Model string
}

// ParseEmbedRequest checks a decoded JSON body, in order: object, "text"
// present, string, not blank.
func ParseEmbedRequest(body any) (EmbedRequest, error) {
	obj, err := asObject(body, "text")
	if err != nil {
		return EmbedRequest{}, err
	}
	raw, ok := obj["text"]
	if !ok {
		return EmbedRequest{}, invalid(`Missing "text" field in request body`)
	}
	text, ok := raw.(string)
	if !ok {
		return EmbedRequest{}, invalid(`"text" must be a string`)
	}
	if strings.TrimSpace(text) == "" {
		return EmbedRequest{}, invalid(`"text" cannot be empty`)
	}
	return EmbedRequest{Text: text, Model: optionalModel(obj)}, nil
}

// ParseBatchEmbedRequest checks a decoded JSON body, in order: object,
// "texts" present, array, non-empty, every item a string.
func ParseBatchEmbedRequest(body any) (BatchEmbedRequest, error) {
	obj, err := asObject(body, "texts")
	if err != nil {
		return BatchEmbedRequest{}, err
	}
	raw, ok := obj["texts"]
	if !ok {
		return BatchEmbedRequest{}, invalid(`Missing "texts" field in request body`)
	}
	items, ok := raw.([]any)
	if !ok {
		return BatchEmbedRequest{}, invalid(`"texts" must be an array`)
	}
	if len(items) == 0 {
		return BatchEmbedRequest{}, invalid(`"texts" cannot be empty`)
	}
	texts := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return BatchEmbedRequest{}, invalid(fmt.Sprintf("Item at index %d is not a string", i))
		}
		texts[i] = s
	}
	return BatchEmbedRequest{Texts: texts, Model: optionalModel(obj)}, nil
}

func asObject(body any, field string) (map[string]any, error) {
	if body == nil {
		return nil, invalid(fmt.Sprintf("Missing %q field in request body", field))
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, invalid("Request body must be a JSON object")
	}
	return obj, nil
}

func optionalModel(obj map[string]any) string {
	s, _ := obj["model"].(string)
	return s
}
