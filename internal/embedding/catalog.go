package embedding

import "strings"

// DefaultModel is the lightweight sentence-transformers model served when
// none is configured.
const DefaultModel = "all-MiniLM-L6-v2"

// knownDimensions maps well-known sentence embedding models to their output size.
var knownDimensions = map[string]int{
	"all-minilm-l6-v2":                      384,
	"all-minilm-l12-v2":                     384,
	"all-minilm":                            384,
	"paraphrase-minilm-l6-v2":               384,
	"multi-qa-minilm-l6-cos-v1":             384,
	"paraphrase-multilingual-minilm-l12-v2": 384,
	"bge-small-en-v1.5":                     384,
	"all-mpnet-base-v2":                     768,
	"multi-qa-mpnet-base-dot-v1":            768,
	"all-distilroberta-v1":                  768,
	"bge-base-en-v1.5":                      768,
	"nomic-embed-text":                      768,
	"mxbai-embed-large":                     1024,
}

// KnownDimension returns the output dimension of a well-known model, or 0.
// Organization prefixes ("sentence-transformers/", "BAAI/") and Ollama tags
// (":latest") are ignored.
func KnownDimension(model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return knownDimensions[name]
}
