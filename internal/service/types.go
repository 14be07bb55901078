package service

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

// BatchExecutor translates the missing languages of one request with a single
// engine invocation. *engine.Executor implements it.
type BatchExecutor interface {
	Execute(ctx context.Context, content metadata.Content, source string, missing langset.Set) (map[string]metadata.Translation, error)
}

// Result is the answer to one translate call.
type Result struct {
	// Source is the resolved source language.
	Source string `json:"sourceLanguage"`
	// Languages maps every requested language to its translation or error
	// marker. A requested source language maps to the untranslated content.
	Languages map[string]metadata.Translation `json:"translations"`
	// Cached lists languages served from the cache.
	Cached []string `json:"cached"`
	// Translated lists languages sent to the engine by this call.
	Translated []string `json:"translated"`
}

// FailedLanguages returns the sorted languages carrying an error marker.
func (r Result) FailedLanguages() []string {
	var failed []string
	for lang, tr := range r.Languages {
		if tr.Failed() {
			failed = append(failed, lang)
		}
	}
	slices.Sort(failed)
	return failed
}

// Err reports per-language failures as an ErrPerLanguage error, or nil.
func (r Result) Err() error {
	failed := r.FailedLanguages()
	if len(failed) == 0 {
		return nil
	}
	return NewError(ErrPerLanguage, "some languages could not be translated").
		WithContext("languages", strings.Join(failed, ","))
}

func (r Result) clone() Result {
	r.Languages = maps.Clone(r.Languages)
	r.Cached = slices.Clone(r.Cached)
	r.Translated = slices.Clone(r.Translated)
	return r
}
