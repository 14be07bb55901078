package metadata

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
)

// detectConfidence is the minimum whatlanggo confidence for a detected
// source language to be used instead of the configured default.
const detectConfidence = 0.5

// Normalize builds the translatable Content from a scraped Snapshot.
// Missing fields become empty strings; surrounding whitespace is dropped.
func Normalize(s Snapshot) Content {
	return Content{
		Metadata: PrimarySection{
			Title:       clean(s.Title),
			Description: clean(s.Description),
			Keywords:    clean(s.Keywords),
			H1:          clean(s.H1),
		},
		OpenGraph: SocialSection{
			Title:       clean(s.OGTitle),
			Description: clean(s.OGDescription),
		},
		Twitter: SocialSection{
			Title:       clean(s.TwitterTitle),
			Description: clean(s.TwitterDescription),
		},
		SourceHost: clean(s.SourceHost),
	}
}

func clean(v string) string {
	return strings.TrimSpace(v)
}

// Canonical returns the stable JSON encoding of c used for hashing and for
// the engine's input file.
func (c Content) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Translatable reports whether any field besides the host carries text.
func (c Content) Translatable() bool {
	for _, v := range []string{
		c.Metadata.Title, c.Metadata.Description, c.Metadata.Keywords, c.Metadata.H1,
		c.OpenGraph.Title, c.OpenGraph.Description,
		c.Twitter.Title, c.Twitter.Description,
	} {
		if v != "" {
			return true
		}
	}
	return false
}

// SourceLanguage resolves the snapshot's source language. A declared language
// wins when it parses; otherwise, if detect is set, the language of the page
// text is detected; fallback is used when neither yields a code.
func SourceLanguage(s Snapshot, fallback string, detect bool) string {
	if declared, err := langset.Canonical(s.SourceLanguage); err == nil {
		return declared
	}
	if detect {
		if detected, ok := detectLanguage(Normalize(s)); ok {
			return detected
		}
	}
	if canonical, err := langset.Canonical(fallback); err == nil {
		return canonical
	}
	return fallback
}

func detectLanguage(c Content) (string, bool) {
	text := strings.TrimSpace(strings.Join([]string{
		c.Metadata.Title, c.Metadata.Description, c.Metadata.H1,
	}, " "))
	if text == "" {
		return "", false
	}
	info := whatlanggo.Detect(text)
	if info.Confidence < detectConfidence {
		return "", false
	}
	code, err := langset.Canonical(info.Lang.Iso6391())
	if err != nil {
		return "", false
	}
	return code, true
}
