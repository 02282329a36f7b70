package warden

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultBlockedWords is the built-in profanity list, extended per guild
// via GuildConfig.BlockedWords.
var defaultBlockedWords = []string{
	"fuck",
	"shit",
	"bitch",
	"asshole",
	"cunt",
	"dickhead",
	"whore",
	"slut",
}

var defaultWordFilter = mustWordFilter(nil)

// WordFilter matches blocked words with explicit lower-casing and
// word-boundary anchoring, so "class" never trips a blocked "ass".
// Compiled once per guild config; safe for concurrent use.
type WordFilter struct {
	words    []string
	patterns []*regexp.Regexp
}

// NewWordFilter builds a filter from the built-in word list plus the given
// extra words. Duplicate words are collapsed.
func NewWordFilter(extraWords []string) (*WordFilter, error) {
	seen := map[string]bool{}
	words := make([]string, 0, len(defaultBlockedWords)+len(extraWords))
	for _, w := range append(
		append([]string{}, defaultBlockedWords...), extraWords...,
	) {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	f := &WordFilter{words: words}
	for _, w := range words {
		p, err := regexp.Compile(`\b` + regexp.QuoteMeta(w) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("blocked word %q: %w", w, err)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

func mustWordFilter(extraWords []string) *WordFilter {
	f, err := NewWordFilter(extraWords)
	if err != nil {
		panic(err)
	}
	return f
}

// Check lower-cases the content and returns the first blocked word found.
func (f *WordFilter) Check(content string) (string, bool) {
	lowered := strings.ToLower(content)
	for i, p := range f.patterns {
		if p.MatchString(lowered) {
			return f.words[i], true
		}
	}
	return "", false
}

// Words returns the filtered word list.
func (f *WordFilter) Words() []string {
	return f.words
}
