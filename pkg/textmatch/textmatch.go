// Package textmatch provides the deterministic text primitives used by the
// interview engine: normalization, English stemming and concept phrase
// detection with word boundaries.
package textmatch

import (
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
)

const stemLanguage = "english"

var (
	tokenPattern  = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)
	apostrophes   = strings.NewReplacer("'", "", "’", "")
	spacePattern  = regexp.MustCompile(`\s+`)
	nonWordSymbol = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	possessives   = []string{"'s", "’s"}
)

// Normalize lowercases s, drops apostrophes, replaces punctuation with
// spaces and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = apostrophes.Replace(s)
	s = nonWordSymbol.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Words returns the normalized words of s.
func Words(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// Stem returns the English stem of a single lowercase word. Words the
// stemmer rejects are returned unchanged.
func Stem(word string) string {
	stemmed, err := snowball.Stem(word, stemLanguage, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// Stems returns the stems of every word in s. Possessive clitics are
// dropped, so "process's" stems like "process".
func Stems(s string) []string {
	toks := tokenize(s)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.stem
	}
	return out
}

// stemToken stems one raw token after lowercasing it and dropping a
// trailing 's clitic and any remaining apostrophes.
func stemToken(raw string) string {
	w := strings.ToLower(raw)
	for _, clitic := range possessives {
		if trimmed, ok := strings.CutSuffix(w, clitic); ok && trimmed != "" {
			w = trimmed
			break
		}
	}
	return Stem(apostrophes.Replace(w))
}

// token is a word in the original text with its byte span.
type token struct {
	stem       string
	start, end int
}

func tokenize(s string) []token {
	spans := tokenPattern.FindAllStringIndex(s, -1)
	out := make([]token, 0, len(spans))
	for _, sp := range spans {
		out = append(out, token{stem: stemToken(s[sp[0]:sp[1]]), start: sp[0], end: sp[1]})
	}
	return out
}

// Concept is a compiled concept phrase.
type Concept struct {
	// Phrase is the concept as authored.
	Phrase string
	stems  []string
}

// CompileConcept compiles a phrase into its stem sequence.
func CompileConcept(phrase string) Concept {
	return Concept{Phrase: phrase, stems: Stems(phrase)}
}

// Empty reports whether the concept has no matchable words.
func (c Concept) Empty() bool {
	return len(c.stems) == 0
}

// Matcher detects a fixed set of concepts in free text. A concept matches
// when its stem sequence appears as consecutive words, so "classes" matches
// "class" but "subclass" does not.
type Matcher struct {
	concepts []Concept
}

// NewMatcher compiles the given phrases. Phrases without words are ignored.
func NewMatcher(phrases []string) *Matcher {
	m := &Matcher{}
	for _, p := range phrases {
		c := CompileConcept(p)
		if !c.Empty() {
			m.concepts = append(m.concepts, c)
		}
	}
	return m
}

// Len returns the number of matchable concepts.
func (m *Matcher) Len() int {
	return len(m.concepts)
}

// Find returns the authored phrases of all concepts present in text, in
// matcher order.
func (m *Matcher) Find(text string) []string {
	toks := tokenize(text)
	var found []string
	for _, c := range m.concepts {
		if _, ok := findSpan(toks, c.stems, 0); ok {
			found = append(found, c.Phrase)
		}
	}
	return found
}

// Any reports whether at least one concept is present in text.
func (m *Matcher) Any(text string) bool {
	toks := tokenize(text)
	for _, c := range m.concepts {
		if _, ok := findSpan(toks, c.stems, 0); ok {
			return true
		}
	}
	return false
}

// Redact replaces every occurrence of every concept in text with repl. repl
// must not contain words. Passes repeat until no concept matches, since a
// redaction can make the words around it adjacent.
func (m *Matcher) Redact(text, repl string) string {
	for changed := true; changed; {
		changed = false
		for _, c := range m.concepts {
			for {
				toks := tokenize(text)
				i, ok := findSpan(toks, c.stems, 0)
				if !ok {
					break
				}
				start, end := toks[i].start, toks[i+len(c.stems)-1].end
				text = text[:start] + repl + text[end:]
				changed = true
			}
		}
	}
	return text
}

func findSpan(toks []token, stems []string, from int) (int, bool) {
	if len(stems) == 0 {
		return 0, false
	}
	for i := from; i+len(stems) <= len(toks); i++ {
		match := true
		for j, s := range stems {
			if toks[i+j].stem != s {
				match = false
				break
			}
		}
		if match {
			return i, true
		}
	}
	return 0, false
}

// ContainsPhrase reports whether the normalized words of phrase appear as
// consecutive normalized words of text. No stemming is applied.
func ContainsPhrase(text, phrase string) bool {
	t := " " + Normalize(text) + " "
	p := Normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(t, " "+p+" ")
}
