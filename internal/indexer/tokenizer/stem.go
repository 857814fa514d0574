package tokenizer

import (
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
)

const (
	StemmerPorter   = "porter"
	StemmerSnowball = "snowball"
	StemmerSuffix   = "suffix"
	StemmerNone     = "none"
)

// EnglishStopWords is the stop list used by the documentation index builder.
var EnglishStopWords = []string{
	"a", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in",
	"into", "is", "it", "near", "no", "not", "of", "on", "or", "such",
	"that", "the", "their", "then", "there", "these", "they", "this", "to",
	"was", "will", "with",
}

// stemmerFor maps a stemmer name to its function. Unknown names fall back
// to porter, which is what published indexes use.
func stemmerFor(name string) func(string) string {
	switch name {
	case StemmerSnowball:
		return stemSnowball
	case StemmerSuffix:
		return stemSuffix
	case StemmerNone:
		return func(w string) string { return w }
	default:
		return porterstemmer.StemString
	}
}

func stemSnowball(word string) string {
	env := snowballstem.NewEnv(word)
	english.Stem(env)
	return env.Current()
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stemSuffix is a light suffix stripper for indexes built without a real
// stemmer. First matching rule wins.
func stemSuffix(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
